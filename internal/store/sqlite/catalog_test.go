package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

func TestCatalogItemUniquePerCategory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestItem(t, s, "item-1", "tt0001", "Dune", 2021)

	dup := &domain.CatalogItem{
		Syncable:   domain.Syncable{ID: "item-2"},
		Category:   domain.CategoryFilm,
		ExternalID: "tt0001",
		Title:      "Dune (again)",
	}
	dup.InitTimestamps()
	if err := s.CreateCatalogItem(ctx, dup); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("duplicate external id: got %v, want ErrAlreadyExists", err)
	}

	// Same external id in another category is a different title.
	dup.Category = domain.CategoryGame
	if err := s.CreateCatalogItem(ctx, dup); err != nil {
		t.Fatalf("same external id in other category: %v", err)
	}

	// Items without an external id never collide.
	for _, id := range []string{"item-3", "item-4"} {
		insertTestItem(t, s, id, "", "Home video", 0)
	}
}

func TestUpdateCatalogItemConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestItem(t, s, "item-1", "tt0001", "Dune", 2021)
	other := insertTestItem(t, s, "item-2", "tt0002", "Arrival", 2016)

	other.ExternalID = "tt0001"
	if err := s.UpdateCatalogItem(ctx, other); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}

	other.ExternalID = "tt0002"
	other.Description = "First contact"
	if err := s.UpdateCatalogItem(ctx, other); err != nil {
		t.Fatalf("UpdateCatalogItem: %v", err)
	}
	got, err := s.GetCatalogItemByExternalID(ctx, domain.CategoryFilm, "tt0002")
	if err != nil {
		t.Fatalf("GetCatalogItemByExternalID: %v", err)
	}
	if got.Description != "First contact" {
		t.Errorf("Description: got %q", got.Description)
	}
}

func TestSetCatalogYearIfMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestItem(t, s, "no-year", "tt1", "Unknown", 0)
	insertTestItem(t, s, "has-year", "tt2", "Known", 1999)

	wrote, err := s.SetCatalogYearIfMissing(ctx, "no-year", 2010)
	if err != nil || !wrote {
		t.Fatalf("SetCatalogYearIfMissing(no-year): wrote=%v err=%v", wrote, err)
	}
	wrote, err = s.SetCatalogYearIfMissing(ctx, "has-year", 2010)
	if err != nil || wrote {
		t.Fatalf("SetCatalogYearIfMissing(has-year): wrote=%v err=%v", wrote, err)
	}

	got, err := s.GetCatalogItem(ctx, "has-year")
	if err != nil {
		t.Fatalf("GetCatalogItem: %v", err)
	}
	if *got.Year != 1999 {
		t.Errorf("existing year overwritten: %d", *got.Year)
	}
}
