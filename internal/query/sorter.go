package query

import (
	"cmp"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/filter"
)

// SortEntries orders entries in place the same way a store would apply the plan's order terms.
// Full-scan plans use it after every batch has been fetched. Entries without an Item sort last.
func SortEntries(entries []*domain.CollectionEntry, s filter.Sort) {
	coll := collate.New(language.Und, collate.IgnoreCase, collate.Loose)
	desc := s.Direction == filter.Desc

	slices.SortStableFunc(entries, func(a, b *domain.CollectionEntry) int {
		var c int
		switch s.Key {
		case filter.SortTitle:
			c = coll.CompareString(title(a), title(b))
		case filter.SortYear:
			var last int
			if c, last = compareNullable(year(a), year(b)); last != 0 {
				return last
			}
		case filter.SortRating:
			var last int
			if c, last = compareNullable(a.Rating, b.Rating); last != 0 {
				return last
			}
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})
}

// compareNullable compares two optional values. When exactly one is missing, last orders it after the
// present one regardless of direction and c is meaningless.
func compareNullable(a, b *int) (c, last int) {
	switch {
	case a == nil && b == nil:
		return 0, 0
	case a == nil:
		return 0, 1
	case b == nil:
		return 0, -1
	default:
		return cmp.Compare(*a, *b), 0
	}
}

func title(e *domain.CollectionEntry) string {
	if e.Item == nil {
		return ""
	}
	return e.Item.Title
}

func year(e *domain.CollectionEntry) *int {
	if e.Item == nil || !e.Item.HasYear() {
		return nil
	}
	return e.Item.Year
}
