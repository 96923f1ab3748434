// Package main provides a tool to seed a database with demo users, collections and friendships.
//
// Every user gets a mixed film and game collection. The first user befriends the others through
// invites, opens their library and sends one recommendation. Access tokens are printed so the API
// can be exercised right away.
//
// Usage:
//
//	go run ./cmd/seed -db-path ~/Watchlog/watchlog.db
//	go run ./cmd/seed -db-path /tmp/demo.db -users 5 -entries 120
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/watchlogapp/watchlog-server/internal/auth"
	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/logger"
	"github.com/watchlogapp/watchlog-server/internal/service"
	"github.com/watchlogapp/watchlog-server/internal/store/sqlite"
	"github.com/watchlogapp/watchlog-server/internal/validation"
)

var (
	dbPath     = flag.String("db-path", os.ExpandEnv("$HOME/Watchlog/watchlog.db"), "SQLite database to seed")
	userCount  = flag.Int("users", 3, "Number of demo users")
	entryCount = flag.Int("entries", 60, "Collection entries per user")
	tokenTTL   = flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed access tokens")
)

// demoNicknames are used in order; extra users get a numbered nickname.
var demoNicknames = []string{"maya", "jonas", "priya", "tomasz", "aiko", "lucia"}

var filmTitles = []string{
	"Heat", "Arrival", "Ronin", "Alien", "Blade Runner", "Paprika", "Stalker", "Memories of Murder",
	"Parasite", "Oldboy", "Chungking Express", "The Thing", "Zodiac", "Drive", "Sicario", "Dune",
}

var gameTitles = []string{
	"Outer Wilds", "Hades", "Celeste", "Disco Elysium", "Portal 2", "Return of the Obra Dinn",
	"Hollow Knight", "Inside", "Tetris Effect", "Into the Breach", "Sekiro", "Stardew Valley",
}

var filmPlatforms = []domain.Platform{domain.PlatformCinema, domain.PlatformTV, domain.PlatformStreaming, domain.PlatformDisc}

var gamePlatforms = []domain.Platform{
	domain.PlatformPC, domain.PlatformPlayStation, domain.PlatformXbox, domain.PlatformSwitch, domain.PlatformMobile,
}

var availabilities = []domain.Availability{
	domain.AvailabilityOwned, domain.AvailabilityStreaming, domain.AvailabilityRent,
	domain.AvailabilityWishlist, domain.AvailabilityUnavailable,
}

type seeder struct {
	collections *service.CollectionService
	profiles    *service.ProfileService
	invites     *service.InviteService
	recs        *service.RecommendationService
	rng         *rand.Rand
}

func main() {
	flag.Parse()

	l := logger.New(logger.Config{Level: logger.ParseLevel("warn")})

	fmt.Printf("Opening database at: %s\n", *dbPath)
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o750); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	st, err := sqlite.Open(*dbPath, l.Logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	key, err := auth.LoadOrGenerateKey(filepath.Dir(*dbPath))
	if err != nil {
		log.Fatalf("Failed to load token key: %v", err)
	}
	tokens, err := auth.NewTokenService(key, *tokenTTL)
	if err != nil {
		log.Fatalf("Failed to create token service: %v", err)
	}

	v := validation.New()
	s := &seeder{
		collections: service.NewCollectionService(st, v, l.Logger),
		profiles:    service.NewProfileService(st, v, l.Logger),
		invites:     service.NewInviteService(st, v, service.InviteSettings{}, l.Logger),
		recs:        service.NewRecommendationService(st, v, l.Logger),
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 42)),
	}

	ctx := context.Background()
	users := make([]*domain.User, 0, *userCount)
	for n := range *userCount {
		nickname := "demo_" + strconv.Itoa(n+1)
		if n < len(demoNicknames) {
			nickname = demoNicknames[n]
		}

		user, err := s.profiles.Register(ctx, nickname)
		if err != nil {
			log.Fatalf("Failed to register %s: %v", nickname, err)
		}
		users = append(users, user)

		added := s.seedCollection(ctx, user.ID, *entryCount)
		fmt.Printf("Created %s (%s) with %d entries\n", user.Nickname, user.ID, added)
	}

	if len(users) > 1 {
		s.connect(ctx, users)
	}

	fmt.Println("\nAccess tokens:")
	for _, u := range users {
		token, err := tokens.Issue(u)
		if err != nil {
			log.Fatalf("Failed to issue token for %s: %v", u.Nickname, err)
		}
		fmt.Printf("  %-8s %s\n", u.Nickname, token)
	}

	fmt.Println("\nSeeding complete!")
}

// seedCollection adds n random entries. Titles repeat with a numbered suffix once the lists run out.
func (s *seeder) seedCollection(ctx context.Context, ownerID string, n int) int {
	added := 0
	for i := range n {
		req := s.randomItem(i)
		if _, err := s.collections.AddItem(ctx, ownerID, req); err != nil {
			log.Printf("Failed to add %q: %v", req.Title, err)
			continue
		}
		added++
	}
	return added
}

func (s *seeder) randomItem(i int) service.AddItemRequest {
	category := domain.CategoryFilm
	titles, platforms := filmTitles, filmPlatforms
	if s.rng.IntN(3) == 0 {
		category = domain.CategoryGame
		titles, platforms = gameTitles, gamePlatforms
	}

	title := titles[i%len(titles)]
	if round := i / len(titles); round > 0 {
		title += " " + strconv.Itoa(round+1)
	}

	year := 1970 + s.rng.IntN(56)
	req := service.AddItemRequest{
		Category: category,
		Title:    title,
		Year:     &year,
		EntryFields: service.EntryFields{
			IsViewed:         s.rng.IntN(4) != 0,
			RecommendSimilar: s.rng.IntN(5) == 0,
			Availability:     availabilities[s.rng.IntN(len(availabilities))],
			Platforms:        []domain.Platform{platforms[s.rng.IntN(len(platforms))]},
		},
	}
	// Some titles come without a provider rating so null handling gets exercised.
	if s.rng.IntN(4) != 0 {
		r := float64(s.rng.IntN(91)+10) / 10
		req.ExternalRating = &r
	}
	if req.IsViewed {
		rating := 1 + s.rng.IntN(10)
		viewed := time.Now().AddDate(0, 0, -s.rng.IntN(720))
		req.Rating = &rating
		req.ViewedAt = &viewed
		req.Progress = 100
	}
	return req
}

// connect befriends the first user with everyone else, opens the first user's library and sends
// one recommendation from it.
func (s *seeder) connect(ctx context.Context, users []*domain.User) {
	host := users[0]
	others := users[1:]

	invite, err := s.invites.Create(ctx, host.ID, service.CreateInviteRequest{MaxUses: len(others)})
	if err != nil {
		log.Fatalf("Failed to create invite: %v", err)
	}

	ids := make([]string, 0, len(others))
	for _, u := range others {
		outcome, err := s.invites.Accept(ctx, u.ID, invite.Token)
		if err != nil {
			log.Fatalf("Failed to accept invite for %s: %v", u.Nickname, err)
		}
		fmt.Printf("%s accepted %s's invite: %s\n", u.Nickname, host.Nickname, outcome)
		if outcome.Succeeded() {
			ids = append(ids, u.ID)
		}
	}

	if _, err := s.profiles.SetLibraryVisibility(ctx, host.ID, true); err != nil {
		log.Fatalf("Failed to open %s's library: %v", host.Nickname, err)
	}

	year := 1995
	entry, err := s.collections.AddItem(ctx, host.ID, service.AddItemRequest{
		Category:    domain.CategoryFilm,
		ExternalID:  "seed-heat-1995",
		Title:       "Heat (Director's Cut)",
		Year:        &year,
		EntryFields: service.EntryFields{IsViewed: true, Progress: 100},
	})
	if err != nil {
		log.Fatalf("Failed to add recommended title: %v", err)
	}

	if len(ids) == 0 {
		return
	}
	res, err := s.recs.Send(ctx, host.ID, service.SendRecommendationRequest{
		ToUserIDs: ids,
		ItemID:    entry.ItemID,
		Comment:   "Watch it on the biggest screen you can find",
	})
	if err != nil {
		log.Fatalf("Failed to send recommendation: %v", err)
	}
	fmt.Printf("%s sent %d recommendations\n", host.Nickname, res.SentCount)
}
