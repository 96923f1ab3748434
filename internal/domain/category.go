package domain

import "slices"

// Category distinguishes the two kinds of catalog items.
type Category string

const (
	CategoryFilm Category = "film"
	CategoryGame Category = "game"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryFilm || c == CategoryGame
}

// Platforms returns the platform tags allowed for items of this category.
func (c Category) Platforms() []Platform {
	switch c {
	case CategoryFilm:
		return []Platform{PlatformCinema, PlatformTV, PlatformStreaming, PlatformDisc}
	case CategoryGame:
		return []Platform{PlatformPC, PlatformPlayStation, PlatformXbox, PlatformSwitch, PlatformMobile}
	default:
		return nil
	}
}

// AllowsPlatform reports whether p may be attached to an entry of this category.
func (c Category) AllowsPlatform(p Platform) bool {
	return slices.Contains(c.Platforms(), p)
}

// Platform is where an item was watched or played.
type Platform string

const (
	PlatformCinema    Platform = "cinema"
	PlatformTV        Platform = "tv"
	PlatformStreaming Platform = "streaming"
	PlatformDisc      Platform = "disc"

	PlatformPC          Platform = "pc"
	PlatformPlayStation Platform = "playstation"
	PlatformXbox        Platform = "xbox"
	PlatformSwitch      Platform = "switch"
	PlatformMobile      Platform = "mobile"
)

// Availability labels how the owner can get at an item.
type Availability string

const (
	AvailabilityOwned       Availability = "owned"
	AvailabilityStreaming   Availability = "streaming"
	AvailabilityRent        Availability = "rent"
	AvailabilityWishlist    Availability = "wishlist"
	AvailabilityUnavailable Availability = "unavailable"
)

// Availabilities lists every availability label in display order.
func Availabilities() []Availability {
	return []Availability{
		AvailabilityOwned,
		AvailabilityStreaming,
		AvailabilityRent,
		AvailabilityWishlist,
		AvailabilityUnavailable,
	}
}

// Valid reports whether a is one of the closed set of labels.
func (a Availability) Valid() bool {
	return slices.Contains(Availabilities(), a)
}
