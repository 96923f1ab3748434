package filter

// SortKey names the primary ordering of a collection page.
type SortKey string

const (
	SortCreated SortKey = "created"
	SortTitle   SortKey = "title"
	SortRating  SortKey = "rating"
	SortYear    SortKey = "year"
)

// Direction is ascending or descending.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is a key plus direction.
type Sort struct {
	Key       SortKey   `json:"key"`
	Direction Direction `json:"direction"`
}

// DefaultSort orders by most recently added.
func DefaultSort() Sort {
	return Sort{Key: SortCreated, Direction: Desc}
}

// SortBy returns the natural direction for key: titles ascend, everything else descends.
func SortBy(key SortKey) Sort {
	if key == SortTitle {
		return Sort{Key: key, Direction: Asc}
	}
	return Sort{Key: key, Direction: Desc}
}

// Valid reports whether key is known.
func (k SortKey) Valid() bool {
	switch k {
	case SortCreated, SortTitle, SortRating, SortYear:
		return true
	default:
		return false
	}
}

func (s Sort) normalize() Sort {
	if !s.Key.Valid() {
		return DefaultSort()
	}
	if s.Direction != Asc && s.Direction != Desc {
		return SortBy(s.Key)
	}
	return s
}
