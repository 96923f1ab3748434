// Package bounds keeps numeric range filters in step with a collection's changing data.
package bounds

import (
	"cmp"

	"github.com/watchlogapp/watchlog-server/internal/filter"
)

// Domain is the live extent of a numeric column. Empty means the collection holds no values for it.
type Domain[T cmp.Ordered] struct {
	filter.Range[T]
	Empty bool
}

// Of builds a non-empty domain, swapping inverted ends.
func Of[T cmp.Ordered](lo, hi T) Domain[T] {
	if hi < lo {
		lo, hi = hi, lo
	}
	return Domain[T]{Range: filter.Range[T]{From: lo, To: hi}}
}

// Reconcile remaps the selection current, chosen over prev, onto next.
//
// An end pinned to the old edge follows the new edge. An interior end is kept and then clamped
// into next. A selection that is inverted or no longer overlaps next becomes the whole of next.
func Reconcile[T cmp.Ordered](prev, next, current filter.Range[T]) filter.Range[T] {
	out := current
	if current.From <= prev.From {
		out.From = next.From
	}
	if current.To >= prev.To {
		out.To = next.To
	}

	if !out.Valid() || out.To < next.From || out.From > next.To {
		return next
	}
	return out.Clamp(next)
}

// ReconcileBound applies Reconcile to a bound and moves its domain to next.
// An empty next domain leaves the bound untouched.
func ReconcileBound[T cmp.Ordered](b filter.Bound[T], next Domain[T]) filter.Bound[T] {
	if next.Empty {
		return b
	}
	return filter.Bound[T]{
		Selected: Reconcile(b.Domain, next.Range, b.Selected),
		Domain:   next.Range,
	}
}

// Snapshot is the set of live domains the reconciler tracks for a collection.
type Snapshot struct {
	Year           Domain[int]
	ExternalRating Domain[float64]
}

// Apply reconciles every dynamic bound of s against snap and returns the updated copy.
func Apply(s filter.Spec, snap Snapshot) filter.Spec {
	s.Year = ReconcileBound(s.Year, snap.Year)
	s.ExternalRating = ReconcileBound(s.ExternalRating, snap.ExternalRating)
	return s
}

// Domains converts snap into filter domains, falling back to fallback for empty columns.
func (snap Snapshot) Domains(fallback filter.Domains) filter.Domains {
	out := fallback
	if !snap.Year.Empty {
		out.Year = snap.Year.Range
	}
	if !snap.ExternalRating.Empty {
		out.ExternalRating = snap.ExternalRating.Range
	}
	return out
}
