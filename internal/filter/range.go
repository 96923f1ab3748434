package filter

import "cmp"

// Range is a closed interval.
type Range[T cmp.Ordered] struct {
	From T `json:"from"`
	To   T `json:"to"`
}

// Valid reports whether the interval is not inverted.
func (r Range[T]) Valid() bool {
	return r.From <= r.To
}

// Contains reports whether v lies inside the interval.
func (r Range[T]) Contains(v T) bool {
	return r.From <= v && v <= r.To
}

// Clamp squeezes r into d. The result may be inverted if r lies outside d.
func (r Range[T]) Clamp(d Range[T]) Range[T] {
	return Range[T]{
		From: min(max(r.From, d.From), d.To),
		To:   max(min(r.To, d.To), d.From),
	}
}

// Bound pairs a selected range with the full domain it was chosen from.
type Bound[T cmp.Ordered] struct {
	Selected Range[T] `json:"selected"`
	Domain   Range[T] `json:"domain"`
}

// Full returns a bound selecting the whole domain.
func Full[T cmp.Ordered](domain Range[T]) Bound[T] {
	return Bound[T]{Selected: domain, Domain: domain}
}

// Active reports whether the selection narrows the domain. Untouched bounds add no predicate.
func (b Bound[T]) Active() bool {
	return b.Selected.From > b.Domain.From || b.Selected.To < b.Domain.To
}

func (b Bound[T]) normalize() Bound[T] {
	if !b.Selected.Valid() {
		b.Selected.From, b.Selected.To = b.Selected.To, b.Selected.From
	}
	if !b.Domain.Valid() {
		b.Domain.From, b.Domain.To = b.Domain.To, b.Domain.From
	}
	return b
}
