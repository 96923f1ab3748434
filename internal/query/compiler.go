package query

import (
	"fmt"

	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/filter"
)

// DefaultPageSize is the number of rows per page when none is configured.
const DefaultPageSize = 24

// ReasonChooseFilters explains an empty result produced by switching every view filter off.
const ReasonChooseFilters = "Choose at least one filter to see results"

// Compiler turns filter specs into plans. It is immutable and safe for concurrent use.
type Compiler struct {
	pageSize         int
	joinedSortPaging bool
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithPageSize sets the rows per page.
func WithPageSize(n int) Option {
	return func(c *Compiler) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithJoinedSortPaging declares that the store can paginate while ordering by catalog columns
// (title, year). Without it those orderings compile to full-scan plans.
func WithJoinedSortPaging(enabled bool) Option {
	return func(c *Compiler) {
		c.joinedSortPaging = enabled
	}
}

// NewCompiler creates a compiler.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PageSize returns the configured rows per page.
func (c *Compiler) PageSize() int {
	return c.pageSize
}

// Compile builds the data plan for page of spec within scope, plus a count plan for page 0.
// The same inputs always produce the same plan.
func (c *Compiler) Compile(scope Scope, spec filter.Spec, page int) (Compiled, error) {
	if page < 0 {
		return Compiled{}, domainerrors.Validationf("page must not be negative, got %d", page)
	}
	if scope.OwnerID == "" || !scope.Category.Valid() {
		return Compiled{}, domainerrors.Validation("collection scope requires an owner and a category")
	}

	spec = spec.Normalized()
	order, joined := c.order(spec.Sort)
	plan := Plan{
		Scope:  scope,
		Order:  order,
		Window: Window{Page: page, Size: c.pageSize},
		Sort:   spec.Sort,
	}

	if spec.Empty() {
		plan.Empty = true
		plan.Reason = ReasonChooseFilters
		return Compiled{Data: plan}, nil
	}

	plan.FullScan = joined && !c.joinedSortPaging
	if plan.FullScan && page > 0 {
		plan.Empty = true
		return Compiled{Data: plan}, nil
	}

	plan.Predicates = predicates(spec)

	out := Compiled{Data: plan}
	if page == 0 {
		out.Count = &CountPlan{Scope: scope, Predicates: plan.Predicates}
	}
	return out, nil
}

func predicates(spec filter.Spec) []Predicate {
	var preds []Predicate

	if spec.Query != "" {
		preds = append(preds, Match{
			Fields:  []Field{FieldTitle, FieldDescription},
			Pattern: ContainsPattern(spec.Query),
		})
	}

	switch spec.View {
	case filter.ViewViewed:
		preds = append(preds, Equals{Field: FieldIsViewed, Value: true})
	case filter.ViewPlanned:
		preds = append(preds, Equals{Field: FieldIsViewed, Value: false})
	}

	switch spec.Favorite {
	case filter.TriOnlyTrue:
		preds = append(preds, Equals{Field: FieldFavorite, Value: true})
	case filter.TriOnlyFalse:
		preds = append(preds, Equals{Field: FieldFavorite, Value: false})
	}

	if !spec.Availability.All {
		values := make([]string, len(spec.Availability.Values))
		for i, v := range spec.Availability.Values {
			values[i] = string(v)
		}
		preds = append(preds, In{Field: FieldAvailability, Values: values})
	}

	if spec.Year.Active() {
		preds = append(preds, Between{Field: FieldYear, From: spec.Year.Selected.From, To: spec.Year.Selected.To})
	}
	if spec.ExternalRating.Active() {
		preds = append(preds, Between{
			Field: FieldExternalRating,
			From:  spec.ExternalRating.Selected.From,
			To:    spec.ExternalRating.Selected.To,
		})
	}
	if spec.Rating.Active() {
		preds = append(preds, Between{Field: FieldRating, From: spec.Rating.Selected.From, To: spec.Rating.Selected.To})
	}
	if spec.Viewed.Active() {
		b := Between{Field: FieldViewedAt}
		if spec.Viewed.From != nil {
			b.From = *spec.Viewed.From
		}
		if spec.Viewed.To != nil {
			b.To = *spec.Viewed.To
		}
		preds = append(preds, b)
	}

	return preds
}

// order returns the ORDER BY terms for s and whether the primary key is a catalog column.
// The id tiebreak keeps pages disjoint when primary values tie.
func (c *Compiler) order(s filter.Sort) ([]OrderTerm, bool) {
	desc := s.Direction == filter.Desc
	tiebreak := OrderTerm{Field: FieldID, Desc: desc}

	switch s.Key {
	case filter.SortTitle:
		return []OrderTerm{{Field: FieldTitle, Desc: desc}, tiebreak}, true
	case filter.SortYear:
		return []OrderTerm{{Field: FieldYear, Desc: desc, NullsLast: true}, tiebreak}, true
	case filter.SortRating:
		return []OrderTerm{{Field: FieldRating, Desc: desc, NullsLast: true}, tiebreak}, false
	case filter.SortCreated:
		return []OrderTerm{{Field: FieldCreatedAt, Desc: desc}, tiebreak}, false
	default:
		panic(fmt.Sprintf("query: unhandled sort key %q", s.Key))
	}
}
