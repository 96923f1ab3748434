// Package query compiles a filter.Spec into a store-neutral, paginated query plan.
package query

import (
	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/filter"
)

// Field names a logical column of a collection row (entry joined with its catalog item).
type Field string

const (
	FieldID             Field = "id"
	FieldCreatedAt      Field = "created_at"
	FieldTitle          Field = "title"
	FieldDescription    Field = "description"
	FieldIsViewed       Field = "is_viewed"
	FieldFavorite       Field = "recommend_similar"
	FieldAvailability   Field = "availability"
	FieldYear           Field = "year"
	FieldExternalRating Field = "external_rating"
	FieldRating         Field = "rating"
	FieldViewedAt       Field = "viewed_at"
)

// Predicate is one condition of a plan. All predicates of a plan are ANDed.
type Predicate interface {
	predicate()
}

// Match is a case-insensitive substring match ORed across Fields.
// Pattern is folded and LIKE-escaped with EscapeChar, wildcards included.
type Match struct {
	Fields  []Field
	Pattern string
}

// Equals requires Field to equal Value.
type Equals struct {
	Field Field
	Value any
}

// Between requires From <= Field <= To. A nil side is open.
type Between struct {
	Field Field
	From  any
	To    any
}

// In requires Field to be one of Values.
type In struct {
	Field  Field
	Values []string
}

func (Match) predicate()   {}
func (Equals) predicate()  {}
func (Between) predicate() {}
func (In) predicate()      {}

// OrderTerm is one key of the ORDER BY.
type OrderTerm struct {
	Field     Field
	Desc      bool
	NullsLast bool
}

// Window is the page slice of a plan.
type Window struct {
	Page int
	Size int
}

// Offset returns the number of rows to skip.
func (w Window) Offset() int {
	return w.Page * w.Size
}

// Scope identifies the collection a plan reads: one owner, one category.
type Scope struct {
	OwnerID  string
	Category domain.Category
}

// String renders the scope for fingerprints and logs.
func (s Scope) String() string {
	return s.OwnerID + "/" + string(s.Category)
}

// Plan is a filtered, ordered and paginated read of one collection.
type Plan struct {
	Scope      Scope
	Predicates []Predicate
	Order      []OrderTerm
	Window     Window

	// Sort is the ordering Order was derived from, used by SortEntries after a full scan.
	Sort filter.Sort

	// FullScan asks the store for every matching row in bounded batches, sorted in memory.
	// No further pages follow a full-scan plan.
	FullScan bool

	// Empty plans must not reach the store.
	Empty  bool
	Reason string
}

// CountPlan counts the rows matching the same predicates as its data plan, ignoring the window.
type CountPlan struct {
	Scope      Scope
	Predicates []Predicate
}

// Compiled is the output of the compiler for one page.
type Compiled struct {
	Data Plan
	// Count is only set for page 0.
	Count *CountPlan
}
