package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/filter"
)

var (
	testScope   = Scope{OwnerID: "user-1", Category: domain.CategoryFilm}
	testDomains = filter.Domains{
		Year:           filter.Range[int]{From: 2000, To: 2020},
		ExternalRating: filter.ExternalRatingDomain,
	}
)

func TestCompile_DefaultSpecHasNoPredicates(t *testing.T) {
	c := NewCompiler()

	out, err := c.Compile(testScope, filter.Default(testDomains), 0)
	require.NoError(t, err)

	assert.False(t, out.Data.Empty)
	assert.False(t, out.Data.FullScan)
	assert.Empty(t, out.Data.Predicates)
	assert.Equal(t, Window{Page: 0, Size: DefaultPageSize}, out.Data.Window)
	assert.Equal(t, []OrderTerm{
		{Field: FieldCreatedAt, Desc: true},
		{Field: FieldID, Desc: true},
	}, out.Data.Order)

	require.NotNil(t, out.Count)
	assert.Equal(t, testScope, out.Count.Scope)
}

func TestCompile_CountOnlyOnFirstPage(t *testing.T) {
	c := NewCompiler(WithPageSize(10))

	out, err := c.Compile(testScope, filter.Default(testDomains), 3)
	require.NoError(t, err)
	assert.Nil(t, out.Count)
	assert.Equal(t, 30, out.Data.Window.Offset())
}

func TestCompile_EmptyViewShortCircuits(t *testing.T) {
	c := NewCompiler()
	form := filter.Form{ViewAll: false, Viewed: false, Planned: false, FavoriteAll: true, AvailabilityAll: true}

	out, err := c.Compile(testScope, form.ToSpec(testDomains), 0)
	require.NoError(t, err)

	assert.True(t, out.Data.Empty)
	assert.Equal(t, ReasonChooseFilters, out.Data.Reason)
	assert.Nil(t, out.Count)
}

func TestCompile_EmptyAvailabilitySetShortCircuits(t *testing.T) {
	spec := filter.Default(testDomains).WithAvailability(filter.AvailabilitySet{})

	out, err := NewCompiler().Compile(testScope, spec, 0)
	require.NoError(t, err)
	assert.True(t, out.Data.Empty)
}

func TestCompile_Predicates(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	spec := filter.Default(testDomains)
	spec.Query = "  50% Off_  "
	spec.View = filter.ViewPlanned
	spec.Favorite = filter.TriOnlyTrue
	spec.Availability = filter.OnlyAvailability(domain.AvailabilityStreaming, domain.AvailabilityOwned)
	spec.Year.Selected = filter.Range[int]{From: 2005, To: 2020}
	spec.Rating.Selected = filter.Range[int]{From: 7, To: 10}
	spec.Viewed = filter.DateRange{From: &from}

	out, err := NewCompiler().Compile(testScope, spec, 0)
	require.NoError(t, err)

	assert.Equal(t, []Predicate{
		Match{Fields: []Field{FieldTitle, FieldDescription}, Pattern: `%50\% off\_%`},
		Equals{Field: FieldIsViewed, Value: false},
		Equals{Field: FieldFavorite, Value: true},
		In{Field: FieldAvailability, Values: []string{"owned", "streaming"}},
		Between{Field: FieldYear, From: 2005, To: 2020},
		Between{Field: FieldRating, From: 7, To: 10},
		Between{Field: FieldViewedAt, From: from},
	}, out.Data.Predicates)

	require.NotNil(t, out.Count)
	assert.Equal(t, out.Data.Predicates, out.Count.Predicates)
}

func TestCompile_UntouchedRangesAddNoPredicate(t *testing.T) {
	spec := filter.Default(testDomains)
	spec.Year.Selected = testDomains.Year
	spec.ExternalRating.Selected = filter.ExternalRatingDomain

	out, err := NewCompiler().Compile(testScope, spec, 0)
	require.NoError(t, err)
	assert.Empty(t, out.Data.Predicates)
}

func TestCompile_Order(t *testing.T) {
	tests := []struct {
		name string
		sort filter.Sort
		want []OrderTerm
	}{
		{
			name: "title ascending",
			sort: filter.SortBy(filter.SortTitle),
			want: []OrderTerm{{Field: FieldTitle}, {Field: FieldID}},
		},
		{
			name: "rating descending keeps unrated last",
			sort: filter.SortBy(filter.SortRating),
			want: []OrderTerm{{Field: FieldRating, Desc: true, NullsLast: true}, {Field: FieldID, Desc: true}},
		},
		{
			name: "year ascending",
			sort: filter.Sort{Key: filter.SortYear, Direction: filter.Asc},
			want: []OrderTerm{{Field: FieldYear, NullsLast: true}, {Field: FieldID}},
		},
		{
			name: "unknown key falls back to newest first",
			sort: filter.Sort{Key: "popularity", Direction: filter.Asc},
			want: []OrderTerm{{Field: FieldCreatedAt, Desc: true}, {Field: FieldID, Desc: true}},
		},
	}

	c := NewCompiler(WithJoinedSortPaging(true))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.Compile(testScope, filter.Default(testDomains).WithSort(tt.sort), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Data.Order)
			assert.False(t, out.Data.FullScan)
		})
	}
}

func TestCompile_FullScanForJoinedSorts(t *testing.T) {
	c := NewCompiler()

	for _, key := range []filter.SortKey{filter.SortTitle, filter.SortYear} {
		spec := filter.Default(testDomains).WithSort(filter.SortBy(key))

		first, err := c.Compile(testScope, spec, 0)
		require.NoError(t, err)
		assert.True(t, first.Data.FullScan, key)
		assert.NotNil(t, first.Count, key)

		next, err := c.Compile(testScope, spec, 1)
		require.NoError(t, err)
		assert.True(t, next.Data.Empty, key)
		assert.Empty(t, next.Data.Reason, key)
	}

	out, err := c.Compile(testScope, filter.Default(testDomains).WithSort(filter.SortBy(filter.SortRating)), 1)
	require.NoError(t, err)
	assert.False(t, out.Data.FullScan)
	assert.False(t, out.Data.Empty)
}

func TestCompile_Deterministic(t *testing.T) {
	c := NewCompiler()
	spec := filter.Default(testDomains).WithQuery("dune")

	a, err := c.Compile(testScope, spec, 0)
	require.NoError(t, err)
	b, err := c.Compile(testScope, spec, 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCompile_Validation(t *testing.T) {
	c := NewCompiler()

	_, err := c.Compile(testScope, filter.Default(testDomains), -1)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = c.Compile(Scope{Category: domain.CategoryFilm}, filter.Default(testDomains), 0)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = c.Compile(Scope{OwnerID: "user-1", Category: "book"}, filter.Default(testDomains), 0)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestContainsPattern_Compiler(t *testing.T) {
	assert.Equal(t, `%dune%`, ContainsPattern("  DUNE  "))
	assert.Equal(t, `%a\\b%`, ContainsPattern(`a\b`))
	assert.Equal(t, `%\_\%%`, ContainsPattern("_%"))
}

func TestSortEntries(t *testing.T) {
	y := func(v int) *int { return &v }
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	entry := func(id, title string, year *int, rating *int, added int) *domain.CollectionEntry {
		e := &domain.CollectionEntry{Rating: rating, Item: &domain.CatalogItem{Title: title, Year: year}}
		e.ID = id
		e.CreatedAt = base.Add(time.Duration(added) * time.Hour)
		return e
	}
	ids := func(entries []*domain.CollectionEntry) []string {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.ID
		}
		return out
	}

	entries := []*domain.CollectionEntry{
		entry("e1", "b-movie", y(2001), y(5), 1),
		entry("e2", "Alien", nil, nil, 2),
		entry("e3", "alien", y(1999), y(9), 3),
		entry("e4", "Zodiac", y(2007), nil, 4),
	}

	SortEntries(entries, filter.SortBy(filter.SortTitle))
	assert.Equal(t, []string{"e2", "e3", "e1", "e4"}, ids(entries))

	SortEntries(entries, filter.SortBy(filter.SortYear))
	assert.Equal(t, []string{"e4", "e1", "e3", "e2"}, ids(entries))

	SortEntries(entries, filter.Sort{Key: filter.SortYear, Direction: filter.Asc})
	assert.Equal(t, []string{"e3", "e1", "e4", "e2"}, ids(entries))

	SortEntries(entries, filter.SortBy(filter.SortRating))
	assert.Equal(t, []string{"e3", "e1", "e4", "e2"}, ids(entries))

	SortEntries(entries, filter.DefaultSort())
	assert.Equal(t, []string{"e4", "e3", "e2", "e1"}, ids(entries))
}
