package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/watchlogapp/watchlog-server/internal/access"
	"github.com/watchlogapp/watchlog-server/internal/browse"
	"github.com/watchlogapp/watchlog-server/internal/domain"
	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/filter"
	"github.com/watchlogapp/watchlog-server/internal/metadata"
	"github.com/watchlogapp/watchlog-server/internal/pagination"
	"github.com/watchlogapp/watchlog-server/internal/query"
)

const collectionPath = "/api/v1/users/{ownerId}/collections/{category}"

func (s *Server) registerBrowseRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "checkAccess",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{ownerId}/access",
		Summary:     "Check collection access",
		Description: "Decides whether the caller may browse the user's collection. Anonymous callers get unauthenticated",
		Tags:        []string{"Browse"},
	}, s.handleCheckAccess)

	huma.Register(s.api, huma.Operation{
		OperationID: "openCollection",
		Method:      http.MethodPost,
		Path:        collectionPath + "/open",
		Summary:     "Open collection",
		Description: "Checks access, loads the live bounds and returns the first page under default filters",
		Tags:        []string{"Browse"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleOpenCollection)

	huma.Register(s.api, huma.Operation{
		OperationID:   "closeCollection",
		Method:        http.MethodDelete,
		Path:          collectionPath,
		Summary:       "Close collection",
		Description:   "Discards the caller's browse session for the collection",
		Tags:          []string{"Browse"},
		DefaultStatus: http.StatusNoContent,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCloseCollection)

	huma.Register(s.api, huma.Operation{
		OperationID: "applyFilters",
		Method:      http.MethodPut,
		Path:        collectionPath + "/filters",
		Summary:     "Apply filters",
		Description: "Applies a filter set and returns its first page. Results of superseded filters are discarded",
		Tags:        []string{"Browse"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleApplyFilters)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPendingFilters",
		Method:      http.MethodGet,
		Path:        collectionPath + "/filters/pending",
		Summary:     "Get pending filters",
		Description: "Returns the filter set being edited",
		Tags:        []string{"Browse"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetPendingFilters)

	huma.Register(s.api, huma.Operation{
		OperationID: "setPendingFilters",
		Method:      http.MethodPut,
		Path:        collectionPath + "/filters/pending",
		Summary:     "Edit pending filters",
		Description: "Replaces the filter set being edited without querying",
		Tags:        []string{"Browse"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSetPendingFilters)

	huma.Register(s.api, huma.Operation{
		OperationID: "applyPendingFilters",
		Method:      http.MethodPost,
		Path:        collectionPath + "/filters/pending/apply",
		Summary:     "Apply pending filters",
		Description: "Applies the filter set being edited",
		Tags:        []string{"Browse"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleApplyPendingFilters)

	huma.Register(s.api, huma.Operation{
		OperationID: "loadNextPage",
		Method:      http.MethodPost,
		Path:        collectionPath + "/pages/next",
		Summary:     "Load next page",
		Description: "Loads and merges the next page. Duplicate triggers are harmless",
		Tags:        []string{"Browse"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleLoadNextPage)

	huma.Register(s.api, huma.Operation{
		OperationID: "retryPage",
		Method:      http.MethodPost,
		Path:        collectionPath + "/pages/retry",
		Summary:     "Retry failed page",
		Description: "Repeats the last failed page load",
		Tags:        []string{"Browse"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRetryPage)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBounds",
		Method:      http.MethodGet,
		Path:        collectionPath + "/bounds",
		Summary:     "Get bounds",
		Description: "Returns the last loaded numeric domains of the collection",
		Tags:        []string{"Browse"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetBounds)

	huma.Register(s.api, huma.Operation{
		OperationID: "refreshBounds",
		Method:      http.MethodPost,
		Path:        collectionPath + "/bounds/refresh",
		Summary:     "Refresh bounds",
		Description: "Reloads the numeric domains and remaps the range filters onto them",
		Tags:        []string{"Browse"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRefreshBounds)

	huma.Register(s.api, huma.Operation{
		OperationID: "enrichVisible",
		Method:      http.MethodPost,
		Path:        collectionPath + "/enrich",
		Summary:     "Enrich loaded entries",
		Description: "Looks up provider metadata for every loaded entry. Failed lookups are left out",
		Tags:        []string{"Browse"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleEnrichVisible)

	huma.Register(s.api, huma.Operation{
		OperationID: "refreshEntryMetadata",
		Method:      http.MethodPost,
		Path:        collectionPath + "/entries/{entryId}/metadata/refresh",
		Summary:     "Refresh metadata",
		Description: "Searches the provider by title and saves a unique match. Several matches return 409 with candidates",
		Tags:        []string{"Browse"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRefreshMetadata)

	huma.Register(s.api, huma.Operation{
		OperationID: "chooseEntryMetadata",
		Method:      http.MethodPost,
		Path:        collectionPath + "/entries/{entryId}/metadata/choose",
		Summary:     "Choose metadata",
		Description: "Saves the chosen provider candidate onto the entry's item",
		Tags:        []string{"Browse"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleChooseMetadata)
}

// === DTOs ===

// CollectionInput addresses one user's collection of one category.
type CollectionInput struct {
	Authorization string `header:"Authorization"`
	OwnerID       string `path:"ownerId" doc:"Collection owner's user ID"`
	Category      string `path:"category" enum:"film,game" doc:"Item category"`
}

func (in CollectionInput) scope() (query.Scope, error) {
	category := domain.Category(in.Category)
	if !category.Valid() {
		return query.Scope{}, domainerrors.Validationf("unknown category %q", in.Category)
	}
	return query.Scope{OwnerID: in.OwnerID, Category: category}, nil
}

// FilterRequest mirrors the browse panel. An absent "all" switch counts as on.
type FilterRequest struct {
	Query string `json:"query,omitempty" doc:"Substring matched against title and description"`

	ViewAll *bool `json:"view_all,omitempty" doc:"Ignore viewed/planned (default true)"`
	Viewed  bool  `json:"viewed,omitempty" doc:"Include watched or played entries"`
	Planned bool  `json:"planned,omitempty" doc:"Include planned entries"`

	FavoriteAll   *bool `json:"favorite_all,omitempty" doc:"Ignore the favorite flag (default true)"`
	FavoritesOnly bool  `json:"favorites_only,omitempty" doc:"Only favorites"`

	AvailabilityAll *bool                 `json:"availability_all,omitempty" doc:"Ignore availability (default true)"`
	Availability    []domain.Availability `json:"availability,omitempty" doc:"Accepted availability labels"`

	Year           *filter.Range[int]     `json:"year,omitempty" doc:"Release year range"`
	ExternalRating *filter.Range[float64] `json:"external_rating,omitempty" doc:"Provider rating range"`
	Rating         *filter.Range[int]     `json:"rating,omitempty" doc:"Personal rating range"`

	ViewedFrom *time.Time `json:"viewed_from,omitempty" doc:"Viewed on or after"`
	ViewedTo   *time.Time `json:"viewed_to,omitempty" doc:"Viewed on or before"`

	SortKey       filter.SortKey   `json:"sort_key,omitempty" enum:"created,title,rating,year" doc:"Primary ordering"`
	SortDirection filter.Direction `json:"sort_direction,omitempty" enum:"asc,desc" doc:"Ordering direction"`
}

func (r FilterRequest) form() filter.Form {
	f := filter.Form{
		Query:           r.Query,
		ViewAll:         on(r.ViewAll),
		Viewed:          r.Viewed,
		Planned:         r.Planned,
		FavoriteAll:     on(r.FavoriteAll),
		FavoritesOnly:   r.FavoritesOnly,
		AvailabilityAll: on(r.AvailabilityAll),
		Availability:    r.Availability,
		Year:            r.Year,
		ExternalRating:  r.ExternalRating,
		Rating:          r.Rating,
		ViewedFrom:      r.ViewedFrom,
		ViewedTo:        r.ViewedTo,
		SortKey:         r.SortKey,
		SortDirection:   r.SortDirection,
	}
	if f.SortKey != "" && f.SortDirection == "" {
		f.SortDirection = filter.SortBy(f.SortKey).Direction
	}
	return f
}

func on(b *bool) bool {
	return b == nil || *b
}

// FilterInput carries a filter set for a collection.
type FilterInput struct {
	CollectionInput
	Body FilterRequest
}

// PageErrorResponse describes a failed page load.
type PageErrorResponse struct {
	Page        int    `json:"page" doc:"Page that failed"`
	Message     string `json:"message" doc:"Failure description"`
	Destructive bool   `json:"destructive" doc:"True when the failure cleared the loaded entries"`
}

// BrowseResponse is the state of a browse session.
type BrowseResponse struct {
	Access      access.State              `json:"access" doc:"Gate state: checking, allowed, unauthenticated, not_friends or closed"`
	Message     string                    `json:"message,omitempty" doc:"Why the result is empty, when it deliberately is"`
	Spec        filter.Spec               `json:"spec" doc:"Applied filters"`
	Phase       pagination.Phase          `json:"phase" doc:"Loading phase"`
	Fingerprint string                    `json:"fingerprint,omitempty" doc:"Identity of the applied filters"`
	Page        int                       `json:"page" doc:"Last merged page index, -1 before the first"`
	Entries     []*domain.CollectionEntry `json:"entries" doc:"Merged entries in display order"`
	HasMore     bool                      `json:"has_more" doc:"Whether another page exists"`
	Total       int                       `json:"total" doc:"Matching entries across all pages"`
	TotalKnown  bool                      `json:"total_known" doc:"Whether total was counted"`
	Error       *PageErrorResponse        `json:"error,omitempty" doc:"Last page failure"`
}

// BrowseOutput wraps a browse response for Huma.
type BrowseOutput struct {
	Body BrowseResponse
}

func toBrowseResponse(v browse.View) BrowseResponse {
	entries := v.Page.Entries
	if entries == nil {
		entries = []*domain.CollectionEntry{}
	}
	resp := BrowseResponse{
		Access:      v.Access,
		Message:     v.Message,
		Spec:        v.Spec,
		Phase:       v.Page.Phase,
		Fingerprint: v.Page.Fingerprint,
		Page:        v.Page.Page,
		Entries:     entries,
		HasMore:     v.Page.HasMore,
		Total:       v.Page.Total,
		TotalKnown:  v.Page.TotalKnown,
	}
	if pe := v.Page.Err; pe != nil {
		resp.Error = &PageErrorResponse{Page: pe.Page, Message: pe.Error(), Destructive: pe.Destructive()}
	}
	return resp
}

// browseOutput reports page failures inside the view so the client keeps what it has.
func browseOutput(v browse.View, err error) (*BrowseOutput, error) {
	var pe *pagination.PageError
	if err != nil && !errors.As(err, &pe) {
		return nil, err
	}
	resp := toBrowseResponse(v)
	if pe != nil && resp.Error == nil {
		resp.Error = &PageErrorResponse{Page: pe.Page, Message: pe.Error(), Destructive: pe.Destructive()}
	}
	return &BrowseOutput{Body: resp}, nil
}

// SpecOutput wraps a filter spec for Huma.
type SpecOutput struct {
	Body filter.Spec
}

// BoundsResponse contains the live numeric domains. An absent domain has no values yet.
type BoundsResponse struct {
	Year           *filter.Range[int]     `json:"year,omitempty" doc:"Release years present"`
	ExternalRating *filter.Range[float64] `json:"external_rating,omitempty" doc:"Provider ratings present"`
}

// BoundsOutput wraps the bounds response for Huma.
type BoundsOutput struct {
	Body BoundsResponse
}

// EnrichResponse maps item IDs to provider details.
type EnrichResponse struct {
	Details map[string]*metadata.Detail `json:"details" doc:"Provider details keyed by item ID"`
}

// EnrichOutput wraps the enrich response for Huma.
type EnrichOutput struct {
	Body EnrichResponse
}

// EntryMetadataInput addresses one loaded entry of a collection.
type EntryMetadataInput struct {
	CollectionInput
	EntryID string `path:"entryId" doc:"Entry ID"`
}

// ChooseMetadataRequest picks a provider candidate.
type ChooseMetadataRequest struct {
	ExternalID string `json:"external_id" minLength:"1" doc:"Provider identifier of the chosen candidate"`
}

// ChooseMetadataInput wraps the choice for Huma.
type ChooseMetadataInput struct {
	EntryMetadataInput
	Body ChooseMetadataRequest
}

// CatalogItemOutput wraps a catalog item for Huma.
type CatalogItemOutput struct {
	Body *domain.CatalogItem
}

// AccessInput addresses a collection owner.
type AccessInput struct {
	Authorization string `header:"Authorization"`
	OwnerID       string `path:"ownerId" doc:"Collection owner's user ID"`
}

// AccessResponse is a gate decision.
type AccessResponse struct {
	State   access.State `json:"state" doc:"allowed, unauthenticated, not_friends or closed"`
	Message string       `json:"message,omitempty" doc:"Reason shown when access is denied"`
}

// AccessOutput wraps the access response for Huma.
type AccessOutput struct {
	Body AccessResponse
}

// === Session plumbing ===

// session returns the caller's browse session for the collection. A session created by this call is
// opened right away and its first view is returned as opened.
func (s *Server) session(ctx context.Context, in CollectionInput) (sess *browse.Session, opened *browse.View, err error) {
	viewer := viewerID(ctx)
	if viewer == "" {
		return nil, nil, domainerrors.ErrUnauthorized
	}
	scope, err := in.scope()
	if err != nil {
		return nil, nil, err
	}

	sess, created := s.sessions.Session(viewer, scope)
	if !created {
		return sess, nil, nil
	}

	view, err := sess.Open(ctx)
	var pe *pagination.PageError
	if err != nil && !errors.As(err, &pe) {
		s.sessions.Drop(viewer, scope)
		return nil, nil, err
	}
	return sess, &view, nil
}

// withSession runs fn on the caller's session, once more on a new session if the first was evicted meanwhile.
func withSession[T any](ctx context.Context, s *Server, in CollectionInput, fn func(*browse.Session) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		sess, _, err := s.session(ctx, in)
		if err != nil {
			return zero, err
		}
		out, err := fn(sess)
		if errors.Is(err, browse.ErrClosed) && attempt == 0 {
			continue
		}
		return out, err
	}
}

// === Handlers ===

func (s *Server) handleCheckAccess(ctx context.Context, input *AccessInput) (*AccessOutput, error) {
	state, err := s.checker.Decide(ctx, viewerID(ctx), input.OwnerID)
	if err != nil {
		return nil, err
	}
	resp := AccessResponse{State: state}
	if state != access.StateAllowed {
		resp.Message = state.Message()
	}
	return &AccessOutput{Body: resp}, nil
}

func (s *Server) handleOpenCollection(ctx context.Context, input *CollectionInput) (*BrowseOutput, error) {
	sess, opened, err := s.session(ctx, *input)
	if err != nil {
		return nil, err
	}
	if opened != nil {
		return browseOutput(*opened, nil)
	}
	return browseOutput(sess.Open(ctx))
}

func (s *Server) handleCloseCollection(ctx context.Context, input *CollectionInput) (*struct{}, error) {
	viewer := viewerID(ctx)
	if viewer == "" {
		return nil, domainerrors.ErrUnauthorized
	}
	scope, err := input.scope()
	if err != nil {
		return nil, err
	}
	s.sessions.Drop(viewer, scope)
	return nil, nil
}

func (s *Server) handleApplyFilters(ctx context.Context, input *FilterInput) (*BrowseOutput, error) {
	view, err := withSession(ctx, s, input.CollectionInput, func(sess *browse.Session) (browse.View, error) {
		spec := input.Body.form().ToSpec(sess.Domains().Domains(filter.DefaultDomains()))
		return sess.ApplyFilters(ctx, spec)
	})
	return browseOutput(view, err)
}

func (s *Server) handleGetPendingFilters(ctx context.Context, input *CollectionInput) (*SpecOutput, error) {
	spec, err := withSession(ctx, s, *input, func(sess *browse.Session) (filter.Spec, error) {
		return sess.Pending(), nil
	})
	if err != nil {
		return nil, err
	}
	return &SpecOutput{Body: spec}, nil
}

func (s *Server) handleSetPendingFilters(ctx context.Context, input *FilterInput) (*SpecOutput, error) {
	spec, err := withSession(ctx, s, input.CollectionInput, func(sess *browse.Session) (filter.Spec, error) {
		spec := input.Body.form().ToSpec(sess.Domains().Domains(filter.DefaultDomains()))
		sess.SetPending(spec)
		return sess.Pending(), nil
	})
	if err != nil {
		return nil, err
	}
	return &SpecOutput{Body: spec}, nil
}

func (s *Server) handleApplyPendingFilters(ctx context.Context, input *CollectionInput) (*BrowseOutput, error) {
	view, err := withSession(ctx, s, *input, func(sess *browse.Session) (browse.View, error) {
		return sess.ApplyPending(ctx)
	})
	return browseOutput(view, err)
}

func (s *Server) handleLoadNextPage(ctx context.Context, input *CollectionInput) (*BrowseOutput, error) {
	for attempt := 0; ; attempt++ {
		sess, opened, err := s.session(ctx, *input)
		if err != nil {
			return nil, err
		}
		// A fresh session has just loaded its first page.
		if opened != nil {
			return browseOutput(*opened, nil)
		}
		view, err := sess.LoadNextPage(ctx)
		if errors.Is(err, browse.ErrClosed) && attempt == 0 {
			continue
		}
		return browseOutput(view, err)
	}
}

func (s *Server) handleRetryPage(ctx context.Context, input *CollectionInput) (*BrowseOutput, error) {
	view, err := withSession(ctx, s, *input, func(sess *browse.Session) (browse.View, error) {
		return sess.Retry(ctx)
	})
	return browseOutput(view, err)
}

func (s *Server) handleGetBounds(ctx context.Context, input *CollectionInput) (*BoundsOutput, error) {
	resp, err := withSession(ctx, s, *input, func(sess *browse.Session) (BoundsResponse, error) {
		snap := sess.Domains()
		var resp BoundsResponse
		if !snap.Year.Empty {
			year := snap.Year.Range
			resp.Year = &year
		}
		if !snap.ExternalRating.Empty {
			rating := snap.ExternalRating.Range
			resp.ExternalRating = &rating
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return &BoundsOutput{Body: resp}, nil
}

func (s *Server) handleRefreshBounds(ctx context.Context, input *CollectionInput) (*BrowseOutput, error) {
	view, err := withSession(ctx, s, *input, func(sess *browse.Session) (browse.View, error) {
		return sess.RefreshBounds(ctx)
	})
	return browseOutput(view, err)
}

func (s *Server) handleEnrichVisible(ctx context.Context, input *CollectionInput) (*EnrichOutput, error) {
	details, err := withSession(ctx, s, *input, func(sess *browse.Session) (map[string]*metadata.Detail, error) {
		return sess.EnrichVisible(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &EnrichOutput{Body: EnrichResponse{Details: details}}, nil
}

func (s *Server) handleRefreshMetadata(ctx context.Context, input *EntryMetadataInput) (*CatalogItemOutput, error) {
	item, err := withSession(ctx, s, input.CollectionInput, func(sess *browse.Session) (*domain.CatalogItem, error) {
		return sess.RefreshMetadata(ctx, input.EntryID)
	})
	if err != nil {
		return nil, err
	}
	return &CatalogItemOutput{Body: item}, nil
}

func (s *Server) handleChooseMetadata(ctx context.Context, input *ChooseMetadataInput) (*CatalogItemOutput, error) {
	item, err := withSession(ctx, s, input.CollectionInput, func(sess *browse.Session) (*domain.CatalogItem, error) {
		return sess.ChooseMetadata(ctx, input.EntryID, input.Body.ExternalID)
	})
	if err != nil {
		return nil, err
	}
	return &CatalogItemOutput{Body: item}, nil
}
