package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

func (s *Server) registerContactRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listContacts",
		Method:      http.MethodGet,
		Path:        "/api/v1/contacts",
		Summary:     "List contacts",
		Description: "Lists the caller's contacts with their status",
		Tags:        []string{"Contacts"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListContacts)

	huma.Register(s.api, huma.Operation{
		OperationID:   "removeContact",
		Method:        http.MethodDelete,
		Path:          "/api/v1/contacts/{userId}",
		Summary:       "Remove contact",
		Description:   "Revokes the contact relation in both directions",
		Tags:          []string{"Contacts"},
		DefaultStatus: http.StatusNoContent,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleRemoveContact)

	huma.Register(s.api, huma.Operation{
		OperationID:   "blockContact",
		Method:        http.MethodPost,
		Path:          "/api/v1/contacts/{userId}/block",
		Summary:       "Block user",
		Description:   "Blocks a user; the relation cannot be restored through invites",
		Tags:          []string{"Contacts"},
		DefaultStatus: http.StatusNoContent,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleBlockContact)
}

// ContactListOutput wraps a page of contacts for Huma.
type ContactListOutput struct {
	Body *store.PaginatedResult[*domain.Contact]
}

// ContactInput addresses one other user.
type ContactInput struct {
	Authorization string `header:"Authorization"`
	UserID        string `path:"userId" doc:"The other user's ID"`
}

func (s *Server) handleListContacts(ctx context.Context, input *ListInput) (*ContactListOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	page, err := s.services.Contacts.ListContacts(ctx, userID, input.params())
	if err != nil {
		return nil, err
	}
	return &ContactListOutput{Body: page}, nil
}

func (s *Server) handleRemoveContact(ctx context.Context, input *ContactInput) (*struct{}, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.services.Contacts.RemoveContact(ctx, userID, input.UserID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleBlockContact(ctx context.Context, input *ContactInput) (*struct{}, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.services.Contacts.Block(ctx, userID, input.UserID); err != nil {
		return nil, err
	}
	return nil, nil
}
