package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/watchlogapp/watchlog-server/internal/domain"
)

func (s *Server) registerProfileRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/register",
		Summary:     "Register",
		Description: "Creates an account for a nickname and returns an access token",
		Tags:        []string{"Auth"},
		Middlewares: huma.Middlewares{s.rateLimitByIP(s.registerLimiter)},
	}, s.handleRegister)

	huma.Register(s.api, huma.Operation{
		OperationID: "getCurrentUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/me",
		Summary:     "Get current user",
		Description: "Returns the authenticated user's profile",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetCurrentUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "setNickname",
		Method:      http.MethodPut,
		Path:        "/api/v1/users/me/nickname",
		Summary:     "Change nickname",
		Description: "Changes the authenticated user's nickname",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSetNickname)

	huma.Register(s.api, huma.Operation{
		OperationID: "setLibraryVisibility",
		Method:      http.MethodPut,
		Path:        "/api/v1/users/me/visibility",
		Summary:     "Set library visibility",
		Description: "Opens or closes the authenticated user's collection to accepted contacts",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSetLibraryVisibility)

	huma.Register(s.api, huma.Operation{
		OperationID: "findUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/by-nickname/{nickname}",
		Summary:     "Find user",
		Description: "Looks up a user by nickname",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleFindUser)
}

// === DTOs ===

// UserResponse contains public user data in API responses.
type UserResponse struct {
	ID             string    `json:"id" doc:"User ID"`
	Nickname       string    `json:"nickname" doc:"Public nickname"`
	LibraryVisible bool      `json:"library_visible" doc:"Whether accepted contacts may browse the collection"`
	CreatedAt      time.Time `json:"created_at" doc:"Creation time"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:             u.ID,
		Nickname:       u.Nickname,
		LibraryVisible: u.LibraryVisible,
		CreatedAt:      u.CreatedAt,
	}
}

// UserOutput wraps a user response for Huma.
type UserOutput struct {
	Body UserResponse
}

// NicknameRequest is the body of register and nickname changes.
type NicknameRequest struct {
	Nickname string `json:"nickname" doc:"3 to 32 lowercase letters, digits or underscores"`
}

// RegisterInput wraps the register request for Huma.
type RegisterInput struct {
	Body NicknameRequest
}

// AuthResponse is returned by register.
type AuthResponse struct {
	User        UserResponse `json:"user" doc:"The created user"`
	AccessToken string       `json:"access_token" doc:"PASETO bearer token"`
	ExpiresAt   time.Time    `json:"expires_at" doc:"Token expiry"`
}

// AuthOutput wraps the auth response for Huma.
type AuthOutput struct {
	Body AuthResponse
}

// AuthenticatedInput carries only the bearer token.
type AuthenticatedInput struct {
	Authorization string `header:"Authorization"`
}

// SetNicknameInput wraps the nickname change for Huma.
type SetNicknameInput struct {
	Authorization string `header:"Authorization"`
	Body          NicknameRequest
}

// VisibilityRequest toggles library visibility.
type VisibilityRequest struct {
	Visible bool `json:"visible" doc:"Whether accepted contacts may browse the collection"`
}

// SetVisibilityInput wraps the visibility change for Huma.
type SetVisibilityInput struct {
	Authorization string `header:"Authorization"`
	Body          VisibilityRequest
}

// FindUserInput looks a user up by nickname.
type FindUserInput struct {
	Authorization string `header:"Authorization"`
	Nickname      string `path:"nickname" doc:"Nickname to look up"`
}

// === Handlers ===

func (s *Server) handleRegister(ctx context.Context, input *RegisterInput) (*AuthOutput, error) {
	user, err := s.services.Profiles.Register(ctx, input.Body.Nickname)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to issue token", err)
	}

	return &AuthOutput{
		Body: AuthResponse{
			User:        toUserResponse(user),
			AccessToken: token,
			ExpiresAt:   time.Now().Add(s.tokens.Lifetime()),
		},
	}, nil
}

func (s *Server) handleGetCurrentUser(ctx context.Context, _ *AuthenticatedInput) (*UserOutput, error) {
	user, err := s.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: toUserResponse(user)}, nil
}

func (s *Server) handleSetNickname(ctx context.Context, input *SetNicknameInput) (*UserOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.services.Profiles.SetNickname(ctx, userID, input.Body.Nickname)
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: toUserResponse(user)}, nil
}

func (s *Server) handleSetLibraryVisibility(ctx context.Context, input *SetVisibilityInput) (*UserOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.services.Profiles.SetLibraryVisibility(ctx, userID, input.Body.Visible)
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: toUserResponse(user)}, nil
}

func (s *Server) handleFindUser(ctx context.Context, input *FindUserInput) (*UserOutput, error) {
	if _, err := GetUserID(ctx); err != nil {
		return nil, err
	}

	user, err := s.services.Profiles.FindByNickname(ctx, input.Nickname)
	if err != nil {
		return nil, err
	}
	return &UserOutput{Body: toUserResponse(user)}, nil
}
