package api

import "github.com/watchlogapp/watchlog-server/internal/service"

// Services groups the business services used by the handlers.
type Services struct {
	Collection      *service.CollectionService
	Profiles        *service.ProfileService
	Contacts        *service.ContactService
	Recommendations *service.RecommendationService
	Invites         *service.InviteService
}
