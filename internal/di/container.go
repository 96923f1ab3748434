// Package di provides dependency injection configuration for the Watchlog server.
package di

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"

	"github.com/watchlogapp/watchlog-server/internal/auth"
	"github.com/watchlogapp/watchlog-server/internal/config"
	"github.com/watchlogapp/watchlog-server/internal/di/providers"
	"github.com/watchlogapp/watchlog-server/internal/logger"
	"github.com/watchlogapp/watchlog-server/internal/query"
	"github.com/watchlogapp/watchlog-server/internal/service"
	"github.com/watchlogapp/watchlog-server/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
// args are the command-line arguments passed to the config loader.
func NewContainer(args []string) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, providers.Args(args))
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetricsRegistry)

	// Database layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideQueryCompiler)

	// Metadata layer
	do.Provide(injector, providers.ProvideMetadataClient)

	// Auth layer
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideTokenService)

	// Business services
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideCollectionService)
	do.Provide(injector, providers.ProvideProfileService)
	do.Provide(injector, providers.ProvideContactService)
	do.Provide(injector, providers.ProvideRecommendationService)
	do.Provide(injector, providers.ProvideInviteService)

	// Browsing
	do.Provide(injector, providers.ProvideSessionRegistry)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services in dependency order and starts the HTTP server.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*prometheus.Registry](injector)

	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*query.Compiler](injector)
	if _, err := do.Invoke[*providers.MetadataClientHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*auth.TokenService](injector); err != nil {
		return err
	}

	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[*service.CollectionService](injector)
	_ = do.MustInvoke[*service.ProfileService](injector)
	_ = do.MustInvoke[*service.ContactService](injector)
	_ = do.MustInvoke[*service.RecommendationService](injector)
	_ = do.MustInvoke[*service.InviteService](injector)
	_ = do.MustInvoke[*providers.SessionRegistryHandle](injector)

	_, err := do.Invoke[*providers.HTTPServerHandle](injector)
	return err
}
