package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"

	"github.com/watchlogapp/watchlog-server/internal/api"
	"github.com/watchlogapp/watchlog-server/internal/auth"
	"github.com/watchlogapp/watchlog-server/internal/config"
	"github.com/watchlogapp/watchlog-server/internal/logger"
	"github.com/watchlogapp/watchlog-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.api.Close()
	return err
}

// ProvideHTTPServer provides the HTTP server and starts it in the background.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	sessions := do.MustInvoke[*SessionRegistryHandle](i)
	registry := do.MustInvoke[*prometheus.Registry](i)

	services := &api.Services{
		Collection:      do.MustInvoke[*service.CollectionService](i),
		Profiles:        do.MustInvoke[*service.ProfileService](i),
		Contacts:        do.MustInvoke[*service.ContactService](i),
		Recommendations: do.MustInvoke[*service.RecommendationService](i),
		Invites:         do.MustInvoke[*service.InviteService](i),
	}

	handler := api.NewServer(storeHandle.Store, services, tokens, sessions.Registry, api.Config{
		CORSOrigins:           cfg.Server.CORSOrigins,
		InviteAcceptPerMinute: cfg.Server.InviteAcceptPerMinute,
		RegisterPerMinute:     cfg.Server.RegisterPerMinute,
		Gatherer:              registry,
	}, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, api: handler}, nil
}
