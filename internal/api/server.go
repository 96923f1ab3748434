// Package api exposes the watchlog engine over HTTP: chi for routing, huma for typed operations.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watchlogapp/watchlog-server/internal/access"
	"github.com/watchlogapp/watchlog-server/internal/auth"
	"github.com/watchlogapp/watchlog-server/internal/browse"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

// Version is reported by the OpenAPI document.
const Version = "1.0.0"

// Config carries the HTTP-level settings of the server.
type Config struct {
	CORSOrigins           []string
	InviteAcceptPerMinute int
	RegisterPerMinute     int
	// Gatherer backs /metrics. Nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store    store.Store
	services *Services
	tokens   *auth.TokenService
	sessions *browse.Registry
	checker  *access.Checker

	router chi.Router
	api    huma.API

	inviteLimiter   *RateLimiter
	registerLimiter *RateLimiter

	logger *slog.Logger
}

// NewServer creates a server with all routes registered.
func NewServer(st store.Store, services *Services, tokens *auth.TokenService, sessions *browse.Registry, cfg Config, logger *slog.Logger) *Server {
	if cfg.InviteAcceptPerMinute <= 0 {
		cfg.InviteAcceptPerMinute = 10
	}
	if cfg.RegisterPerMinute <= 0 {
		cfg.RegisterPerMinute = 5
	}

	router := chi.NewRouter()
	s := &Server{
		store:           st,
		services:        services,
		tokens:          tokens,
		sessions:        sessions,
		checker:         access.NewChecker(st, logger),
		router:          router,
		inviteLimiter:   NewRateLimiter(cfg.InviteAcceptPerMinute, time.Minute, cfg.InviteAcceptPerMinute),
		registerLimiter: NewRateLimiter(cfg.RegisterPerMinute, time.Minute, cfg.RegisterPerMinute),
		logger:          logger,
	}

	s.setupMiddleware(cfg)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	humaConfig := huma.DefaultConfig("Watchlog API", Version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerProfileRoutes()
	s.registerEntryRoutes()
	s.registerBrowseRoutes()
	s.registerRecommendationRoutes()
	s.registerInviteRoutes()
	s.registerContactRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, used by tests and the OpenAPI dump.
func (s *Server) API() huma.API {
	return s.api
}

// Close stops the background janitors of the server's rate limiters.
func (s *Server) Close() {
	s.inviteLimiter.Stop()
	s.registerLimiter.Stop()
}

func (s *Server) setupMiddleware(cfg Config) {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	s.router.Use(authMiddleware(s.tokens))
}
