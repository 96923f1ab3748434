// Package providers contains dependency injection providers for the Watchlog server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/watchlogapp/watchlog-server/internal/config"
	"github.com/watchlogapp/watchlog-server/internal/logger"
)

// Args are the command-line arguments the config is parsed from.
type Args []string

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	args := do.MustInvoke[Args](i)
	return config.LoadConfig(args)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting Watchlog Server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"database_path", cfg.Database.Path,
		"metadata_enabled", cfg.MetadataEnabled(),
	)

	return log, nil
}
