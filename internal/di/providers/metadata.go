package providers

import (
	"github.com/samber/do/v2"

	"github.com/watchlogapp/watchlog-server/internal/config"
	"github.com/watchlogapp/watchlog-server/internal/logger"
	"github.com/watchlogapp/watchlog-server/internal/metadata"
)

// MetadataClientHandle wraps the provider client with shutdown capability.
// Client is nil when no provider is configured.
type MetadataClientHandle struct {
	*metadata.Client
}

// Shutdown implements do.Shutdownable.
func (h *MetadataClientHandle) Shutdown() error {
	if h.Client != nil {
		h.Client.Close()
	}
	return nil
}

// ProvideMetadataClient provides the external metadata provider client.
func ProvideMetadataClient(i do.Injector) (*MetadataClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.MetadataEnabled() {
		log.Info("Metadata provider not configured, enrichment disabled")
		return &MetadataClientHandle{}, nil
	}

	client, err := metadata.New(metadata.Config{
		BaseURL:           cfg.Metadata.ProviderURL,
		Timeout:           cfg.Metadata.Timeout,
		RequestsPerSecond: cfg.Metadata.RequestsPerSecond,
		Burst:             cfg.Metadata.Burst,
		BreakerFailures:   cfg.Metadata.BreakerFailures,
		BreakerTimeout:    cfg.Metadata.BreakerTimeout,
	}, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Metadata client initialized",
		"provider_url", cfg.Metadata.ProviderURL,
		"requests_per_second", cfg.Metadata.RequestsPerSecond,
	)

	return &MetadataClientHandle{Client: client}, nil
}
