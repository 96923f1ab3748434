package providers

import (
	"github.com/samber/do/v2"

	"github.com/watchlogapp/watchlog-server/internal/browse"
	"github.com/watchlogapp/watchlog-server/internal/config"
	"github.com/watchlogapp/watchlog-server/internal/logger"
	"github.com/watchlogapp/watchlog-server/internal/query"
	"github.com/watchlogapp/watchlog-server/internal/service"
)

// SessionRegistryHandle wraps the browse session registry with shutdown capability.
type SessionRegistryHandle struct {
	*browse.Registry
}

// Shutdown implements do.Shutdownable.
func (h *SessionRegistryHandle) Shutdown() error {
	h.Registry.Close()
	return nil
}

// ProvideSessionRegistry provides the registry of open collection browse sessions.
func ProvideSessionRegistry(i do.Injector) (*SessionRegistryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	compiler := do.MustInvoke[*query.Compiler](i)
	collections := do.MustInvoke[*service.CollectionService](i)
	metaHandle := do.MustInvoke[*MetadataClientHandle](i)

	deps := browse.Deps{
		Store:    storeHandle.Store,
		Compiler: compiler,
		Metadata: collections,
		Logger:   log.Logger,
	}
	// Assigned only when set so a nil client stays a nil Provider.
	if metaHandle.Client != nil {
		deps.Provider = metaHandle.Client
	}

	registry := browse.NewRegistry(deps, cfg.Collection.SessionIdleTTL)
	log.Info("Browse sessions ready",
		"page_size", compiler.PageSize(),
		"idle_ttl", cfg.Collection.SessionIdleTTL,
		"enrichment", deps.Provider != nil,
	)

	return &SessionRegistryHandle{Registry: registry}, nil
}
