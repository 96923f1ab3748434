package providers

import (
	"github.com/samber/do/v2"

	"github.com/watchlogapp/watchlog-server/internal/config"
	"github.com/watchlogapp/watchlog-server/internal/logger"
	"github.com/watchlogapp/watchlog-server/internal/query"
	"github.com/watchlogapp/watchlog-server/internal/store/sqlite"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the database store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	db, err := sqlite.Open(cfg.Database.Path, log.Logger)
	if err != nil {
		return nil, err
	}
	db.SetFullScanBatch(cfg.Collection.FullScanBatch)

	log.Info("Database initialized",
		"path", cfg.Database.Path,
		"full_scan_batch", cfg.Collection.FullScanBatch,
	)

	return &StoreHandle{Store: db}, nil
}

// ProvideQueryCompiler provides the collection query compiler.
func ProvideQueryCompiler(i do.Injector) (*query.Compiler, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return query.NewCompiler(
		query.WithPageSize(cfg.Collection.PageSize),
		query.WithJoinedSortPaging(cfg.Collection.JoinedSortPaging),
	), nil
}
