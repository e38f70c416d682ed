package factory

import (
	"context"
	"fmt"

	"github.com/Cfomodz/easemail/internal/adapters/store"
	"github.com/Cfomodz/easemail/internal/config"
	"github.com/Cfomodz/easemail/internal/core"
	"go.uber.org/zap"
)

// StoreFactory creates preference stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore opens the configured preference store
func (f *StoreFactory) CreateStore(ctx context.Context) (core.PreferenceStore, error) {
	storeCfg := f.cfg.GetStore()

	switch storeCfg.Type {
	case "memory":
		return store.NewMemoryStore(f.logger), nil
	case "sqlite", "":
		return store.NewSQLiteStore(ctx, storeCfg.SQLitePath, f.logger)
	case "mysql":
		return store.NewMySQLStore(ctx, storeCfg.MySQLDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}
