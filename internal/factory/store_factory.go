package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/maccafe-matcher/internal/adapters/store"
	"github.com/mikey/maccafe-matcher/internal/config"
	"go.uber.org/zap"
)

// StoreFactory creates profile stores based on configuration
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

// CreateStore opens the configured store and imports the seed file if one is set
func (f *StoreFactory) CreateStore(ctx context.Context) (store.Store, error) {
	storeCfg, err := f.cfg.GetStore()
	if err != nil {
		return nil, err
	}

	var s store.Store
	switch storeCfg.Type {
	case "memory":
		s = store.NewMemoryStore(f.logger)
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		s, err = store.NewSQLiteStore(storeCfg.SQLitePath, f.logger)
	case "mysql":
		s, err = store.NewMySQLStore(storeCfg.MySQLDSN, f.logger)
	case "postgres":
		s, err = store.NewPostgresStore(ctx, storeCfg.PostgresURL, storeCfg.PostgresMaxConns, f.logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if storeCfg.SeedFile != "" {
		seed, err := store.LoadSeed(storeCfg.SeedFile)
		if err == nil {
			err = s.Import(ctx, seed)
		}
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}
