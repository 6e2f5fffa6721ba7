package store

import (
	"context"

	"github.com/mikey/maccafe-matcher/internal/core"
)

// Store is a repository that owns its connections and accepts seed data
type Store interface {
	core.Repository
	Import(ctx context.Context, seed *Seed) error
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
