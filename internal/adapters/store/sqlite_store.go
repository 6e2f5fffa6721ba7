package store

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "SQLite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			contact_id TEXT,
			name TEXT,
			avatar_path TEXT,
			self_interests TEXT,
			self_gender TEXT,
			self_age_range TEXT,
			want_interests TEXT,
			want_gender TEXT,
			want_age_range TEXT,
			last_matched_at TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_last_matched_at ON profiles(last_matched_at)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_created_at ON profiles(created_at, id)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			contact_id TEXT PRIMARY KEY,
			email TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS match_pairs (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			profile_a_id TEXT NOT NULL,
			profile_b_id TEXT NOT NULL,
			score INTEGER NOT NULL,
			matched_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_pairs_a ON match_pairs(profile_a_id)`,
		`CREATE INDEX IF NOT EXISTS idx_match_pairs_b ON match_pairs(profile_b_id)`,
		`CREATE TABLE IF NOT EXISTS run_leases (
			name TEXT PRIMARY KEY,
			holder TEXT NOT NULL,
			expires_at TEXT NOT NULL
		)`,
	},
	leaseUpsert: `
		INSERT INTO run_leases (name, holder, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE run_leases.expires_at < ?
	`,
}

// NewSQLiteStore opens (and if needed creates) a SQLite profile store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLStore, error) {
	s, err := openSQLStore("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", dbPath), sqliteDialect, logger)
	if err != nil {
		return nil, err
	}

	// A single writer avoids SQLITE_BUSY between the run and the HTTP read path
	s.db.SetMaxOpenConns(1)

	logger.Info("Opened SQLite store", zap.String("path", dbPath))
	return s, nil
}
