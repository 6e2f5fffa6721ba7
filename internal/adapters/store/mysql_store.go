package store

import (
	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "MySQL",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id VARCHAR(64) PRIMARY KEY,
			contact_id VARCHAR(64) NULL,
			name VARCHAR(255) NULL,
			avatar_path VARCHAR(512) NULL,
			self_interests TEXT NULL,
			self_gender VARCHAR(16) NULL,
			self_age_range VARCHAR(16) NULL,
			want_interests TEXT NULL,
			want_gender VARCHAR(16) NULL,
			want_age_range VARCHAR(16) NULL,
			last_matched_at DATETIME(6) NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_profiles_last_matched_at (last_matched_at),
			INDEX idx_profiles_created_at (created_at, id)
		)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			contact_id VARCHAR(64) PRIMARY KEY,
			email VARCHAR(320) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS match_pairs (
			id CHAR(36) PRIMARY KEY,
			run_id CHAR(36) NOT NULL,
			profile_a_id VARCHAR(64) NOT NULL,
			profile_b_id VARCHAR(64) NOT NULL,
			score INT NOT NULL,
			matched_at DATETIME(6) NOT NULL,
			INDEX idx_match_pairs_a (profile_a_id),
			INDEX idx_match_pairs_b (profile_b_id)
		)`,
		`CREATE TABLE IF NOT EXISTS run_leases (
			name VARCHAR(64) PRIMARY KEY,
			holder VARCHAR(64) NOT NULL,
			expires_at DATETIME(6) NOT NULL
		)`,
	},
	// holder is assigned first, so the second IF sees whether the takeover happened
	leaseUpsert: `
		INSERT INTO run_leases (name, holder, expires_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			holder = IF(expires_at < ?, VALUES(holder), holder),
			expires_at = IF(holder = VALUES(holder), VALUES(expires_at), expires_at)
	`,
}

// NewMySQLStore connects to a MySQL profile store and bootstraps its schema
func NewMySQLStore(dsn string, logger *zap.Logger) (*SQLStore, error) {
	s, err := openSQLStore("mysql", dsn, mysqlDialect, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to MySQL store")
	return s, nil
}
