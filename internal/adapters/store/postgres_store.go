package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mikey/maccafe-matcher/internal/core"
	"go.uber.org/zap"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id text PRIMARY KEY,
		contact_id text,
		name text,
		avatar_path text,
		self_interests text[],
		self_gender text,
		self_age_range text,
		want_interests text[],
		want_gender text,
		want_age_range text,
		last_matched_at timestamptz,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_profiles_last_matched_at ON profiles (last_matched_at)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		contact_id text PRIMARY KEY,
		email text NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS match_pairs (
		id text PRIMARY KEY,
		run_id text NOT NULL,
		profile_a_id text NOT NULL,
		profile_b_id text NOT NULL,
		score integer NOT NULL,
		matched_at timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_pairs_a ON match_pairs (profile_a_id)`,
	`CREATE INDEX IF NOT EXISTS idx_match_pairs_b ON match_pairs (profile_b_id)`,
	`CREATE TABLE IF NOT EXISTS run_leases (
		name text PRIMARY KEY,
		holder text NOT NULL,
		expires_at timestamptz NOT NULL
	)`,
}

// PostgresStore implements core.Repository on a pgx connection pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to Postgres and bootstraps the schema
func NewPostgresStore(ctx context.Context, url string, maxConns int32, logger *zap.Logger) (*PostgresStore, error) {
	pcfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Postgres URL: %w", err)
	}
	if maxConns > 0 {
		pcfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to Postgres database: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	logger.Info("Connected to Postgres store", zap.Int32("max_conns", pcfg.MaxConns))
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// FetchEligibleProfiles returns profiles never matched or last matched before cutoff
func (s *PostgresStore) FetchEligibleProfiles(ctx context.Context, cutoff time.Time) ([]core.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles p
		WHERE p.last_matched_at IS NULL OR p.last_matched_at < $1
		ORDER BY p.created_at, p.id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var out []core.Profile
	for rows.Next() {
		var row pgProfileRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out = append(out, row.profile())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}

	s.logger.Debug("Fetched eligible profiles", zap.Int("count", len(out)))
	return out, nil
}

// ResolveContactAddresses maps contact ids to email addresses
func (s *PostgresStore) ResolveContactAddresses(ctx context.Context, contactIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(contactIDs))
	if len(contactIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT contact_id, email FROM contacts WHERE contact_id = ANY($1)`, contactIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		out[id] = email
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read contacts: %w", err)
	}
	return out, nil
}

// CommitLastMatchedAt sets last_matched_at for all given profiles in one statement
func (s *PostgresStore) CommitLastMatchedAt(ctx context.Context, profileIDs []string, at time.Time) error {
	if len(profileIDs) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE profiles SET last_matched_at = $1 WHERE id = ANY($2)`, at.UTC(), profileIDs); err != nil {
		return fmt.Errorf("failed to update last_matched_at: %w", err)
	}
	return nil
}

// RecordPairs bulk-loads pair records with COPY
func (s *PostgresStore) RecordPairs(ctx context.Context, records []core.PairRecord) error {
	if len(records) == 0 {
		return nil
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"match_pairs"},
		[]string{"id", "run_id", "profile_a_id", "profile_b_id", "score", "matched_at"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{r.ID, r.RunID, r.ProfileAID, r.ProfileBID, int32(r.Score), r.MatchedAt.UTC()}, nil
		}))
	if err != nil {
		return fmt.Errorf("failed to copy pair records: %w", err)
	}
	return nil
}

// ListMatches returns a profile's matches with the partner profile, newest first
func (s *PostgresStore) ListMatches(ctx context.Context, profileID string, limit int) ([]core.MatchSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT mp.id, mp.run_id, mp.matched_at, `+profileColumns+`
		FROM match_pairs mp
		JOIN profiles p ON p.id = CASE WHEN mp.profile_a_id = $1 THEN mp.profile_b_id ELSE mp.profile_a_id END
		WHERE mp.profile_a_id = $1 OR mp.profile_b_id = $1
		ORDER BY mp.matched_at DESC, mp.id
		LIMIT $2
	`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var out []core.MatchSummary
	for rows.Next() {
		var (
			summary core.MatchSummary
			row     pgProfileRow
		)
		dest := append([]any{&summary.PairID, &summary.RunID, &summary.MatchedAt}, row.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		summary.MatchedAt = summary.MatchedAt.UTC()
		summary.Partner = row.profile()
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read matches: %w", err)
	}
	return out, nil
}

// AcquireRunLease takes the run lease unless another holder owns an unexpired one
func (s *PostgresStore) AcquireRunLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	now := time.Now()
	var current string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO run_leases (name, holder, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		WHERE run_leases.expires_at < $4
		RETURNING holder
	`, leaseName, holder, now.Add(ttl), now).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert run lease: %w", err)
	}
	return current == holder, nil
}

// ReleaseRunLease drops the lease if holder still owns it
func (s *PostgresStore) ReleaseRunLease(ctx context.Context, holder string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM run_leases WHERE name = $1 AND holder = $2`, leaseName, holder); err != nil {
		return fmt.Errorf("failed to release run lease: %w", err)
	}
	return nil
}

// Import loads a seed document, replacing rows with the same keys
func (s *PostgresStore) Import(ctx context.Context, seed *Seed) error {
	base := time.Now().UTC()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i, p := range seed.Profiles {
			if _, err := tx.Exec(ctx, `
				INSERT INTO profiles (id, contact_id, name, avatar_path, self_interests, self_gender,
					self_age_range, want_interests, want_gender, want_age_range, last_matched_at, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
				ON CONFLICT (id) DO UPDATE SET
					contact_id = EXCLUDED.contact_id, name = EXCLUDED.name, avatar_path = EXCLUDED.avatar_path,
					self_interests = EXCLUDED.self_interests, self_gender = EXCLUDED.self_gender,
					self_age_range = EXCLUDED.self_age_range, want_interests = EXCLUDED.want_interests,
					want_gender = EXCLUDED.want_gender, want_age_range = EXCLUDED.want_age_range,
					last_matched_at = EXCLUDED.last_matched_at, created_at = EXCLUDED.created_at
			`, p.ID, textOrNil(p.ContactID), textOrNil(p.Name), textOrNil(p.AvatarPath),
				interestStrings(p.SelfInterests), textOrNil(string(p.SelfGender)), textOrNil(string(p.SelfAgeRange)),
				interestStrings(p.WantInterests), textOrNil(string(p.WantGender)), textOrNil(string(p.WantAgeRange)),
				p.LastMatchedAt, p.createdAt(base, i)); err != nil {
				return fmt.Errorf("failed to import profile %s: %w", p.ID, err)
			}
		}
		for _, c := range seed.Contacts {
			if _, err := tx.Exec(ctx, `
				INSERT INTO contacts (contact_id, email) VALUES ($1, $2)
				ON CONFLICT (contact_id) DO UPDATE SET email = EXCLUDED.email
			`, c.ContactID, c.Email); err != nil {
				return fmt.Errorf("failed to import contact %s: %w", c.ContactID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Imported seed data",
		zap.String("store", "Postgres"),
		zap.Int("profiles", len(seed.Profiles)),
		zap.Int("contacts", len(seed.Contacts)))
	return nil
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type pgProfileRow struct {
	id            string
	contactID     *string
	name          *string
	avatarPath    *string
	selfInterests []string
	selfGender    *string
	selfAgeRange  *string
	wantInterests []string
	wantGender    *string
	wantAgeRange  *string
	lastMatchedAt *time.Time
}

func (r *pgProfileRow) dest() []any {
	return []any{&r.id, &r.contactID, &r.name, &r.avatarPath, &r.selfInterests, &r.selfGender,
		&r.selfAgeRange, &r.wantInterests, &r.wantGender, &r.wantAgeRange, &r.lastMatchedAt}
}

func (r *pgProfileRow) profile() core.Profile {
	p := core.Profile{
		ID:            r.id,
		ContactID:     deref(r.contactID),
		Name:          deref(r.name),
		AvatarPath:    deref(r.avatarPath),
		SelfInterests: toInterests(r.selfInterests),
		SelfGender:    core.Gender(deref(r.selfGender)),
		SelfAgeRange:  core.AgeRange(deref(r.selfAgeRange)),
		WantInterests: toInterests(r.wantInterests),
		WantGender:    core.Gender(deref(r.wantGender)),
		WantAgeRange:  core.AgeRange(deref(r.wantAgeRange)),
	}
	if r.lastMatchedAt != nil {
		t := r.lastMatchedAt.UTC()
		p.LastMatchedAt = &t
	}
	return p
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func textOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toInterests(values []string) []core.Interest {
	if values == nil {
		return nil
	}
	out := make([]core.Interest, len(values))
	for i, v := range values {
		out[i] = core.Interest(v)
	}
	return out
}

func interestStrings(interests []core.Interest) []string {
	out := make([]string, len(interests))
	for i, v := range interests {
		out[i] = string(v)
	}
	return out
}
