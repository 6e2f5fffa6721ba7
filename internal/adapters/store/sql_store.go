package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mikey/maccafe-matcher/internal/core"
	"go.uber.org/zap"
)

const (
	// timestampLayout sorts lexicographically, which the SQLite comparisons rely on
	timestampLayout = "2006-01-02 15:04:05.000000"
	leaseName       = "matching-run"
	// maxInClause bounds the number of placeholders in a single IN list
	maxInClause = 500
)

// dialect holds what differs between the database/sql backed stores
type dialect struct {
	name   string
	schema []string
	// leaseUpsert takes name, holder, expires_at and now, and must only overwrite an expired lease
	leaseUpsert string
}

const profileColumns = `p.id, p.contact_id, p.name, p.avatar_path, p.self_interests, p.self_gender,
	p.self_age_range, p.want_interests, p.want_gender, p.want_age_range, p.last_matched_at`

// SQLStore implements core.Repository on top of database/sql
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

func openSQLStore(driver, dsn string, d dialect, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.name, err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", d.name, err)
	}

	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLStore{db: db, dialect: d, logger: logger}, nil
}

// FetchEligibleProfiles returns profiles never matched or last matched before cutoff
func (s *SQLStore) FetchEligibleProfiles(ctx context.Context, cutoff time.Time) ([]core.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles p
		WHERE p.last_matched_at IS NULL OR p.last_matched_at < ?
		ORDER BY p.created_at, p.id
	`, formatTimestamp(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var out []core.Profile
	for rows.Next() {
		var row profileRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		p, err := row.profile()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}

	s.logger.Debug("Fetched eligible profiles", zap.Int("count", len(out)))
	return out, nil
}

// ResolveContactAddresses maps contact ids to email addresses
func (s *SQLStore) ResolveContactAddresses(ctx context.Context, contactIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(contactIDs))
	for _, chunk := range chunks(contactIDs, maxInClause) {
		if err := s.resolveChunk(ctx, chunk, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) resolveChunk(ctx context.Context, ids []string, out map[string]string) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT contact_id, email FROM contacts WHERE contact_id IN (`+placeholders(len(ids))+`)`,
		anySlice(ids)...)
	if err != nil {
		return fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			return fmt.Errorf("failed to scan contact: %w", err)
		}
		out[id] = email
	}
	return rows.Err()
}

// CommitLastMatchedAt sets last_matched_at for all given profiles in one transaction
func (s *SQLStore) CommitLastMatchedAt(ctx context.Context, profileIDs []string, at time.Time) error {
	if len(profileIDs) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stamp := formatTimestamp(at)
		for _, chunk := range chunks(profileIDs, maxInClause) {
			args := append([]any{stamp}, anySlice(chunk)...)
			if _, err := tx.ExecContext(ctx,
				`UPDATE profiles SET last_matched_at = ? WHERE id IN (`+placeholders(len(chunk))+`)`,
				args...); err != nil {
				return fmt.Errorf("failed to update last_matched_at: %w", err)
			}
		}
		return nil
	})
}

// RecordPairs stores one row per pair
func (s *SQLStore) RecordPairs(ctx context.Context, records []core.PairRecord) error {
	if len(records) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO match_pairs (id, run_id, profile_a_id, profile_b_id, score, matched_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare pair insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.ExecContext(ctx, r.ID, r.RunID, r.ProfileAID, r.ProfileBID, r.Score,
				formatTimestamp(r.MatchedAt)); err != nil {
				return fmt.Errorf("failed to insert pair %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// ListMatches returns a profile's matches with the partner profile, newest first
func (s *SQLStore) ListMatches(ctx context.Context, profileID string, limit int) ([]core.MatchSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.id, mp.run_id, mp.matched_at, `+profileColumns+`
		FROM match_pairs mp
		JOIN profiles p ON p.id = CASE WHEN mp.profile_a_id = ? THEN mp.profile_b_id ELSE mp.profile_a_id END
		WHERE mp.profile_a_id = ? OR mp.profile_b_id = ?
		ORDER BY mp.matched_at DESC, mp.id
		LIMIT ?
	`, profileID, profileID, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var out []core.MatchSummary
	for rows.Next() {
		var (
			summary   core.MatchSummary
			matchedAt string
			row       profileRow
		)
		dest := append([]any{&summary.PairID, &summary.RunID, &matchedAt}, row.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		if summary.MatchedAt, err = parseTimestamp(matchedAt); err != nil {
			return nil, err
		}
		if summary.Partner, err = row.profile(); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read matches: %w", err)
	}
	return out, nil
}

// AcquireRunLease takes the run lease unless another holder owns an unexpired one
func (s *SQLStore) AcquireRunLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	var acquired bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		if _, err := tx.ExecContext(ctx, s.dialect.leaseUpsert,
			leaseName, holder, formatTimestamp(now.Add(ttl)), formatTimestamp(now)); err != nil {
			return fmt.Errorf("failed to upsert run lease: %w", err)
		}

		var current string
		if err := tx.QueryRowContext(ctx,
			`SELECT holder FROM run_leases WHERE name = ?`, leaseName).Scan(&current); err != nil {
			return fmt.Errorf("failed to read run lease: %w", err)
		}
		acquired = current == holder
		return nil
	})
	return acquired, err
}

// ReleaseRunLease drops the lease if holder still owns it
func (s *SQLStore) ReleaseRunLease(ctx context.Context, holder string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM run_leases WHERE name = ? AND holder = ?`, leaseName, holder); err != nil {
		return fmt.Errorf("failed to release run lease: %w", err)
	}
	return nil
}

// Import loads a seed document, replacing rows with the same keys
func (s *SQLStore) Import(ctx context.Context, seed *Seed) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		base := time.Now().UTC()
		for i, p := range seed.Profiles {
			self, err := encodeInterests(p.SelfInterests)
			if err != nil {
				return err
			}
			want, err := encodeInterests(p.WantInterests)
			if err != nil {
				return err
			}
			var last any
			if p.LastMatchedAt != nil {
				last = formatTimestamp(*p.LastMatchedAt)
			}
			if _, err := tx.ExecContext(ctx, `
				REPLACE INTO profiles (id, contact_id, name, avatar_path, self_interests, self_gender,
					self_age_range, want_interests, want_gender, want_age_range, last_matched_at, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, p.ID, nullString(p.ContactID), nullString(p.Name), nullString(p.AvatarPath), self,
				nullString(string(p.SelfGender)), nullString(string(p.SelfAgeRange)), want,
				nullString(string(p.WantGender)), nullString(string(p.WantAgeRange)), last,
				formatTimestamp(p.createdAt(base, i))); err != nil {
				return fmt.Errorf("failed to import profile %s: %w", p.ID, err)
			}
		}
		for _, c := range seed.Contacts {
			if _, err := tx.ExecContext(ctx,
				`REPLACE INTO contacts (contact_id, email) VALUES (?, ?)`, c.ContactID, c.Email); err != nil {
				return fmt.Errorf("failed to import contact %s: %w", c.ContactID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Imported seed data",
		zap.String("store", s.dialect.name),
		zap.Int("profiles", len(seed.Profiles)),
		zap.Int("contacts", len(seed.Contacts)))
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close %s database: %w", s.dialect.name, err)
	}
	return nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// profileRow holds the nullable columns of a profile row
type profileRow struct {
	id            string
	contactID     sql.NullString
	name          sql.NullString
	avatarPath    sql.NullString
	selfInterests sql.NullString
	selfGender    sql.NullString
	selfAgeRange  sql.NullString
	wantInterests sql.NullString
	wantGender    sql.NullString
	wantAgeRange  sql.NullString
	lastMatchedAt sql.NullString
}

func (r *profileRow) dest() []any {
	return []any{&r.id, &r.contactID, &r.name, &r.avatarPath, &r.selfInterests, &r.selfGender,
		&r.selfAgeRange, &r.wantInterests, &r.wantGender, &r.wantAgeRange, &r.lastMatchedAt}
}

func (r *profileRow) profile() (core.Profile, error) {
	self, err := decodeInterests(r.selfInterests.String)
	if err != nil {
		return core.Profile{}, fmt.Errorf("profile %s: %w", r.id, err)
	}
	want, err := decodeInterests(r.wantInterests.String)
	if err != nil {
		return core.Profile{}, fmt.Errorf("profile %s: %w", r.id, err)
	}

	p := core.Profile{
		ID:            r.id,
		ContactID:     r.contactID.String,
		Name:          r.name.String,
		AvatarPath:    r.avatarPath.String,
		SelfInterests: self,
		SelfGender:    core.Gender(r.selfGender.String),
		SelfAgeRange:  core.AgeRange(r.selfAgeRange.String),
		WantInterests: want,
		WantGender:    core.Gender(r.wantGender.String),
		WantAgeRange:  core.AgeRange(r.wantAgeRange.String),
	}
	if r.lastMatchedAt.Valid {
		t, err := parseTimestamp(r.lastMatchedAt.String)
		if err != nil {
			return core.Profile{}, fmt.Errorf("profile %s: %w", r.id, err)
		}
		p.LastMatchedAt = &t
	}
	return p, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp accepts the stored layout and RFC 3339, which is what a MySQL
// DSN with parseTime=true hands back for DATETIME columns
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(timestampLayout, s, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func encodeInterests(interests []core.Interest) (string, error) {
	if interests == nil {
		interests = []core.Interest{}
	}
	data, err := json.Marshal(interests)
	if err != nil {
		return "", fmt.Errorf("failed to encode interests: %w", err)
	}
	return string(data), nil
}

func decodeInterests(s string) ([]core.Interest, error) {
	if s == "" {
		return nil, nil
	}
	var out []core.Interest
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("invalid interests %q: %w", s, err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func chunks(values []string, size int) [][]string {
	var out [][]string
	for len(values) > size {
		out = append(out, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		out = append(out, values)
	}
	return out
}
