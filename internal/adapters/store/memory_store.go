package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mikey/maccafe-matcher/internal/core"
	"go.uber.org/zap"
)

type memoryProfile struct {
	profile   core.Profile
	createdAt time.Time
}

type memoryLease struct {
	holder    string
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of core.Repository
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*memoryProfile
	contacts map[string]string
	pairs    []core.PairRecord
	lease    *memoryLease
	logger   *zap.Logger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*memoryProfile),
		contacts: make(map[string]string),
		logger:   logger,
	}
}

// Import loads a seed document, replacing rows with the same keys
func (s *MemoryStore) Import(_ context.Context, seed *Seed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := time.Now().UTC()
	for i, p := range seed.Profiles {
		s.profiles[p.ID] = &memoryProfile{profile: p.Profile(), createdAt: p.createdAt(base, i)}
	}
	for _, c := range seed.Contacts {
		s.contacts[c.ContactID] = c.Email
	}

	s.logger.Info("Imported seed data",
		zap.Int("profiles", len(seed.Profiles)),
		zap.Int("contacts", len(seed.Contacts)))
	return nil
}

// FetchEligibleProfiles returns profiles off cooldown ordered by creation time
func (s *MemoryStore) FetchEligibleProfiles(_ context.Context, cutoff time.Time) ([]core.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*memoryProfile, 0, len(s.profiles))
	for _, row := range s.profiles {
		if last := row.profile.LastMatchedAt; last == nil || last.Before(cutoff) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].createdAt.Equal(rows[j].createdAt) {
			return rows[i].createdAt.Before(rows[j].createdAt)
		}
		return rows[i].profile.ID < rows[j].profile.ID
	})

	out := make([]core.Profile, len(rows))
	for i, row := range rows {
		out[i] = cloneProfile(row.profile)
	}
	return out, nil
}

// ResolveContactAddresses looks up addresses for the given contact ids
func (s *MemoryStore) ResolveContactAddresses(_ context.Context, contactIDs []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(contactIDs))
	for _, id := range contactIDs {
		if email, ok := s.contacts[id]; ok {
			out[id] = email
		}
	}
	return out, nil
}

// CommitLastMatchedAt stamps the given profiles as matched
func (s *MemoryStore) CommitLastMatchedAt(_ context.Context, profileIDs []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range profileIDs {
		if row, ok := s.profiles[id]; ok {
			stamp := at.UTC()
			row.profile.LastMatchedAt = &stamp
		}
	}
	return nil
}

// RecordPairs appends pair records
func (s *MemoryStore) RecordPairs(_ context.Context, records []core.PairRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pairs = append(s.pairs, records...)
	return nil
}

// ListMatches returns a profile's matches, newest first
func (s *MemoryStore) ListMatches(_ context.Context, profileID string, limit int) ([]core.MatchSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.MatchSummary
	for i := len(s.pairs) - 1; i >= 0; i-- {
		rec := s.pairs[i]
		var partnerID string
		switch profileID {
		case rec.ProfileAID:
			partnerID = rec.ProfileBID
		case rec.ProfileBID:
			partnerID = rec.ProfileAID
		default:
			continue
		}
		partner, ok := s.profiles[partnerID]
		if !ok {
			continue
		}
		out = append(out, core.MatchSummary{
			PairID:    rec.ID,
			RunID:     rec.RunID,
			MatchedAt: rec.MatchedAt,
			Partner:   cloneProfile(partner.profile),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].MatchedAt.After(out[j].MatchedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AcquireRunLease takes the run lease unless another holder owns an unexpired one
func (s *MemoryStore) AcquireRunLease(_ context.Context, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.lease != nil && s.lease.holder != holder && !s.lease.expiresAt.Before(now) {
		return false, nil
	}
	s.lease = &memoryLease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

// ReleaseRunLease drops the lease if holder still owns it
func (s *MemoryStore) ReleaseRunLease(_ context.Context, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lease != nil && s.lease.holder == holder {
		s.lease = nil
	}
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}

func cloneProfile(p core.Profile) core.Profile {
	p.SelfInterests = append([]core.Interest(nil), p.SelfInterests...)
	p.WantInterests = append([]core.Interest(nil), p.WantInterests...)
	if p.LastMatchedAt != nil {
		t := *p.LastMatchedAt
		p.LastMatchedAt = &t
	}
	return p
}
