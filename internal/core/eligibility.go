package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultCooldown is the minimum time between two matches of the same profile
const DefaultCooldown = 7 * 24 * time.Hour

// minPoolSize is the smallest pool that can produce a pair
const minPoolSize = 2

// EligibilityFilter builds the candidate pool of a run
type EligibilityFilter struct {
	store    ProfileStore
	policy   AddressPolicy
	cooldown time.Duration
	logger   *zap.Logger
}

// NewEligibilityFilter creates a new eligibility filter. A nil policy accepts every
// non-empty address; a non-positive cooldown falls back to DefaultCooldown.
func NewEligibilityFilter(store ProfileStore, policy AddressPolicy, cooldown time.Duration, logger *zap.Logger) *EligibilityFilter {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &EligibilityFilter{
		store:    store,
		policy:   policy,
		cooldown: cooldown,
		logger:   logger,
	}
}

// Cutoff returns the instant before which a previous match no longer blocks a profile
func (f *EligibilityFilter) Cutoff(now time.Time) time.Time {
	return now.Add(-f.cooldown)
}

// OffCooldown reports whether p may enter a pool built with the given cutoff
func OffCooldown(p *Profile, cutoff time.Time) bool {
	return p.LastMatchedAt == nil || p.LastMatchedAt.Before(cutoff)
}

// SelectCandidates fetches eligible profiles and resolves their addresses.
// Store failures are returned as errors; an undersized pool is not an error.
func (f *EligibilityFilter) SelectCandidates(ctx context.Context, now time.Time) ([]Candidate, error) {
	cutoff := f.Cutoff(now)

	profiles, err := f.store.FetchEligibleProfiles(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch eligible profiles: %w", err)
	}

	profiles = f.snapshot(profiles, cutoff)
	if len(profiles) < minPoolSize {
		return nil, nil
	}

	contactIDs := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if p.ContactID != "" {
			contactIDs = append(contactIDs, p.ContactID)
		}
	}

	addresses, err := f.store.ResolveContactAddresses(ctx, contactIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve contact addresses: %w", err)
	}

	candidates := make([]Candidate, 0, len(profiles))
	for _, p := range profiles {
		address := addresses[p.ContactID]
		if p.ContactID == "" || address == "" {
			f.logger.Debug("Dropping profile without address", zap.String("profile_id", p.ID))
			continue
		}
		if f.policy != nil && !f.policy.Deliverable(address) {
			f.logger.Debug("Dropping profile with undeliverable address", zap.String("profile_id", p.ID))
			continue
		}
		candidates = append(candidates, Candidate{Profile: p, Address: address})
	}

	f.logger.Debug("Candidate pool built",
		zap.Int("eligible", len(profiles)),
		zap.Int("candidates", len(candidates)),
		zap.Time("cutoff", cutoff))

	return candidates, nil
}

// snapshot re-applies the cooldown rule and drops repeated ids, keeping order
func (f *EligibilityFilter) snapshot(profiles []Profile, cutoff time.Time) []Profile {
	seen := make(map[string]struct{}, len(profiles))
	out := make([]Profile, 0, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		if !OffCooldown(p, cutoff) {
			f.logger.Warn("Store returned profile still on cooldown", zap.String("profile_id", p.ID))
			continue
		}
		if _, dup := seen[p.ID]; dup {
			f.logger.Warn("Store returned duplicate profile", zap.String("profile_id", p.ID))
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, *p)
	}
	return out
}
