package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeRepo struct {
	mu sync.Mutex

	profiles  []Profile
	addresses map[string]string

	fetchErr   error
	resolveErr error
	commitErr  error
	recordErr  error
	leaseTaken bool

	fetchCutoff  time.Time
	resolveCalls int
	commitCalls  int
	committedIDs []string
	committedAt  time.Time
	records      []PairRecord
	leaseHolder  string
	released     []string
}

func (r *fakeRepo) FetchEligibleProfiles(_ context.Context, cutoff time.Time) ([]Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchCutoff = cutoff
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	out := make([]Profile, len(r.profiles))
	copy(out, r.profiles)
	return out, nil
}

func (r *fakeRepo) ResolveContactAddresses(_ context.Context, contactIDs []string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveCalls++
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	out := make(map[string]string)
	for _, id := range contactIDs {
		if a, ok := r.addresses[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (r *fakeRepo) CommitLastMatchedAt(_ context.Context, ids []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitCalls++
	if r.commitErr != nil {
		return r.commitErr
	}
	r.committedIDs = append(r.committedIDs, ids...)
	r.committedAt = at
	return nil
}

func (r *fakeRepo) RecordPairs(_ context.Context, records []PairRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return r.recordErr
	}
	r.records = append(r.records, records...)
	return nil
}

func (r *fakeRepo) ListMatches(_ context.Context, profileID string, limit int) ([]MatchSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []MatchSummary
	for _, rec := range r.records {
		if rec.ProfileAID == profileID || rec.ProfileBID == profileID {
			out = append(out, MatchSummary{PairID: rec.ID, RunID: rec.RunID, MatchedAt: rec.MatchedAt})
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) AcquireRunLease(_ context.Context, holder string, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.leaseTaken {
		return false, nil
	}
	r.leaseHolder = holder
	return true, nil
}

func (r *fakeRepo) ReleaseRunLease(_ context.Context, holder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, holder)
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []*Notification
}

func (s *fakeSender) Send(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[n.RecipientAddress] {
		return errors.New("mailbox unavailable")
	}
	s.sent = append(s.sent, n)
	return nil
}

type stubIntros struct {
	text string
	err  error
}

func (s stubIntros) WriteIntro(_ context.Context, _ Profile, _ Profile) (string, error) {
	return s.text, s.err
}

// profile builds a profile that accepts anyone unless changed by opts
func profile(id string, opts ...func(*Profile)) Profile {
	p := Profile{
		ID:            id,
		ContactID:     "auth-" + id,
		Name:          "Name " + id,
		SelfInterests: []Interest{InterestMusic},
		SelfGender:    GenderFemale,
		SelfAgeRange:  AgeRange19to21,
		WantInterests: []Interest{InterestMusic},
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func selfGender(g Gender) func(*Profile) { return func(p *Profile) { p.SelfGender = g } }

func wantGender(g Gender) func(*Profile) { return func(p *Profile) { p.WantGender = g } }

func selfAge(a AgeRange) func(*Profile) { return func(p *Profile) { p.SelfAgeRange = a } }

func wantAge(a AgeRange) func(*Profile) { return func(p *Profile) { p.WantAgeRange = a } }

func selfInterests(in ...Interest) func(*Profile) {
	return func(p *Profile) { p.SelfInterests = in }
}

func wantInterests(in ...Interest) func(*Profile) {
	return func(p *Profile) { p.WantInterests = in }
}

func lastMatched(t time.Time) func(*Profile) {
	return func(p *Profile) { p.LastMatchedAt = &t }
}

func candidates(profiles ...Profile) []Candidate {
	out := make([]Candidate, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, Candidate{Profile: p, Address: p.ID + "@example.com"})
	}
	return out
}

func addressesFor(profiles ...Profile) map[string]string {
	out := make(map[string]string, len(profiles))
	for _, p := range profiles {
		out[p.ContactID] = p.ID + "@example.com"
	}
	return out
}
