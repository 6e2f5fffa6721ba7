package core

import (
	"context"
	"time"
)

// ProfileStore is the read side of the profile database plus the cooldown write
type ProfileStore interface {
	// FetchEligibleProfiles returns profiles never matched or last matched before cutoff,
	// in stable pool order
	FetchEligibleProfiles(ctx context.Context, cutoff time.Time) ([]Profile, error)

	// ResolveContactAddresses maps contact ids to email addresses; unknown ids are omitted
	ResolveContactAddresses(ctx context.Context, contactIDs []string) (map[string]string, error)

	// CommitLastMatchedAt sets last_matched_at for all given profile ids
	CommitLastMatchedAt(ctx context.Context, profileIDs []string, at time.Time) error
}

// MatchHistory persists and reads pairs created by runs
type MatchHistory interface {
	// RecordPairs stores one record per pair
	RecordPairs(ctx context.Context, records []PairRecord) error

	// ListMatches returns the most recent matches of a profile, newest first
	ListMatches(ctx context.Context, profileID string, limit int) ([]MatchSummary, error)
}

// RunLocker guards a run against overlapping runs in other processes
type RunLocker interface {
	// AcquireRunLease takes the run lease for holder unless another holder owns an unexpired one
	AcquireRunLease(ctx context.Context, holder string, ttl time.Duration) (bool, error)

	// ReleaseRunLease drops the lease if holder still owns it
	ReleaseRunLease(ctx context.Context, holder string) error
}

// Repository is everything the matching service needs from storage
type Repository interface {
	ProfileStore
	MatchHistory
	RunLocker
}

// NotificationSender delivers a single notification
type NotificationSender interface {
	Send(ctx context.Context, n *Notification) error
}

// IntroWriter produces a short personalised introduction for a notification
type IntroWriter interface {
	WriteIntro(ctx context.Context, recipient Profile, match Profile) (string, error)
}

// AddressPolicy decides whether a resolved address may receive mail
type AddressPolicy interface {
	Deliverable(address string) bool
}

// RunObserver is told about every finished run
type RunObserver interface {
	RunFinished(result *RunResult, elapsed time.Duration, err error)
}
