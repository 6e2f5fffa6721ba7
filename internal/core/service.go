package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const notEnoughProfilesMessage = "Not enough profiles to match"

// Settings tunes a matching service
type Settings struct {
	Cooldown          time.Duration
	LeaseTTL          time.Duration
	ExclusiveRuns     bool
	NotifyConcurrency int
	SendTimeout       time.Duration
	IntroTimeout      time.Duration
}

// MatchingService runs the periodic matching cycle
type MatchingService struct {
	repo       Repository
	filter     *EligibilityFilter
	dispatcher *NotificationDispatcher
	observer   RunObserver
	logger     *zap.Logger
	settings   Settings
	now        func() time.Time
	newRunID   func() string

	// mu keeps runs of this process from overlapping; the lease covers other processes
	mu sync.Mutex
}

// NewMatchingService creates a new matching service. intros, policy and observer may be nil.
func NewMatchingService(
	repo Repository,
	sender NotificationSender,
	intros IntroWriter,
	policy AddressPolicy,
	observer RunObserver,
	logger *zap.Logger,
	settings Settings,
) *MatchingService {
	return &MatchingService{
		repo:   repo,
		filter: NewEligibilityFilter(repo, policy, settings.Cooldown, logger),
		dispatcher: NewNotificationDispatcher(
			sender,
			intros,
			settings.NotifyConcurrency,
			settings.SendTimeout,
			settings.IntroTimeout,
			logger,
		),
		observer: observer,
		logger:   logger,
		settings: settings,
		now:      time.Now,
		newRunID: func() string { return uuid.NewString() },
	}
}

// SetClock replaces the time source
func (s *MatchingService) SetClock(now func() time.Time) {
	s.now = now
}

// Run executes one complete matching run.
//
// Only the filtering phase can fail the run. Once pairs exist, every matched
// profile gets its cooldown committed whether or not its notifications went out.
func (s *MatchingService) Run(ctx context.Context) (*RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	begin := time.Now()
	started := s.now()
	runID := s.newRunID()
	log := s.logger.With(zap.String("run_id", runID))
	result, err := s.run(ctx, log, runID, started)
	if s.observer != nil {
		s.observer.RunFinished(result, time.Since(begin), err)
	}
	return result, err
}

func (s *MatchingService) run(ctx context.Context, log *zap.Logger, runID string, now time.Time) (*RunResult, error) {
	result := &RunResult{RunID: runID}
	state := StateIdle
	enter := func(next RunState) {
		log.Debug("Run state change", zap.Stringer("from", state), zap.Stringer("to", next))
		state = next
	}
	fail := func(err error) (*RunResult, error) {
		failedIn := state
		enter(StateFailed)
		log.Error("Matching run failed", zap.Stringer("state", failedIn), zap.Error(err))
		return nil, &RunError{State: failedIn, Err: err}
	}

	enter(StateFiltering)
	if s.settings.ExclusiveRuns {
		acquired, err := s.repo.AcquireRunLease(ctx, runID, s.leaseTTL())
		if err != nil {
			return fail(fmt.Errorf("failed to acquire run lease: %w", err))
		}
		if !acquired {
			return fail(ErrRunInProgress)
		}
		defer func() {
			// release even if the caller's context is already done
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := s.repo.ReleaseRunLease(releaseCtx, runID); err != nil {
				log.Warn("Failed to release run lease", zap.Error(err))
			}
		}()
	}

	pool, err := s.filter.SelectCandidates(ctx, now)
	if err != nil {
		return fail(err)
	}
	if len(pool) < minPoolSize {
		enter(StateDone)
		result.Message = notEnoughProfilesMessage
		log.Info("Not enough profiles to match", zap.Int("candidates", len(pool)))
		return result, nil
	}

	enter(StatePairing)
	outcome := PairCandidates(pool, now)
	result.PairsCreated = len(outcome.Pairs)
	log.Info("Pairing complete",
		zap.Int("candidates", len(pool)),
		zap.Int("pairs", len(outcome.Pairs)),
		zap.Int("unmatched", len(pool)-len(outcome.MatchedIDs)))

	enter(StateNotifying)
	report := s.dispatcher.Dispatch(ctx, runID, outcome.Pairs)
	result.NotificationsSent = report.Sent
	result.Errors = append(result.Errors, report.Errors...)

	enter(StateCommitting)
	result.Errors = append(result.Errors, s.commit(ctx, log, runID, now, outcome)...)

	enter(StateDone)
	log.Info("Matching run complete",
		zap.Int("pairs_created", result.PairsCreated),
		zap.Int("notifications_sent", result.NotificationsSent),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// commit persists cooldown state and pair history. Failures are reported, not fatal:
// notifications for these pairs have already gone out.
func (s *MatchingService) commit(ctx context.Context, log *zap.Logger, runID string, now time.Time, outcome PairingOutcome) []string {
	if len(outcome.MatchedIDs) == 0 {
		return nil
	}

	// the commit must land even when the trigger's context was cancelled mid-run
	ctx = context.WithoutCancel(ctx)

	var errs []string
	if err := s.repo.CommitLastMatchedAt(ctx, outcome.MatchedIDs, now); err != nil {
		log.Error("Failed to commit cooldown state", zap.Strings("profile_ids", outcome.MatchedIDs), zap.Error(err))
		errs = append(errs, fmt.Sprintf("failed to commit cooldown state: %v", err))
	}

	records := make([]PairRecord, 0, len(outcome.Pairs))
	for _, p := range outcome.Pairs {
		records = append(records, PairRecord{
			ID:         uuid.NewString(),
			RunID:      runID,
			ProfileAID: p.A.ID,
			ProfileBID: p.B.ID,
			Score:      p.Score,
			MatchedAt:  p.MatchedAt,
		})
	}
	if err := s.repo.RecordPairs(ctx, records); err != nil {
		log.Error("Failed to record pair history", zap.Error(err))
		errs = append(errs, fmt.Sprintf("failed to record pair history: %v", err))
	}

	return errs
}

// History returns the recent matches of a profile
func (s *MatchingService) History(ctx context.Context, profileID string, limit int) ([]MatchSummary, error) {
	if profileID == "" {
		return nil, errors.New("profile id is required")
	}
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListMatches(ctx, profileID, limit)
}

func (s *MatchingService) leaseTTL() time.Duration {
	if s.settings.LeaseTTL > 0 {
		return s.settings.LeaseTTL
	}
	return 15 * time.Minute
}
