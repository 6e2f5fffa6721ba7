package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingObserver struct {
	results []*RunResult
	errs    []error
}

func (o *recordingObserver) RunFinished(result *RunResult, _ time.Duration, err error) {
	o.results = append(o.results, result)
	o.errs = append(o.errs, err)
}

func newTestService(repo *fakeRepo, sender *fakeSender, observer RunObserver) *MatchingService {
	svc := NewMatchingService(repo, sender, nil, nil, observer, zap.NewNop(), Settings{
		Cooldown:          DefaultCooldown,
		ExclusiveRuns:     true,
		NotifyConcurrency: 2,
		SendTimeout:       time.Second,
	})
	svc.SetClock(func() time.Time { return runTime })
	return svc
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func TestRunMatchesNotifiesAndCommits(t *testing.T) {
	a, b, c := profile("a"), profile("b"), profile("c")
	repo := &fakeRepo{profiles: []Profile{a, b, c}, addresses: addressesFor(a, b, c)}
	sender := &fakeSender{}
	observer := &recordingObserver{}

	result, err := newTestService(repo, sender, observer).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.PairsCreated != 1 || result.NotificationsSent != 2 || len(result.Errors) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.RunID == "" {
		t.Fatalf("expected a run id")
	}
	if got := sorted(repo.committedIDs); strings.Join(got, ",") != "a,b" {
		t.Fatalf("expected a and b committed, got %v", got)
	}
	if !repo.committedAt.Equal(runTime) {
		t.Fatalf("expected commit at %v, got %v", runTime, repo.committedAt)
	}
	if len(repo.records) != 1 || repo.records[0].RunID != result.RunID {
		t.Fatalf("expected one pair record for the run, got %+v", repo.records)
	}
	if repo.leaseHolder != result.RunID || len(repo.released) != 1 {
		t.Fatalf("expected lease to be taken and released by the run")
	}
	if len(observer.results) != 1 || observer.errs[0] != nil {
		t.Fatalf("expected observer to see one successful run")
	}
}

func TestRunCommitsEvenWhenNotificationsFail(t *testing.T) {
	a, b := profile("a"), profile("b")
	repo := &fakeRepo{profiles: []Profile{a, b}, addresses: addressesFor(a, b)}
	sender := &fakeSender{fail: map[string]bool{"a@example.com": true, "b@example.com": true}}

	result, err := newTestService(repo, sender, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.PairsCreated != 1 || result.NotificationsSent != 0 || len(result.Errors) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := sorted(repo.committedIDs); strings.Join(got, ",") != "a,b" {
		t.Fatalf("expected cooldown committed for a and b, got %v", got)
	}
}

func TestRunShortCircuitsSmallPool(t *testing.T) {
	cases := []struct {
		name     string
		profiles []Profile
	}{
		{name: "empty"},
		{name: "single", profiles: []Profile{profile("a")}},
		{name: "unresolvable", profiles: []Profile{profile("a"), profile("b", func(p *Profile) { p.ContactID = "ghost" })}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeRepo{profiles: tc.profiles, addresses: addressesFor(profile("a"))}
			sender := &fakeSender{}

			result, err := newTestService(repo, sender, nil).Run(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.PairsCreated != 0 || result.Message != notEnoughProfilesMessage {
				t.Fatalf("unexpected result: %+v", result)
			}
			if repo.commitCalls != 0 {
				t.Fatalf("expected no cooldown write, got %d", repo.commitCalls)
			}
			if len(sender.sent) != 0 {
				t.Fatalf("expected no notifications")
			}
		})
	}
}

func TestRunNoMutualMatchesSkipsCommit(t *testing.T) {
	a := profile("a", wantGender(GenderMale))
	b := profile("b", wantGender(GenderMale))
	repo := &fakeRepo{profiles: []Profile{a, b}, addresses: addressesFor(a, b)}

	result, err := newTestService(repo, &fakeSender{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PairsCreated != 0 || repo.commitCalls != 0 {
		t.Fatalf("expected no pairs and no commit, got %+v with %d commits", result, repo.commitCalls)
	}
}

func TestRunFailsWhenStoreUnavailable(t *testing.T) {
	repo := &fakeRepo{fetchErr: errors.New("connection refused")}
	sender := &fakeSender{}
	observer := &recordingObserver{}

	result, err := newTestService(repo, sender, observer).Run(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if result != nil {
		t.Fatalf("expected no result, got %+v", result)
	}

	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.State != StateFiltering {
		t.Fatalf("expected a filtering RunError, got %v", err)
	}
	if repo.commitCalls != 0 || len(sender.sent) != 0 {
		t.Fatalf("expected no side effects after fatal failure")
	}
	if len(repo.released) != 1 {
		t.Fatalf("expected lease release after failure")
	}
	if len(observer.errs) != 1 || observer.errs[0] == nil {
		t.Fatalf("expected observer to see the failure")
	}
}

func TestRunRefusesWhenLeaseHeld(t *testing.T) {
	a, b := profile("a"), profile("b")
	repo := &fakeRepo{profiles: []Profile{a, b}, addresses: addressesFor(a, b), leaseTaken: true}

	_, err := newTestService(repo, &fakeSender{}, nil).Run(context.Background())
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if repo.commitCalls != 0 {
		t.Fatalf("expected no commit")
	}
	if len(repo.released) != 0 {
		t.Fatalf("expected nothing released for a lease never acquired")
	}
}

func TestRunReportsCommitFailure(t *testing.T) {
	a, b := profile("a"), profile("b")
	repo := &fakeRepo{
		profiles:  []Profile{a, b},
		addresses: addressesFor(a, b),
		commitErr: errors.New("deadlock"),
		recordErr: errors.New("disk full"),
	}

	result, err := newTestService(repo, &fakeSender{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NotificationsSent != 2 || len(result.Errors) != 2 {
		t.Fatalf("expected commit and history errors to be reported, got %+v", result)
	}
	if !strings.Contains(result.Errors[0], "cooldown") || !strings.Contains(result.Errors[1], "history") {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
}

func TestRunWithoutExclusiveRunsSkipsLease(t *testing.T) {
	a, b := profile("a"), profile("b")
	repo := &fakeRepo{profiles: []Profile{a, b}, addresses: addressesFor(a, b), leaseTaken: true}

	svc := NewMatchingService(repo, &fakeSender{}, nil, nil, nil, zap.NewNop(), Settings{})
	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PairsCreated != 1 {
		t.Fatalf("expected a pair, got %+v", result)
	}
}

func TestHistory(t *testing.T) {
	repo := &fakeRepo{records: []PairRecord{
		{ID: "p1", RunID: "r1", ProfileAID: "a", ProfileBID: "b"},
		{ID: "p2", RunID: "r2", ProfileAID: "c", ProfileBID: "a"},
		{ID: "p3", RunID: "r2", ProfileAID: "d", ProfileBID: "e"},
	}}
	svc := newTestService(repo, &fakeSender{}, nil)

	got, err := svc.History(context.Background(), "a", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}

	if _, err := svc.History(context.Background(), "", 10); err == nil {
		t.Fatalf("expected error for empty profile id")
	}
}
