package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mikey/maccafe-matcher/internal/core"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := baseTime.Add(d)
	return &t
}

func testSeed() *Seed {
	return &Seed{
		Profiles: []SeedProfile{
			{
				ID: "p1", ContactID: "auth-1", Name: "Anna", AvatarPath: "avatars/p1.png",
				SelfInterests: []core.Interest{core.InterestMusic, core.InterestArt},
				SelfGender:    core.GenderFemale, SelfAgeRange: core.AgeRange19to21,
				WantInterests: []core.Interest{core.InterestMusic},
				WantGender:    core.GenderMale,
				CreatedAt:     at(0),
			},
			{ID: "p2", ContactID: "auth-2", Name: "Bence", SelfGender: core.GenderMale, CreatedAt: at(time.Second)},
			{ID: "p3", ContactID: "auth-3", LastMatchedAt: at(-24 * time.Hour), CreatedAt: at(2 * time.Second)},
			{ID: "p4", ContactID: "auth-4", LastMatchedAt: at(-10 * 24 * time.Hour), CreatedAt: at(3 * time.Second)},
			{ID: "p5", CreatedAt: at(4 * time.Second)},
		},
		Contacts: []SeedContact{
			{ContactID: "auth-1", Email: "anna@example.com"},
			{ContactID: "auth-2", Email: "bence@example.com"},
			{ContactID: "auth-3", Email: "csilla@example.com"},
			{ContactID: "auth-4", Email: "dani@example.com"},
		},
	}
}

func ids(profiles []core.Profile) string {
	out := make([]string, len(profiles))
	for i, p := range profiles {
		out[i] = p.ID
	}
	return strings.Join(out, ",")
}

func exerciseRepository(t *testing.T, repo Store) {
	t.Helper()
	ctx := context.Background()
	cutoff := baseTime.Add(-7 * 24 * time.Hour)

	if err := repo.Import(ctx, testSeed()); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	t.Run("fetch eligible", func(t *testing.T) {
		got, err := repo.FetchEligibleProfiles(ctx, cutoff)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ids(got) != "p1,p2,p4,p5" {
			t.Fatalf("expected p1,p2,p4,p5 in creation order, got %s", ids(got))
		}

		anna := got[0]
		if anna.Name != "Anna" || anna.AvatarPath != "avatars/p1.png" || anna.WantGender != core.GenderMale {
			t.Fatalf("profile fields not preserved: %+v", anna)
		}
		if len(anna.SelfInterests) != 2 || anna.SelfInterests[1] != core.InterestArt {
			t.Fatalf("interests not preserved: %v", anna.SelfInterests)
		}
		if anna.WantAgeRange != "" || anna.LastMatchedAt != nil {
			t.Fatalf("expected empty want age range and no last match, got %+v", anna)
		}
		if got[2].LastMatchedAt == nil || !got[2].LastMatchedAt.Equal(*at(-10 * 24 * time.Hour)) {
			t.Fatalf("last_matched_at not preserved: %v", got[2].LastMatchedAt)
		}
	})

	t.Run("resolve contacts", func(t *testing.T) {
		got, err := repo.ResolveContactAddresses(ctx, []string{"auth-1", "auth-2", "ghost"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 || got["auth-1"] != "anna@example.com" || got["auth-2"] != "bence@example.com" {
			t.Fatalf("unexpected addresses: %v", got)
		}

		empty, err := repo.ResolveContactAddresses(ctx, nil)
		if err != nil || len(empty) != 0 {
			t.Fatalf("expected empty result for no ids, got %v (%v)", empty, err)
		}
	})

	t.Run("commit cooldown", func(t *testing.T) {
		if err := repo.CommitLastMatchedAt(ctx, []string{"p1", "p2"}, baseTime); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := repo.FetchEligibleProfiles(ctx, cutoff)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ids(got) != "p4,p5" {
			t.Fatalf("expected p4,p5 after commit, got %s", ids(got))
		}

		later, err := repo.FetchEligibleProfiles(ctx, baseTime.Add(time.Second))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ids(later) != "p1,p2,p3,p4,p5" {
			t.Fatalf("expected everyone past a later cutoff, got %s", ids(later))
		}
	})

	t.Run("match history", func(t *testing.T) {
		records := []core.PairRecord{
			{ID: "11111111-1111-1111-1111-111111111111", RunID: "run-a", ProfileAID: "p1", ProfileBID: "p2", Score: 21, MatchedAt: baseTime.Add(-time.Hour)},
			{ID: "22222222-2222-2222-2222-222222222222", RunID: "run-b", ProfileAID: "p4", ProfileBID: "p1", Score: 20, MatchedAt: baseTime},
			{ID: "33333333-3333-3333-3333-333333333333", RunID: "run-b", ProfileAID: "p2", ProfileBID: "p3", Score: 20, MatchedAt: baseTime},
		}
		if err := repo.RecordPairs(ctx, records); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := repo.ListMatches(ctx, "p1", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 matches for p1, got %d", len(got))
		}
		if got[0].RunID != "run-b" || got[0].Partner.ID != "p4" || !got[0].MatchedAt.Equal(baseTime) {
			t.Fatalf("unexpected newest match: %+v", got[0])
		}
		if got[1].Partner.ID != "p2" || got[1].Partner.Name != "Bence" {
			t.Fatalf("unexpected older match: %+v", got[1])
		}

		limited, err := repo.ListMatches(ctx, "p1", 1)
		if err != nil || len(limited) != 1 {
			t.Fatalf("expected limit to apply, got %d (%v)", len(limited), err)
		}
	})

	t.Run("run lease", func(t *testing.T) {
		acquire := func(holder string, ttl time.Duration) bool {
			t.Helper()
			ok, err := repo.AcquireRunLease(ctx, holder, ttl)
			if err != nil {
				t.Fatalf("acquire %s: %v", holder, err)
			}
			return ok
		}
		release := func(holder string) {
			t.Helper()
			if err := repo.ReleaseRunLease(ctx, holder); err != nil {
				t.Fatalf("release %s: %v", holder, err)
			}
		}

		if !acquire("run-1", time.Minute) {
			t.Fatalf("expected first acquire to succeed")
		}
		if acquire("run-2", time.Minute) {
			t.Fatalf("expected second holder to be refused")
		}
		release("run-2")
		if acquire("run-2", time.Minute) {
			t.Fatalf("expected release by a non-holder to be ignored")
		}
		release("run-1")
		if !acquire("run-2", time.Minute) {
			t.Fatalf("expected acquire after release to succeed")
		}
		release("run-2")

		if !acquire("run-3", -time.Minute) {
			t.Fatalf("expected acquire to succeed")
		}
		if !acquire("run-4", time.Minute) {
			t.Fatalf("expected an expired lease to be taken over")
		}
	})
}
