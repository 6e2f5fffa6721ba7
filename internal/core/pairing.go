package core

import (
	"time"
)

// PairingOutcome is the result of one pass of the pairing engine
type PairingOutcome struct {
	Pairs      []Pair
	MatchedIDs []string
}

// PairCandidates greedily pairs the pool in input order.
//
// For every unmatched seeker the whole remaining pool is scanned; among mutual
// matches the candidate with the strictly greatest combined score wins, so on a
// tie the first one in pool order is kept. The result depends on pool order and
// is not a globally optimal assignment.
func PairCandidates(pool []Candidate, at time.Time) PairingOutcome {
	matched := make(map[string]struct{}, len(pool))
	outcome := PairingOutcome{}

	for i := range pool {
		seeker := &pool[i]
		if _, done := matched[seeker.ID]; done {
			continue
		}

		best := -1
		bestScore := -1
		for j := range pool {
			candidate := &pool[j]
			if candidate.ID == seeker.ID {
				continue
			}
			if _, done := matched[candidate.ID]; done {
				continue
			}
			if !IsMutualMatch(&seeker.Profile, &candidate.Profile) {
				continue
			}
			if score := CombinedScore(&seeker.Profile, &candidate.Profile); score > bestScore {
				best = j
				bestScore = score
			}
		}

		if best < 0 {
			continue
		}

		matched[seeker.ID] = struct{}{}
		matched[pool[best].ID] = struct{}{}
		outcome.MatchedIDs = append(outcome.MatchedIDs, seeker.ID, pool[best].ID)
		outcome.Pairs = append(outcome.Pairs, Pair{
			A:         *seeker,
			B:         pool[best],
			Score:     bestScore,
			MatchedAt: at,
		})
	}

	return outcome
}
