package core

const (
	genderPoints   = 10
	ageRangePoints = 10
)

func satisfiesGender(candidate, seeker *Profile) bool {
	return seeker.WantGender == "" || candidate.SelfGender == seeker.WantGender
}

func satisfiesAgeRange(candidate, seeker *Profile) bool {
	return seeker.WantAgeRange == "" || candidate.SelfAgeRange == seeker.WantAgeRange
}

func countOverlap(offered, wanted []Interest) int {
	n := 0
	for _, o := range offered {
		for _, w := range wanted {
			if o == w {
				n++
				break
			}
		}
	}
	return n
}

// DirectionalScore rates candidate from seeker's point of view
func DirectionalScore(candidate, seeker *Profile) int {
	score := 0
	if satisfiesGender(candidate, seeker) {
		score += genderPoints
	}
	if satisfiesAgeRange(candidate, seeker) {
		score += ageRangePoints
	}
	return score + countOverlap(candidate.SelfInterests, seeker.WantInterests)
}

// IsMutualMatch reports whether x and y satisfy each other's gender and age range
// constraints. Interests never block a match.
func IsMutualMatch(x, y *Profile) bool {
	return satisfiesGender(x, y) && satisfiesAgeRange(x, y) &&
		satisfiesGender(y, x) && satisfiesAgeRange(y, x)
}

// CombinedScore is the sum of both directional scores
func CombinedScore(x, y *Profile) int {
	return DirectionalScore(y, x) + DirectionalScore(x, y)
}
