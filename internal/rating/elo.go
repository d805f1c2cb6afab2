// internal/rating/elo.go
package rating

import "math"

// KFactor controls how far a single result moves a rating.
const KFactor = 32

// expectedScore is the standard Elo expectation of a beating b.
func expectedScore(a, b float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (b-a)/400.0))
}

func average(ratings []int) float64 {
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return float64(sum) / float64(len(ratings))
}

// ApplyTeamResult updates ratings after a ranked match. The match is scored
// between the two team averages and every member of a team receives the same
// delta, so a 1v1 degenerates to plain Elo. Returned slices are positionally
// aligned with the inputs.
func ApplyTeamResult(winners, losers []int) ([]int, []int) {
	if len(winners) == 0 || len(losers) == 0 {
		return winners, losers
	}

	winAvg := average(winners)
	loseAvg := average(losers)

	delta := int(math.Round(KFactor * (1.0 - expectedScore(winAvg, loseAvg))))
	if delta < 1 {
		delta = 1
	}

	newWinners := make([]int, len(winners))
	for i, r := range winners {
		newWinners[i] = r + delta
	}
	newLosers := make([]int, len(losers))
	for i, r := range losers {
		newLosers[i] = r - delta
		if newLosers[i] < 0 {
			newLosers[i] = 0
		}
	}
	return newWinners, newLosers
}
