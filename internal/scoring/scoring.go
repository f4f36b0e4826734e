// Package scoring computes point awards for individual and team rounds.
//
// Individual rounds reward speed independently of correctness: every answer, right or wrong,
// consumes one arrival at the round's bonus gate, so an early wrong answer still takes a bonus
// slot away from later players. Only correct answers are converted into points.
package scoring

// Verdict is the outcome of one roster member's answer in a team round.
type Verdict int

const (
	Unanswered Verdict = iota
	Wrong
	Correct
)

// ConsensusFactor multiplies the question points when every team member answered correctly.
const ConsensusFactor = 2

// Judge classifies an answer against the correct option.
func Judge(answered bool, option, correct int) Verdict {
	switch {
	case !answered:
		return Unanswered
	case option == correct:
		return Correct
	default:
		return Wrong
	}
}

// Individual returns the points earned by one answer in an individual round.
// multiplier is the value handed out by the round's bonus gate.
func Individual(points int, correct bool, multiplier int) int {
	if !correct {
		return 0
	}
	if multiplier < 1 {
		multiplier = 1
	}
	return points * multiplier
}

// Team returns the points a team earns in a team round given the verdict of every roster member:
// all correct doubles the points, some correct keeps them, none correct earns nothing.
func Team(points int, verdicts []Verdict) int {
	if len(verdicts) == 0 {
		return 0
	}

	correct := 0
	for _, v := range verdicts {
		if v == Correct {
			correct++
		}
	}

	switch {
	case correct == len(verdicts):
		return points * ConsensusFactor
	case correct > 0:
		return points
	default:
		return 0
	}
}
