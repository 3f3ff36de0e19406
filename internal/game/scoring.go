package game

import "math"

// SpeedBonus converts answer latency into points for a correct answer.
// Latency is clamped to [0, 30] seconds and mapped linearly onto
// [20, 10] points: an instant answer is worth 20, anything at or past
// 30 seconds is worth 10. Incorrect answers earn nothing; the caller
// only applies this on a correct answer.
func SpeedBonus(elapsedSeconds float64) int {
	const (
		inMin  = 30.0
		inMax  = 0.0
		outMin = 10.0
		outMax = 20.0
	)
	x := elapsedSeconds
	if x > inMin {
		x = inMin
	}
	if x < 0 {
		x = 0
	}
	points := (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
	return int(math.Round(points))
}

// DifficultyBonus rewards question owners for questions that discriminate
// among players. A question everyone got right, or nobody got right,
// costs its owner 5 points per responder. In between, the reward is a
// linear interpolation: a single correct answer out of `answered` earns
// answered*5 extra, while an almost-unanimous question tapers toward 10.
func DifficultyBonus(correct, answered int) int {
	if correct == answered || correct == 0 {
		return -(5 * answered)
	}
	if answered == 2 {
		// The interpolation endpoints coincide when only two players
		// answered; the split outcome is worth the limit value.
		return 20
	}
	x := float64(correct)
	inMin := float64(answered - 1)
	inMax := 1.0
	outMin := 10.0
	outMax := float64(answered * 5)
	return int(math.Round(10 + (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin))
}
