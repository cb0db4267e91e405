package scoring

import "math"

// StartingAbility is the estimate before any answer has been seen.
const StartingAbility = 50

// ExpectedAccuracy returns the probability a candidate with the given ability
// gets a question with the given difficulty correct.
// Uses a sigmoid centered on 0 with scaling factor 12.5.
func ExpectedAccuracy(ability, difficultyScore int) float64 {
	x := float64(ability-difficultyScore) / 12.5
	return 1.0 / (1.0 + math.Exp(-x))
}

// KFactor returns the adjustment strength based on how many answers have
// already been folded into the estimate.
func KFactor(answered int) float64 {
	if answered < 20 {
		return 3.0
	}
	if answered < 100 {
		return 2.0
	}
	return 1.0
}

// ComputeNewAbility calculates the updated ability score after one answer.
func ComputeNewAbility(current, difficultyScore int, correct bool, answered int) int {
	expected := ExpectedAccuracy(current, difficultyScore)
	k := KFactor(answered)

	var result float64
	if correct {
		result = 1.0
	}

	next := float64(current) + (result-expected)*k
	if next < 0 {
		next = 0
	}
	if next > 100 {
		next = 100
	}
	return int(math.Round(next))
}

// Outcome is one answered question as seen by the ability estimate.
type Outcome struct {
	DifficultyScore int
	Correct         bool
}

// EstimateAbility replays outcomes in order from StartingAbility.
func EstimateAbility(outcomes []Outcome) int {
	ability := StartingAbility
	for i, o := range outcomes {
		ability = ComputeNewAbility(ability, o.DifficultyScore, o.Correct, i)
	}
	return ability
}
