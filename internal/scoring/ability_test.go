package scoring

import (
	"math"
	"testing"
)

func TestExpectedAccuracy(t *testing.T) {
	// Equal ability and difficulty → ~50%
	got := ExpectedAccuracy(50, 50)
	if math.Abs(got-0.5) > 0.01 {
		t.Errorf("ExpectedAccuracy(50, 50) = %f, want ~0.5", got)
	}

	got = ExpectedAccuracy(75, 50)
	if math.Abs(got-0.88) > 0.05 {
		t.Errorf("ExpectedAccuracy(75, 50) = %f, want ~0.88", got)
	}

	got = ExpectedAccuracy(25, 50)
	if math.Abs(got-0.12) > 0.05 {
		t.Errorf("ExpectedAccuracy(25, 50) = %f, want ~0.12", got)
	}
}

func TestKFactor(t *testing.T) {
	tests := []struct {
		answered int
		want     float64
	}{
		{0, 3.0},
		{19, 3.0},
		{20, 2.0},
		{99, 2.0},
		{100, 1.0},
	}

	for _, tt := range tests {
		got := KFactor(tt.answered)
		if got != tt.want {
			t.Errorf("KFactor(%d) = %f, want %f", tt.answered, got, tt.want)
		}
	}
}

func TestComputeNewAbility(t *testing.T) {
	got := ComputeNewAbility(50, 50, true, 50)
	if got != 51 {
		t.Errorf("ComputeNewAbility(50, 50, true, 50) = %d, want 51", got)
	}

	got = ComputeNewAbility(50, 50, false, 50)
	if got != 49 {
		t.Errorf("ComputeNewAbility(50, 50, false, 50) = %d, want 49", got)
	}

	got = ComputeNewAbility(99, 80, true, 5)
	if got != 100 {
		t.Errorf("ComputeNewAbility(99, 80, true, 5) = %d, want 100", got)
	}

	got = ComputeNewAbility(1, 20, false, 5)
	if got != 0 {
		t.Errorf("ComputeNewAbility(1, 20, false, 5) = %d, want 0", got)
	}
}

func TestEstimateAbility(t *testing.T) {
	if got := EstimateAbility(nil); got != StartingAbility {
		t.Errorf("EstimateAbility(nil) = %d, want %d", got, StartingAbility)
	}

	right := make([]Outcome, 10)
	wrong := make([]Outcome, 10)
	for i := range right {
		right[i] = Outcome{DifficultyScore: 75, Correct: true}
		wrong[i] = Outcome{DifficultyScore: 25, Correct: false}
	}

	if got := EstimateAbility(right); got <= StartingAbility {
		t.Errorf("EstimateAbility(all hard correct) = %d, want > %d", got, StartingAbility)
	}
	if got := EstimateAbility(wrong); got >= StartingAbility {
		t.Errorf("EstimateAbility(all easy wrong) = %d, want < %d", got, StartingAbility)
	}
}
