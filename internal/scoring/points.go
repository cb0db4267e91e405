package scoring

import (
	"math"

	"github.com/examprep/backend/internal/models"
)

// Context selects which points table applies to an answer.
type Context int

const (
	// ContextModule covers timed simulator modules.
	ContextModule Context = iota
	// ContextPractice covers untimed practice drills.
	ContextPractice
)

func (c Context) String() string {
	if c == ContextPractice {
		return "practice"
	}
	return "module"
}

// ContextFor maps a session kind to its scoring context.
func ContextFor(kind models.SessionKind) Context {
	if kind == models.SessionPractice {
		return ContextPractice
	}
	return ContextModule
}

// BasePoints returns the points for a correct answer before multipliers.
// Module points depend on difficulty only; practice points also depend on
// the question category.
func BasePoints(ctx Context, d models.Difficulty, c models.Category) int {
	if ctx == ContextModule {
		return pick(d, 10, 20, 30)
	}
	switch c {
	case models.CategoryAnalogy:
		return pick(d, 3, 6, 9)
	case models.CategoryVocabulary, models.CategoryGrammar:
		return pick(d, 4, 8, 12)
	default:
		return pick(d, 5, 10, 15)
	}
}

func pick(d models.Difficulty, easy, moderate, hard int) int {
	switch d {
	case models.DifficultyEasy:
		return easy
	case models.DifficultyHard:
		return hard
	default:
		return moderate
	}
}

// StreakMultiplier returns the module-context multiplier for the streak
// reached by the current answer.
func StreakMultiplier(streak int) float64 {
	if streak < 3 {
		return 1.0
	}
	if streak < 5 {
		return 1.2
	}
	if streak < 10 {
		return 1.5
	}
	return 2.0
}

// CategoryMultiplier returns the practice-context multiplier.
func CategoryMultiplier(c models.Category) float64 {
	switch c {
	case models.CategoryAnalogy:
		return 0.7
	case models.CategoryVocabulary, models.CategoryGrammar:
		return 0.9
	default:
		return 1.0
	}
}

// Award returns the points earned by one answer. streak is the value after
// this answer has been applied. Module points are rounded, practice points
// are floored.
func Award(ctx Context, d models.Difficulty, streak int, c models.Category, correct bool) int {
	if !correct {
		return 0
	}
	base := float64(BasePoints(ctx, d, c))
	if ctx == ContextModule {
		return int(math.Round(base * StreakMultiplier(streak)))
	}
	return int(math.Floor(base * CategoryMultiplier(c)))
}
