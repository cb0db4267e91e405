package scoring

import (
	"testing"

	"github.com/examprep/backend/internal/models"
)

func TestStreakMultiplier(t *testing.T) {
	tests := []struct {
		streak int
		want   float64
	}{
		{0, 1.0},
		{1, 1.0},
		{2, 1.0},
		{3, 1.2},
		{4, 1.2},
		{5, 1.5},
		{9, 1.5},
		{10, 2.0},
		{42, 2.0},
	}

	for _, tt := range tests {
		got := StreakMultiplier(tt.streak)
		if got != tt.want {
			t.Errorf("StreakMultiplier(%d) = %f, want %f", tt.streak, got, tt.want)
		}
	}
}

func TestCategoryMultiplier(t *testing.T) {
	tests := []struct {
		category models.Category
		want     float64
	}{
		{models.CategoryNormal, 1.0},
		{models.CategoryAnalogy, 0.7},
		{models.CategoryVocabulary, 0.9},
		{models.CategoryGrammar, 0.9},
		{models.Category("unknown"), 1.0},
	}

	for _, tt := range tests {
		got := CategoryMultiplier(tt.category)
		if got != tt.want {
			t.Errorf("CategoryMultiplier(%s) = %f, want %f", tt.category, got, tt.want)
		}
	}
}

func TestBasePoints(t *testing.T) {
	tests := []struct {
		ctx        Context
		difficulty models.Difficulty
		category   models.Category
		want       int
	}{
		{ContextModule, models.DifficultyEasy, models.CategoryNormal, 10},
		{ContextModule, models.DifficultyModerate, models.CategoryAnalogy, 20},
		{ContextModule, models.DifficultyHard, models.CategoryGrammar, 30},

		{ContextPractice, models.DifficultyEasy, models.CategoryNormal, 5},
		{ContextPractice, models.DifficultyModerate, models.CategoryNormal, 10},
		{ContextPractice, models.DifficultyHard, models.CategoryNormal, 15},
		{ContextPractice, models.DifficultyEasy, models.CategoryAnalogy, 3},
		{ContextPractice, models.DifficultyModerate, models.CategoryAnalogy, 6},
		{ContextPractice, models.DifficultyHard, models.CategoryAnalogy, 9},
		{ContextPractice, models.DifficultyEasy, models.CategoryVocabulary, 4},
		{ContextPractice, models.DifficultyModerate, models.CategoryGrammar, 8},
		{ContextPractice, models.DifficultyHard, models.CategoryVocabulary, 12},
	}

	for _, tt := range tests {
		got := BasePoints(tt.ctx, tt.difficulty, tt.category)
		if got != tt.want {
			t.Errorf("BasePoints(%s, %s, %s) = %d, want %d", tt.ctx, tt.difficulty, tt.category, got, tt.want)
		}
	}
}

func TestAward(t *testing.T) {
	tests := []struct {
		name       string
		ctx        Context
		difficulty models.Difficulty
		streak     int
		category   models.Category
		correct    bool
		want       int
	}{
		{"module moderate no streak", ContextModule, models.DifficultyModerate, 1, models.CategoryNormal, true, 20},
		{"module moderate third in a row", ContextModule, models.DifficultyModerate, 3, models.CategoryNormal, true, 24},
		{"module easy streak 4", ContextModule, models.DifficultyEasy, 4, models.CategoryNormal, true, 12},
		{"module hard streak 5", ContextModule, models.DifficultyHard, 5, models.CategoryNormal, true, 45},
		{"module hard streak 10", ContextModule, models.DifficultyHard, 10, models.CategoryNormal, true, 60},
		{"module ignores category", ContextModule, models.DifficultyEasy, 0, models.CategoryAnalogy, true, 10},

		{"practice analogy hard", ContextPractice, models.DifficultyHard, 1, models.CategoryAnalogy, true, 6},
		{"practice analogy moderate", ContextPractice, models.DifficultyModerate, 1, models.CategoryAnalogy, true, 4},
		{"practice analogy easy", ContextPractice, models.DifficultyEasy, 1, models.CategoryAnalogy, true, 2},
		{"practice vocabulary easy", ContextPractice, models.DifficultyEasy, 1, models.CategoryVocabulary, true, 3},
		{"practice grammar moderate", ContextPractice, models.DifficultyModerate, 1, models.CategoryGrammar, true, 7},
		{"practice vocabulary hard", ContextPractice, models.DifficultyHard, 1, models.CategoryVocabulary, true, 10},
		{"practice normal hard", ContextPractice, models.DifficultyHard, 1, models.CategoryNormal, true, 15},
		{"practice ignores streak", ContextPractice, models.DifficultyModerate, 12, models.CategoryNormal, true, 10},
	}

	for _, tt := range tests {
		got := Award(tt.ctx, tt.difficulty, tt.streak, tt.category, tt.correct)
		if got != tt.want {
			t.Errorf("%s: Award = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestAwardIncorrectIsZero(t *testing.T) {
	difficulties := []models.Difficulty{models.DifficultyEasy, models.DifficultyModerate, models.DifficultyHard}
	categories := []models.Category{models.CategoryNormal, models.CategoryAnalogy, models.CategoryVocabulary, models.CategoryGrammar}

	for _, ctx := range []Context{ContextModule, ContextPractice} {
		for _, d := range difficulties {
			for _, c := range categories {
				for streak := 0; streak <= 12; streak++ {
					if got := Award(ctx, d, streak, c, false); got != 0 {
						t.Errorf("Award(%s, %s, %d, %s, false) = %d, want 0", ctx, d, streak, c, got)
					}
					if got := Award(ctx, d, streak, c, true); got < 0 {
						t.Errorf("Award(%s, %s, %d, %s, true) = %d, want >= 0", ctx, d, streak, c, got)
					}
				}
			}
		}
	}
}

func TestContextFor(t *testing.T) {
	if got := ContextFor(models.SessionSimulator); got != ContextModule {
		t.Errorf("ContextFor(simulator) = %s, want module", got)
	}
	if got := ContextFor(models.SessionPractice); got != ContextPractice {
		t.Errorf("ContextFor(practice) = %s, want practice", got)
	}
}

func TestStreakApply(t *testing.T) {
	answers := []bool{true, true, false, true, true, true, false, false}
	wantStreak := []int{1, 2, 0, 1, 2, 3, 0, 0}
	wantMistakes := []int{0, 0, 1, 0, 0, 0, 1, 2}

	var s models.StreakState
	for i, correct := range answers {
		s = s.Apply(correct)
		if s.Streak != wantStreak[i] {
			t.Errorf("answer %d: streak = %d, want %d", i, s.Streak, wantStreak[i])
		}
		if s.Mistakes != wantMistakes[i] {
			t.Errorf("answer %d: mistakes = %d, want %d", i, s.Mistakes, wantMistakes[i])
		}
	}
}
