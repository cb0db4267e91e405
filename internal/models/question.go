package models

import "time"

type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyModerate Difficulty = "moderate"
	DifficultyHard     Difficulty = "hard"
)

var ValidDifficulties = map[Difficulty]bool{
	DifficultyEasy:     true,
	DifficultyModerate: true,
	DifficultyHard:     true,
}

// Score places the difficulty on the 0-100 scale used for ability estimates.
func (d Difficulty) Score() int {
	switch d {
	case DifficultyEasy:
		return 25
	case DifficultyHard:
		return 75
	default:
		return 50
	}
}

type Category string

const (
	CategoryNormal     Category = "normal"
	CategoryAnalogy    Category = "analogy"
	CategoryVocabulary Category = "vocabulary"
	CategoryGrammar    Category = "grammar"
)

var ValidCategories = map[Category]bool{
	CategoryNormal:     true,
	CategoryAnalogy:    true,
	CategoryVocabulary: true,
	CategoryGrammar:    true,
}

// ── Core Structs ────────────────────────────────────────

type Question struct {
	ID            int64      `json:"id"`
	TopicID       int64      `json:"topic_id"`
	SubtopicID    *int64     `json:"subtopic_id,omitempty"`
	TestTypeID    *int64     `json:"test_type_id,omitempty"`
	Difficulty    Difficulty `json:"difficulty"`
	Category      Category   `json:"category"`
	Stem          string     `json:"stem"`
	Choices       []string   `json:"choices"`
	CorrectChoice int        `json:"correct_choice"`
	Explanation   string     `json:"explanation"`
	CreatedAt     time.Time  `json:"created_at"`
}

// QuestionFilter narrows a question pool. Nil fields match everything.
type QuestionFilter struct {
	TopicID    *int64      `json:"topic_id,omitempty"`
	SubtopicID *int64      `json:"subtopic_id,omitempty"`
	Difficulty *Difficulty `json:"difficulty,omitempty"`
	TestTypeID *int64      `json:"test_type_id,omitempty"`
}

// ── Response Types ──────────────────────────────────────

// ServedQuestion is a question as shown during a module. The correct choice
// is never included.
type ServedQuestion struct {
	Position       int        `json:"position"`
	QuestionID     int64      `json:"question_id"`
	Difficulty     Difficulty `json:"difficulty"`
	Category       Category   `json:"category"`
	Stem           string     `json:"stem"`
	Choices        []string   `json:"choices"`
	SelectedChoice *int       `json:"selected_choice"`
	IsFlagged      bool       `json:"is_flagged"`
}

type ReviewedQuestion struct {
	QuestionID     int64      `json:"question_id"`
	Difficulty     Difficulty `json:"difficulty"`
	Category       Category   `json:"category"`
	Stem           string     `json:"stem"`
	Choices        []string   `json:"choices"`
	CorrectChoice  int        `json:"correct_choice"`
	Explanation    string     `json:"explanation"`
	SelectedChoice *int       `json:"selected_choice"`
	IsCorrect      bool       `json:"is_correct"`
	IsFlagged      bool       `json:"is_flagged"`
	PointsEarned   int        `json:"points_earned"`
	StreakAtAnswer int        `json:"streak_at_answer"`
}
