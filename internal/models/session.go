package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionKind string

const (
	SessionSimulator SessionKind = "simulator"
	SessionPractice  SessionKind = "practice"
)

type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

type ModuleStatus string

const (
	ModulePending   ModuleStatus = "pending"
	ModuleActive    ModuleStatus = "active"
	ModuleCompleted ModuleStatus = "completed"
)

type CompletionReason string

const (
	CompletionFinished CompletionReason = "finished"
	CompletionDeadline CompletionReason = "deadline"
	// CompletionSkipped closes a module that never received questions.
	CompletionSkipped CompletionReason = "skipped"
)

// ── Blueprints ──────────────────────────────────────────

// ModuleConfig is the blueprint of one module: how many questions to draw
// from each topic and how long the candidate has.
type ModuleConfig struct {
	Name             string        `json:"name"`
	TopicQuotas      map[int64]int `json:"topic_quotas"`
	TotalQuestions   int           `json:"total_questions"`
	TimeLimitSeconds int           `json:"time_limit_seconds"`
	SubtopicID       *int64        `json:"subtopic_id,omitempty"`
	Difficulty       *Difficulty   `json:"difficulty,omitempty"`
	TestTypeID       *int64        `json:"test_type_id,omitempty"`
}

// Filter returns the pool filter for one topic of the module.
func (c ModuleConfig) Filter(topicID int64) QuestionFilter {
	return QuestionFilter{
		TopicID:    &topicID,
		SubtopicID: c.SubtopicID,
		Difficulty: c.Difficulty,
		TestTypeID: c.TestTypeID,
	}
}

// ── Core Structs ────────────────────────────────────────

type StreakState struct {
	Streak   int `json:"streak"`
	Mistakes int `json:"mistakes"`
}

// Apply returns the state after one more answer.
func (s StreakState) Apply(correct bool) StreakState {
	if correct {
		return StreakState{Streak: s.Streak + 1}
	}
	return StreakState{Mistakes: s.Mistakes + 1}
}

type Session struct {
	ID            uuid.UUID        `json:"id"`
	OwnerID       int64            `json:"owner_id"`
	Kind          SessionKind      `json:"kind"`
	Status        SessionStatus    `json:"status"`
	TestTypeID    *int64           `json:"test_type_id,omitempty"`
	Blueprint     []ModuleConfig   `json:"blueprint"`
	CurrentModule int              `json:"current_module"`
	Scores        map[Category]int `json:"scores"`
	TotalScore    int              `json:"total_score"`
	Streak        StreakState      `json:"streak"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type ModuleRun struct {
	ID               uuid.UUID        `json:"id"`
	SessionID        uuid.UUID        `json:"session_id"`
	Index            int              `json:"index"`
	Config           ModuleConfig     `json:"config"`
	Status           ModuleStatus     `json:"status"`
	Allocation       []int64          `json:"allocation,omitempty"`
	Cursor           int              `json:"cursor"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	Deadline         *time.Time       `json:"deadline,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	CompletionReason CompletionReason `json:"completion_reason,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Allocated reports whether the run already has its question list.
func (m *ModuleRun) Allocated() bool {
	return m.Allocation != nil
}

// Expired reports whether the run is active with its deadline at or before now.
func (m *ModuleRun) Expired(now time.Time) bool {
	return m.Status == ModuleActive && m.Deadline != nil && !now.Before(*m.Deadline)
}

func (m *ModuleRun) HasQuestion(questionID int64) bool {
	for _, id := range m.Allocation {
		if id == questionID {
			return true
		}
	}
	return false
}

type Answer struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"session_id"`
	ModuleRunID    uuid.UUID `json:"module_run_id"`
	QuestionID     int64     `json:"question_id"`
	SelectedChoice *int      `json:"selected_choice"`
	IsCorrect      bool      `json:"is_correct"`
	IsFlagged      bool      `json:"is_flagged"`
	AutoSubmitted  bool      `json:"auto_submitted"`
	StreakAtAnswer int       `json:"streak_at_answer"`
	PointsEarned   int       `json:"points_earned"`
	Category       Category  `json:"category"`
	Seq            int64     `json:"seq"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// SessionState is the authoritative snapshot of a session and its module runs.
type SessionState struct {
	Session Session     `json:"session"`
	Modules []ModuleRun `json:"modules"`
}

// Current returns the run at the session's current module index, if created.
func (s *SessionState) Current() *ModuleRun {
	for i := range s.Modules {
		if s.Modules[i].Index == s.Session.CurrentModule {
			return &s.Modules[i]
		}
	}
	return nil
}

func (s *SessionState) Module(id uuid.UUID) *ModuleRun {
	for i := range s.Modules {
		if s.Modules[i].ID == id {
			return &s.Modules[i]
		}
	}
	return nil
}

// ── Request Types ───────────────────────────────────────

type PracticeRequest struct {
	TopicID     int64       `json:"topic_id"`
	SubtopicID  *int64      `json:"subtopic_id,omitempty"`
	Difficulty  *Difficulty `json:"difficulty,omitempty"`
	TestTypeID  *int64      `json:"test_type_id,omitempty"`
	TargetCount int         `json:"target_count"`
}

type CreateSessionRequest struct {
	Kind       SessionKind      `json:"kind"`
	TestTypeID *int64           `json:"test_type_id,omitempty"`
	Practice   *PracticeRequest `json:"practice,omitempty"`
}

type SubmitAnswerRequest struct {
	QuestionID     int64 `json:"question_id"`
	SelectedChoice int   `json:"selected_choice"`
}

type FlagRequest struct {
	QuestionID int64 `json:"question_id"`
}

// ── Response Types ──────────────────────────────────────

type SubmitResult struct {
	Answer        Answer        `json:"answer"`
	PointsEarned  int           `json:"points_earned"`
	IsCorrect     bool          `json:"is_correct"`
	Streak        StreakState   `json:"streak"`
	CorrectChoice *int          `json:"correct_choice,omitempty"`
	Explanation   *string       `json:"explanation,omitempty"`
	ModuleStatus  ModuleStatus  `json:"module_status"`
	SessionStatus SessionStatus `json:"session_status"`
}

type ModuleReview struct {
	ModuleRunID      uuid.UUID          `json:"module_run_id"`
	Name             string             `json:"name"`
	CompletionReason CompletionReason   `json:"completion_reason"`
	Correct          int                `json:"correct"`
	Total            int                `json:"total"`
	Points           int                `json:"points"`
	Questions        []ReviewedQuestion `json:"questions"`
}

type SessionReview struct {
	Session Session          `json:"session"`
	Modules []ModuleReview   `json:"modules"`
	Scores  map[Category]int `json:"scores"`
	Total   int              `json:"total"`
	Ability int              `json:"ability"`
}
