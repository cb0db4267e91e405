// Package ledger records answers and derives what is computed from the
// answer stream: scores and the set of used questions.
package ledger

import (
	"context"
	"fmt"

	"github.com/examprep/backend/internal/models"
	"github.com/examprep/backend/internal/store"
	"github.com/google/uuid"
)

type Ledger struct {
	repo store.AnswerRepository
}

func New(repo store.AnswerRepository) *Ledger {
	return &Ledger{repo: repo}
}

// List returns the session's answers in submission order.
func (l *Ledger) List(ctx context.Context, sessionID uuid.UUID) ([]models.Answer, error) {
	answers, err := l.repo.ListAnswersBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return answers, nil
}

// Record upserts a on (module run, question).
func (l *Ledger) Record(ctx context.Context, a *models.Answer) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if err := l.repo.UpsertAnswer(ctx, a); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// ── Derived state ───────────────────────────────────────

// UsedQuestionIDs is the session-wide set of questions that may not be
// allocated again.
func UsedQuestionIDs(answers []models.Answer) map[int64]bool {
	used := make(map[int64]bool, len(answers))
	for _, a := range answers {
		used[a.QuestionID] = true
	}
	return used
}

// Scores sums points per category and overall.
func Scores(answers []models.Answer) (map[models.Category]int, int) {
	scores := make(map[models.Category]int)
	total := 0
	for _, a := range answers {
		if a.PointsEarned == 0 {
			continue
		}
		scores[a.Category] += a.PointsEarned
		total += a.PointsEarned
	}
	return scores, total
}

// NextSeq returns the sequence number for the next submission.
func NextSeq(answers []models.Answer) int64 {
	var max int64
	for _, a := range answers {
		if a.Seq > max {
			max = a.Seq
		}
	}
	return max + 1
}

// Find returns the answer for a question within a run, if any.
func Find(answers []models.Answer, runID uuid.UUID, questionID int64) *models.Answer {
	for i := range answers {
		if answers[i].ModuleRunID == runID && answers[i].QuestionID == questionID {
			return &answers[i]
		}
	}
	return nil
}

// Without returns answers minus the one for (runID, questionID).
func Without(answers []models.Answer, runID uuid.UUID, questionID int64) []models.Answer {
	out := make([]models.Answer, 0, len(answers))
	for _, a := range answers {
		if a.ModuleRunID == runID && a.QuestionID == questionID {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Unanswered returns the run's allocated questions that have no selected
// choice, in navigation order.
func Unanswered(run *models.ModuleRun, answers []models.Answer) []int64 {
	var out []int64
	for _, qid := range run.Allocation {
		a := Find(answers, run.ID, qid)
		if a == nil || a.SelectedChoice == nil {
			out = append(out, qid)
		}
	}
	return out
}

// ForRun returns the run's answers keyed by question id.
func ForRun(answers []models.Answer, runID uuid.UUID) map[int64]models.Answer {
	out := make(map[int64]models.Answer)
	for _, a := range answers {
		if a.ModuleRunID == runID {
			out[a.QuestionID] = a
		}
	}
	return out
}
