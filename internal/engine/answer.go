package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/examprep/backend/internal/ledger"
	"github.com/examprep/backend/internal/metrics"
	"github.com/examprep/backend/internal/models"
	"github.com/examprep/backend/internal/questions"
	"github.com/examprep/backend/internal/scoring"
	"github.com/examprep/backend/internal/store"
	"github.com/google/uuid"
)

// ── Answers ─────────────────────────────────────────────

// SubmitAnswer records the candidate's choice for a question of the active
// module and scores it against the session's current streak. A changed
// choice replaces the earlier answer in place and moves the streak on by one
// step like any other answer; answers scored after it keep their points.
// Repeating the same choice changes nothing.
func (e *Engine) SubmitAnswer(ctx context.Context, owner int64, sessionID, runID uuid.UUID, questionID int64, choice int) (*models.SubmitResult, error) {
	if choice < 1 || choice > 4 {
		return nil, ErrInvalidChoice
	}

	release, err := e.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := e.now()
	st, err := e.open(ctx, owner, sessionID, now)
	if err != nil {
		return nil, err
	}
	run, err := e.activeRun(st, runID, "submit answer")
	if err != nil {
		return nil, err
	}
	if !run.HasQuestion(questionID) {
		return nil, ErrQuestionNotAllocated
	}

	q, err := value(ctx, e, "get question", func(ctx context.Context) (*models.Question, error) {
		return e.bank.Question(ctx, questionID)
	})
	if errors.Is(err, questions.ErrNotFound) {
		return nil, fmt.Errorf("question %d: %w", questionID, ErrQuestionNotAllocated)
	}
	if err != nil {
		return nil, err
	}
	answers, err := e.answers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	prev := ledger.Find(answers, run.ID, questionID)
	if prev != nil && prev.SelectedChoice != nil && *prev.SelectedChoice == choice {
		// Same choice again: nothing to rescore.
		return submitResult(st, run, q, *prev), nil
	}

	correct := choice == q.CorrectChoice
	streak := st.Session.Streak.Apply(correct)
	points := scoring.Award(scoring.ContextFor(st.Session.Kind), q.Difficulty, streak.Streak, q.Category, correct)

	selected := choice
	a := models.Answer{
		ID:             uuid.New(),
		SessionID:      sessionID,
		ModuleRunID:    run.ID,
		QuestionID:     questionID,
		SelectedChoice: &selected,
		IsCorrect:      correct,
		StreakAtAnswer: streak.Streak,
		PointsEarned:   points,
		Category:       q.Category,
		Seq:            ledger.NextSeq(answers),
		SubmittedAt:    now,
	}
	if prev != nil {
		a.ID = prev.ID
		a.IsFlagged = prev.IsFlagged
		// A revision keeps its place in the answer order.
		if prev.SelectedChoice != nil {
			a.Seq = prev.Seq
		}
	}
	answers = append(ledger.Without(answers, run.ID, questionID), a)

	sess := st.Session
	sess.Streak = streak
	sess.Scores, sess.TotalScore = ledger.Scores(answers)
	sess.UpdatedAt = now
	err = e.atomically(ctx, "submit answer", func(ctx context.Context, tx store.Store) error {
		if err := ledger.New(tx).Record(ctx, &a); err != nil {
			return err
		}
		return tx.UpdateSession(ctx, &sess)
	})
	if err != nil {
		return nil, err
	}
	st.Session = sess

	kind := string(st.Session.Kind)
	metrics.AnswersSubmitted.WithLabelValues(kind, strconv.FormatBool(correct)).Inc()
	metrics.PointsAwarded.WithLabelValues(kind).Add(float64(points))

	// Practice ends as soon as every drawn question has an answer.
	if st.Session.Kind == models.SessionPractice && len(ledger.Unanswered(run, answers)) == 0 {
		if err := e.completeModule(ctx, st, run, models.CompletionFinished, now); err != nil {
			return nil, err
		}
		if err := e.settle(ctx, st, now); err != nil {
			return nil, err
		}
		run = st.Module(runID)
	}

	return submitResult(st, run, q, a), nil
}

func submitResult(st *models.SessionState, run *models.ModuleRun, q *models.Question, a models.Answer) *models.SubmitResult {
	result := &models.SubmitResult{
		Answer:        a,
		PointsEarned:  a.PointsEarned,
		IsCorrect:     a.IsCorrect,
		Streak:        st.Session.Streak,
		ModuleStatus:  run.Status,
		SessionStatus: st.Session.Status,
	}
	if st.Session.Kind == models.SessionPractice {
		result.CorrectChoice = &q.CorrectChoice
		result.Explanation = &q.Explanation
	}
	return result
}

// ToggleFlag flips the review flag on a question of the active module. A
// flag on an unanswered question is stored without a choice and does not
// touch the streak.
func (e *Engine) ToggleFlag(ctx context.Context, owner int64, sessionID, runID uuid.UUID, questionID int64) (*models.Answer, error) {
	release, err := e.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := e.now()
	st, err := e.open(ctx, owner, sessionID, now)
	if err != nil {
		return nil, err
	}
	run, err := e.activeRun(st, runID, "flag question")
	if err != nil {
		return nil, err
	}
	if !run.HasQuestion(questionID) {
		return nil, ErrQuestionNotAllocated
	}

	answers, err := e.answers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var a models.Answer
	if prev := ledger.Find(answers, run.ID, questionID); prev != nil {
		a = *prev
		a.IsFlagged = !a.IsFlagged
	} else {
		q, err := value(ctx, e, "get question", func(ctx context.Context) (*models.Question, error) {
			return e.bank.Question(ctx, questionID)
		})
		if err != nil {
			return nil, err
		}
		a = models.Answer{
			ID:          uuid.New(),
			SessionID:   sessionID,
			ModuleRunID: run.ID,
			QuestionID:  questionID,
			IsFlagged:   true,
			Category:    q.Category,
			Seq:         ledger.NextSeq(answers),
			SubmittedAt: now,
		}
	}
	if err := e.record(ctx, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
