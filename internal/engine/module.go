package engine

import (
	"context"
	"fmt"

	"github.com/examprep/backend/internal/ledger"
	"github.com/examprep/backend/internal/models"
	"github.com/google/uuid"
)

// ── Module Transitions ──────────────────────────────────

// BeginModule activates the session's current module, allocating its
// questions on first use. Beginning an Active module again changes nothing.
func (e *Engine) BeginModule(ctx context.Context, owner int64, sessionID, runID uuid.UUID) (*models.SessionState, error) {
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
	run := st.Module(runID)
	if run == nil {
		return nil, ErrModuleNotFound
	}

	switch {
	case run.Status == models.ModuleActive:
		return st, nil
	case run.Status == models.ModuleCompleted:
		return nil, e.stale("begin module", st, completedReason(run))
	case st.Session.Status != models.SessionInProgress:
		return nil, e.stale("begin module", st, "session is not in progress")
	case run.Index != st.Session.CurrentModule:
		return nil, e.stale("begin module", st, fmt.Sprintf("module %d is not the current module", run.Index))
	}

	if err := e.activate(ctx, st, run, now); err != nil {
		return nil, err
	}
	return st, nil
}

// Advance moves the question cursor forward. Advancing past the last
// question completes the module and opens the next one.
func (e *Engine) Advance(ctx context.Context, owner int64, sessionID, runID uuid.UUID) (*models.SessionState, error) {
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
	run, err := e.activeRun(st, runID, "advance module")
	if err != nil {
		return nil, err
	}

	if run.Cursor+1 < len(run.Allocation) {
		run.Cursor++
		if err := e.saveRun(ctx, run); err != nil {
			return nil, err
		}
		return st, nil
	}

	if err := e.completeModule(ctx, st, run, models.CompletionFinished, now); err != nil {
		return nil, err
	}
	if err := e.settle(ctx, st, now); err != nil {
		return nil, err
	}
	return st, nil
}

// FinishModule completes the module before its deadline. Unanswered
// questions are recorded as incorrect. The current module may also be
// finished while it is still Pending without questions, which skips it; this
// is how a session moves past a module whose allocation was exhausted.
func (e *Engine) FinishModule(ctx context.Context, owner int64, sessionID, runID uuid.UUID) (*models.SessionState, error) {
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

	reason := models.CompletionFinished
	run := st.Module(runID)
	if run != nil && skippable(st, run) {
		reason = models.CompletionSkipped
	} else if run, err = e.activeRun(st, runID, "finish module"); err != nil {
		return nil, err
	}

	if err := e.completeModule(ctx, st, run, reason, now); err != nil {
		return nil, err
	}
	if err := e.settle(ctx, st, now); err != nil {
		return nil, err
	}
	return st, nil
}

// ModuleQuestions returns the run's questions in allocation order, without
// correct choices, along with the candidate's answers so far.
func (e *Engine) ModuleQuestions(ctx context.Context, owner int64, sessionID, runID uuid.UUID) ([]models.ServedQuestion, error) {
	release, err := e.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := e.open(ctx, owner, sessionID, e.now())
	if err != nil {
		return nil, err
	}
	run := st.Module(runID)
	if run == nil {
		return nil, ErrModuleNotFound
	}
	if !run.Allocated() {
		return nil, e.stale("list questions", st, "module has not begun")
	}

	qs, err := value(ctx, e, "get questions", func(ctx context.Context) (map[int64]models.Question, error) {
		return e.bank.Questions(ctx, run.Allocation)
	})
	if err != nil {
		return nil, err
	}
	answers, err := e.answers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	byQuestion := ledger.ForRun(answers, run.ID)

	served := make([]models.ServedQuestion, 0, len(run.Allocation))
	for i, qid := range run.Allocation {
		q, ok := qs[qid]
		if !ok {
			return nil, fmt.Errorf("question %d of module %s: %w", qid, run.ID, ErrQuestionNotAllocated)
		}
		sq := models.ServedQuestion{
			Position:   i + 1,
			QuestionID: qid,
			Difficulty: q.Difficulty,
			Category:   q.Category,
			Stem:       q.Stem,
			Choices:    q.Choices,
		}
		if a, ok := byQuestion[qid]; ok {
			sq.SelectedChoice = a.SelectedChoice
			sq.IsFlagged = a.IsFlagged
		}
		served = append(served, sq)
	}
	return served, nil
}

// activeRun looks up runID and rejects it unless it is the session's active
// module.
func (e *Engine) activeRun(st *models.SessionState, runID uuid.UUID, op string) (*models.ModuleRun, error) {
	run := st.Module(runID)
	if run == nil {
		return nil, ErrModuleNotFound
	}
	switch run.Status {
	case models.ModuleCompleted:
		return nil, e.stale(op, st, completedReason(run))
	case models.ModulePending:
		return nil, e.stale(op, st, "module has not begun")
	}
	if st.Session.Status != models.SessionInProgress {
		return nil, e.stale(op, st, "session is not in progress")
	}
	return run, nil
}

// skippable reports whether run is the session's current module and has
// not been given any questions.
func skippable(st *models.SessionState, run *models.ModuleRun) bool {
	return st.Session.Status == models.SessionInProgress &&
		run.Index == st.Session.CurrentModule &&
		run.Status == models.ModulePending &&
		!run.Allocated()
}

func completedReason(run *models.ModuleRun) string {
	if run.CompletionReason == models.CompletionDeadline {
		return "module deadline has passed"
	}
	return "module already completed"
}
