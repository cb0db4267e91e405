package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/examprep/backend/internal/allocation"
	"github.com/examprep/backend/internal/events"
	"github.com/examprep/backend/internal/ledger"
	"github.com/examprep/backend/internal/metrics"
	"github.com/examprep/backend/internal/models"
	"github.com/examprep/backend/internal/store"
	"github.com/google/uuid"
)

// settle applies every transition that is already due: an expired deadline
// on the current run, a completed run whose successor has not been opened,
// or a current index with no run behind it.
func (e *Engine) settle(ctx context.Context, st *models.SessionState, now time.Time) error {
	for st.Session.Status == models.SessionInProgress {
		cur := st.Current()
		switch {
		case cur == nil:
			if err := e.openRun(ctx, st, st.Session.CurrentModule, now); err != nil {
				return err
			}
			if st.Session.CurrentModule == 0 {
				return nil
			}
			if err := e.autoBegin(ctx, st, now); err != nil {
				return err
			}
			return nil
		case cur.Expired(now):
			if err := e.completeModule(ctx, st, cur, models.CompletionDeadline, now); err != nil {
				return err
			}
		case cur.Status == models.ModuleCompleted:
			if err := e.proceed(ctx, st, cur.Index, now); err != nil {
				return err
			}
		default:
			return nil
		}
	}
	return nil
}

// openRun creates the Pending run for index unless one already exists.
func (e *Engine) openRun(ctx context.Context, st *models.SessionState, index int, now time.Time) error {
	for _, m := range st.Modules {
		if m.Index == index {
			return nil
		}
	}

	run := models.ModuleRun{
		ID:        uuid.New(),
		SessionID: st.Session.ID,
		Index:     index,
		Config:    st.Session.Blueprint[index],
		Status:    models.ModulePending,
		CreatedAt: now,
	}
	err := e.do(ctx, "create module run", func(ctx context.Context) error {
		return e.store.CreateModuleRun(ctx, &run)
	})
	if errors.Is(err, store.ErrConflict) {
		// Another writer got there first; adopt its run.
		runs, err := value(ctx, e, "list module runs", func(ctx context.Context) ([]models.ModuleRun, error) {
			return e.store.ListModuleRuns(ctx, st.Session.ID)
		})
		if err != nil {
			return err
		}
		st.Modules = runs
		return nil
	}
	if err != nil {
		return err
	}
	st.Modules = append(st.Modules, run)
	return nil
}

// activate moves a Pending run to Active, allocating its questions first if
// that has not happened yet.
func (e *Engine) activate(ctx context.Context, st *models.SessionState, run *models.ModuleRun, now time.Time) error {
	if !run.Allocated() {
		answers, err := e.answers(ctx, st.Session.ID)
		if err != nil {
			return err
		}
		used := ledger.UsedQuestionIDs(answers)

		alloc, err := value(ctx, e, "allocate module", func(ctx context.Context) (*allocation.Allocation, error) {
			return e.planner.Plan(ctx, run.Config, used)
		})
		switch {
		case errors.Is(err, ErrInvalidModuleConfig):
			metrics.Allocations.WithLabelValues("invalid_config").Inc()
			return err
		case errors.Is(err, ErrAllocationExhausted):
			metrics.Allocations.WithLabelValues("exhausted").Inc()
			return err
		case err != nil:
			return err
		}

		stored, err := value(ctx, e, "set allocation", func(ctx context.Context) ([]int64, error) {
			return e.store.SetAllocation(ctx, run.ID, alloc.QuestionIDs)
		})
		if err != nil {
			return err
		}
		run.Allocation = stored

		deficit := 0
		for _, n := range alloc.Deficits {
			deficit += n
		}
		if deficit > 0 {
			metrics.Allocations.WithLabelValues("partial").Inc()
			metrics.AllocationDeficit.Add(float64(deficit))
		} else {
			metrics.Allocations.WithLabelValues("full").Inc()
		}
	}

	run.Status = models.ModuleActive
	run.Cursor = 0
	run.StartedAt = &now
	run.Deadline = nil
	if st.Session.Kind == models.SessionSimulator && run.Config.TimeLimitSeconds > 0 {
		deadline := now.Add(time.Duration(run.Config.TimeLimitSeconds) * time.Second)
		run.Deadline = &deadline
	}
	return e.saveRun(ctx, run)
}

// autoBegin activates the current run after a module transition. A module
// that cannot be allocated stays Pending so the session remains usable.
func (e *Engine) autoBegin(ctx context.Context, st *models.SessionState, now time.Time) error {
	run := st.Current()
	if run == nil || run.Status != models.ModulePending {
		return nil
	}
	err := e.activate(ctx, st, run, now)
	if errors.Is(err, ErrAllocationExhausted) || errors.Is(err, ErrInvalidModuleConfig) {
		log.Printf("[engine] session %s: module %d left pending: %v", st.Session.ID, run.Index, err)
		return nil
	}
	return err
}

// completeModule closes run with reason. Every allocated question without a
// selected choice is recorded as an auto-submitted incorrect answer, and the
// answers, the run and the session are written in one transaction.
func (e *Engine) completeModule(ctx context.Context, st *models.SessionState, run *models.ModuleRun, reason models.CompletionReason, now time.Time) error {
	answers, err := e.answers(ctx, st.Session.ID)
	if err != nil {
		return err
	}

	missing := ledger.Unanswered(run, answers)
	staged := make([]models.Answer, 0, len(missing))
	streak := st.Session.Streak
	if len(missing) > 0 {
		qs, err := value(ctx, e, "get questions", func(ctx context.Context) (map[int64]models.Question, error) {
			return e.bank.Questions(ctx, missing)
		})
		if err != nil {
			return err
		}

		seq := ledger.NextSeq(answers)
		for _, qid := range missing {
			a := models.Answer{
				ID:            uuid.New(),
				SessionID:     st.Session.ID,
				ModuleRunID:   run.ID,
				QuestionID:    qid,
				AutoSubmitted: true,
				Category:      qs[qid].Category,
				Seq:           seq,
				SubmittedAt:   now,
			}
			if prev := ledger.Find(answers, run.ID, qid); prev != nil {
				a.ID = prev.ID
				a.IsFlagged = prev.IsFlagged
			}
			staged = append(staged, a)
			answers = append(ledger.Without(answers, run.ID, qid), a)
			streak = streak.Apply(false)
			seq++
		}
	}

	done := *run
	done.Status = models.ModuleCompleted
	done.CompletedAt = &now
	done.CompletionReason = reason

	sess := st.Session
	sess.Streak = streak
	sess.Scores, sess.TotalScore = ledger.Scores(answers)
	sess.UpdatedAt = now

	err = e.atomically(ctx, "complete module", func(ctx context.Context, tx store.Store) error {
		l := ledger.New(tx)
		for i := range staged {
			if err := l.Record(ctx, &staged[i]); err != nil {
				return err
			}
		}
		if err := tx.UpdateModuleRun(ctx, &done); err != nil {
			return err
		}
		return tx.UpdateSession(ctx, &sess)
	})
	if err != nil {
		return err
	}
	*run = done
	st.Session = sess

	metrics.ModulesCompleted.WithLabelValues(string(reason)).Inc()
	log.Printf("[engine] session %s: module %d completed (%s, %d auto-submitted)", st.Session.ID, run.Index, reason, len(missing))

	ev := e.event(events.ModuleCompleted, &st.Session, now)
	runID := run.ID
	ev.ModuleRunID = &runID
	ev.Reason = reason
	e.publish(ctx, ev)
	return nil
}

// proceed moves the session past the completed module at index: either on
// to the next module, which is begun automatically, or to completion.
func (e *Engine) proceed(ctx context.Context, st *models.SessionState, index int, now time.Time) error {
	next := index + 1
	if next >= len(st.Session.Blueprint) {
		return e.completeSession(ctx, st, now)
	}

	if err := e.openRun(ctx, st, next, now); err != nil {
		return err
	}
	st.Session.CurrentModule = next
	st.Session.UpdatedAt = now
	if err := e.saveSession(ctx, &st.Session); err != nil {
		return err
	}
	return e.autoBegin(ctx, st, now)
}

func (e *Engine) completeSession(ctx context.Context, st *models.SessionState, now time.Time) error {
	answers, err := e.answers(ctx, st.Session.ID)
	if err != nil {
		return err
	}
	st.Session.Scores, st.Session.TotalScore = ledger.Scores(answers)
	st.Session.Status = models.SessionCompleted
	st.Session.CompletedAt = &now
	st.Session.UpdatedAt = now
	if err := e.saveSession(ctx, &st.Session); err != nil {
		return err
	}

	metrics.SessionsCompleted.WithLabelValues(string(st.Session.Kind)).Inc()
	log.Printf("[engine] session %s completed: total score %d", st.Session.ID, st.Session.TotalScore)
	e.publish(ctx, e.event(events.SessionCompleted, &st.Session, now))
	return nil
}
