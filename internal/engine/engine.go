// Package engine drives assessment sessions through their lifecycle:
// allocation of module question sets, answer recording and scoring, timed
// module completion and the transitions between modules.
package engine

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"time"

	"github.com/examprep/backend/internal/allocation"
	"github.com/examprep/backend/internal/events"
	"github.com/examprep/backend/internal/ledger"
	"github.com/examprep/backend/internal/lock"
	"github.com/examprep/backend/internal/metrics"
	"github.com/examprep/backend/internal/models"
	"github.com/examprep/backend/internal/questions"
	"github.com/examprep/backend/internal/retry"
	"github.com/examprep/backend/internal/store"
	"github.com/google/uuid"
)

const (
	DefaultPracticeTarget = 10
	MaxPracticeTarget     = 100
)

type Options struct {
	// Locker serializes mutations per session. Defaults to an in-process lock.
	Locker lock.Locker
	// LockWait bounds how long a caller queues for a session lock.
	LockWait  time.Duration
	Publisher events.Publisher
	Retry     retry.Config
	// Rand seeds question sampling. Nil means a random seed.
	Rand rand.Source
	Now  func() time.Time
}

type Engine struct {
	store    store.Store
	bank     *questions.Bank
	planner  *allocation.Planner
	ledger   *ledger.Ledger
	locks    lock.Locker
	lockWait time.Duration
	events   events.Publisher
	retry    retry.Config
	now      func() time.Time
}

func New(st store.Store, opts Options) *Engine {
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 10 * time.Second
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	opts.Retry.Retryable = func(err error) bool { return errors.Is(err, store.ErrTransient) }
	opts.Retry.OnRetry = func(op string) { metrics.StoreRetries.WithLabelValues(op).Inc() }

	bank := questions.NewBank(st)
	return &Engine{
		store:    st,
		bank:     bank,
		planner:  allocation.NewPlanner(bank, opts.Rand),
		ledger:   ledger.New(st),
		locks:    opts.Locker,
		lockWait: opts.LockWait,
		events:   opts.Publisher,
		retry:    opts.Retry,
		now:      opts.Now,
	}
}

// ── Store access ────────────────────────────────────────

func (e *Engine) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return transient(op, retry.Do(ctx, e.retry, op, fn))
}

func value[T any](ctx context.Context, e *Engine, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := retry.Value(ctx, e.retry, op, fn)
	return v, transient(op, err)
}

func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		return &TransientStoreError{Op: op, Attempts: ex.Attempts, Err: ex.Err}
	}
	if errors.Is(err, store.ErrTransient) {
		return &TransientStoreError{Op: op, Attempts: 1, Err: err}
	}
	return err
}

// atomically runs fn in one store transaction. A transient failure retries
// the whole transaction, so fn must not depend on state it changed in an
// earlier attempt.
func (e *Engine) atomically(ctx context.Context, op string, fn func(ctx context.Context, tx store.Store) error) error {
	return e.do(ctx, op, func(ctx context.Context) error {
		return e.store.WithTx(ctx, func(tx store.Store) error {
			return fn(ctx, tx)
		})
	})
}

func (e *Engine) saveSession(ctx context.Context, s *models.Session) error {
	return e.do(ctx, "update session", func(ctx context.Context) error {
		return e.store.UpdateSession(ctx, s)
	})
}

func (e *Engine) saveRun(ctx context.Context, run *models.ModuleRun) error {
	return e.do(ctx, "update module run", func(ctx context.Context) error {
		return e.store.UpdateModuleRun(ctx, run)
	})
}

func (e *Engine) answers(ctx context.Context, sessionID uuid.UUID) ([]models.Answer, error) {
	return value(ctx, e, "list answers", func(ctx context.Context) ([]models.Answer, error) {
		return e.ledger.List(ctx, sessionID)
	})
}

func (e *Engine) record(ctx context.Context, a *models.Answer) error {
	return e.do(ctx, "record answer", func(ctx context.Context) error {
		return e.ledger.Record(ctx, a)
	})
}

// ── Locking and loading ─────────────────────────────────

func (e *Engine) lock(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.lockWait)
	defer cancel()
	release, err := e.locks.Lock(waitCtx, sessionID.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientStoreError{Op: "lock session", Attempts: 1, Err: err}
	}
	return release, nil
}

func (e *Engine) load(ctx context.Context, sessionID uuid.UUID) (*models.SessionState, error) {
	sess, err := value(ctx, e, "get session", func(ctx context.Context) (*models.Session, error) {
		return e.store.GetSession(ctx, sessionID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	runs, err := value(ctx, e, "list module runs", func(ctx context.Context) ([]models.ModuleRun, error) {
		return e.store.ListModuleRuns(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return &models.SessionState{Session: *sess, Modules: runs}, nil
}

// open loads a session on behalf of owner and applies any transition that is
// already due. Callers must hold the session lock.
func (e *Engine) open(ctx context.Context, owner int64, sessionID uuid.UUID, now time.Time) (*models.SessionState, error) {
	st, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.Session.OwnerID != owner {
		return nil, ErrForbidden
	}
	if err := e.settle(ctx, st, now); err != nil {
		return nil, err
	}
	return st, nil
}

func (e *Engine) stale(op string, st *models.SessionState, reason string) error {
	metrics.StaleTransitions.WithLabelValues(op).Inc()
	return &StaleTransitionError{Op: op, Reason: reason, State: st}
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.events.Publish(ctx, ev); err != nil {
		log.Printf("[events] publish %s for session %s: %v", ev.Type, ev.SessionID, err)
	}
}

func (e *Engine) event(t events.EventType, s *models.Session, now time.Time) events.Event {
	return events.Event{
		Type:       t,
		SessionID:  s.ID,
		OwnerID:    s.OwnerID,
		Kind:       s.Kind,
		Scores:     s.Scores,
		TotalScore: s.TotalScore,
		OccurredAt: now,
	}
}
