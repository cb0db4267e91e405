package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/examprep/backend/internal/models"
	"github.com/examprep/backend/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails session updates with a transient error a set number of
// times before letting them through, inside transactions as well.
type flakyStore struct {
	store.Store
	*failures
}

type failures struct {
	mu    sync.Mutex
	left  int
	calls int
}

func newFlakyStore(m *store.Memory) flakyStore {
	return flakyStore{Store: m, failures: &failures{}}
}

func (f *failures) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = n
	f.calls = 0
}

func (f *failures) next() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.left > 0 {
		f.left--
		return true
	}
	return false
}

func (f flakyStore) UpdateSession(ctx context.Context, s *models.Session) error {
	if f.next() {
		return store.Transient(errors.New("connection reset by peer"))
	}
	return f.Store.UpdateSession(ctx, s)
}

func (f flakyStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.WithTx(ctx, func(tx store.Store) error {
		return fn(flakyStore{Store: tx, failures: f.failures})
	})
}

func TestTransientFailuresAreRetried(t *testing.T) {
	ctx := context.Background()
	fs := newFlakyStore(seed())
	e, _ := newEngine(fs, nil)

	testType := int64(2)
	st, err := e.CreateSession(ctx, owner, models.CreateSessionRequest{Kind: models.SessionSimulator, TestTypeID: &testType})
	require.NoError(t, err)

	fs.failNext(2)
	st, err = e.Start(ctx, owner, st.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionInProgress, st.Session.Status)
	assert.Equal(t, 3, fs.calls)
}

func TestTransientFailuresSurfaceAfterRetries(t *testing.T) {
	ctx := context.Background()
	m := seed()
	fs := newFlakyStore(m)
	e, _ := newEngine(fs, nil)
	st := startSimulator(t, e, 2)
	run := st.Current()

	fs.failNext(10)
	_, err := e.SubmitAnswer(ctx, owner, st.Session.ID, run.ID, run.Allocation[0], 1)
	require.ErrorIs(t, err, ErrTransientStore)

	var te *TransientStoreError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "submit answer", te.Op)
	assert.Equal(t, 3, te.Attempts)
	assert.ErrorIs(t, err, store.ErrTransient)

	// The answer was written in the same transaction as the session and
	// went with it.
	assert.Empty(t, runAnswers(t, m, st.Session.ID, run.ID))
}

func TestFailedCompletionLeavesModuleUntouched(t *testing.T) {
	ctx := context.Background()
	m := seed()
	fs := newFlakyStore(m)
	e, _ := newEngine(fs, nil)
	st := startSimulator(t, e, 2)
	sid, run := st.Session.ID, st.Current()

	_, err := e.SubmitAnswer(ctx, owner, sid, run.ID, run.Allocation[0], 1)
	require.NoError(t, err)

	fs.failNext(10)
	_, err = e.FinishModule(ctx, owner, sid, run.ID)
	require.ErrorIs(t, err, ErrTransientStore)

	answers := runAnswers(t, m, sid, run.ID)
	require.Len(t, answers, 1, "no auto-submitted answers survive the failed completion")
	assert.False(t, answers[0].AutoSubmitted)
	stored, err := m.GetModuleRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ModuleActive, stored.Status)

	fs.failNext(0)
	st, err = e.FinishModule(ctx, owner, sid, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, st.Session.Status)
	assert.Len(t, runAnswers(t, m, sid, run.ID), 3)
	assert.Equal(t, models.StreakState{Mistakes: 2}, st.Session.Streak)
}

func TestNonTransientErrorsAreNotRetried(t *testing.T) {
	ctx := context.Background()
	fs := newFlakyStore(seed())
	e, _ := newEngine(fs, nil)

	_, err := e.State(ctx, owner, uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NotErrorIs(t, err, ErrTransientStore)
}

func TestStaleTransitionError(t *testing.T) {
	st := &models.SessionState{}
	err := error(&StaleTransitionError{Op: "advance module", Reason: "module already completed", State: st})

	assert.ErrorIs(t, err, ErrStaleTransition)
	assert.EqualError(t, err, "advance module: stale transition: module already completed")

	var stale *StaleTransitionError
	require.True(t, errors.As(err, &stale))
	assert.Same(t, st, stale.State)
}
