package engine

import (
	"context"
	"testing"
	"time"

	"github.com/examprep/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	m := seed()
	e, clk := newEngine(m, nil)

	timed := startSimulator(t, e, 2)
	untouched := startSimulator(t, e, 3)

	clk.Advance(5 * time.Minute)
	n, err := e.SweepExpired(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing has expired yet")

	clk.Advance(5*time.Minute + time.Second)
	n, err = e.SweepExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sess, err := m.GetSession(ctx, timed.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, sess.Status)

	runs, err := m.ListModuleRuns(ctx, untouched.Session.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, models.CompletionDeadline, runs[0].CompletionReason)
	assert.Equal(t, models.ModuleActive, runs[1].Status)

	n, err = e.SweepExpired(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	e, _ := newEngine(seed(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		e.RunSweeper(ctx, time.Millisecond, 10)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
