package engine

import (
	"context"
	"log"
	"time"

	"github.com/examprep/backend/internal/models"
	"github.com/google/uuid"
)

// ── Background Workers ──────────────────────────────────

// SweepExpired completes up to limit module runs whose deadline has passed
// and moves their sessions on. Sessions are also settled lazily on access;
// the sweep only bounds how long an abandoned session lingers.
func (e *Engine) SweepExpired(ctx context.Context, limit int) (int, error) {
	runs, err := value(ctx, e, "list expired module runs", func(ctx context.Context) ([]models.ModuleRun, error) {
		return e.store.ListExpiredModuleRuns(ctx, e.now(), limit)
	})
	if err != nil {
		return 0, err
	}

	swept := 0
	seen := make(map[uuid.UUID]bool)
	for _, run := range runs {
		if seen[run.SessionID] {
			continue
		}
		seen[run.SessionID] = true
		if err := e.expire(ctx, run.SessionID); err != nil {
			log.Printf("[sweeper] session %s: %v", run.SessionID, err)
			continue
		}
		swept++
	}
	return swept, nil
}

func (e *Engine) expire(ctx context.Context, sessionID uuid.UUID) error {
	release, err := e.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	st, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	return e.settle(ctx, st, e.now())
}

// RunSweeper calls SweepExpired every interval until ctx is cancelled.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration, limit int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[sweeper] Deadline sweeper started (every %s)", interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("[sweeper] Deadline sweeper shutting down")
			return
		case <-ticker.C:
			n, err := e.SweepExpired(ctx, limit)
			if err != nil {
				log.Printf("[sweeper] sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[sweeper] settled %d expired session(s)", n)
			}
		}
	}
}
