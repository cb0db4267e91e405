package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/examprep/backend/internal/allocation"
	"github.com/examprep/backend/internal/events"
	"github.com/examprep/backend/internal/models"
	"github.com/google/uuid"
)

// ── Session Lifecycle ───────────────────────────────────

// CreateSession builds a NotStarted session. Simulator sessions take their
// blueprint from the test type's configured modules; practice sessions get a
// single untimed module drawn from one topic.
func (e *Engine) CreateSession(ctx context.Context, owner int64, req models.CreateSessionRequest) (*models.SessionState, error) {
	var blueprint []models.ModuleConfig

	switch req.Kind {
	case models.SessionSimulator:
		if req.TestTypeID == nil {
			return nil, fmt.Errorf("%w: test_type_id is required for simulator sessions", ErrInvalidRequest)
		}
		configs, err := value(ctx, e, "get module configs", func(ctx context.Context) ([]models.ModuleConfig, error) {
			return e.bank.ModuleConfigs(ctx, *req.TestTypeID)
		})
		if err != nil {
			return nil, err
		}
		if len(configs) == 0 {
			return nil, &allocation.ConfigError{
				Module: fmt.Sprintf("test type %d", *req.TestTypeID),
				Reason: "no modules configured",
			}
		}
		for _, cfg := range configs {
			if err := allocation.Validate(cfg); err != nil {
				return nil, err
			}
		}
		blueprint = configs

	case models.SessionPractice:
		p := req.Practice
		if p == nil {
			return nil, fmt.Errorf("%w: practice parameters are required", ErrInvalidRequest)
		}
		target := p.TargetCount
		if target == 0 {
			target = DefaultPracticeTarget
		}
		if target < 0 || target > MaxPracticeTarget {
			return nil, fmt.Errorf("%w: target_count must be between 1 and %d", ErrInvalidRequest, MaxPracticeTarget)
		}
		if p.Difficulty != nil && !models.ValidDifficulties[*p.Difficulty] {
			return nil, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, *p.Difficulty)
		}
		exists, err := value(ctx, e, "check topic", func(ctx context.Context) (bool, error) {
			return e.bank.TopicExists(ctx, p.TopicID)
		})
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %d", ErrUnknownTopic, p.TopicID)
		}
		blueprint = []models.ModuleConfig{{
			Name:           "practice",
			TopicQuotas:    map[int64]int{p.TopicID: target},
			TotalQuestions: target,
			SubtopicID:     p.SubtopicID,
			Difficulty:     p.Difficulty,
			TestTypeID:     p.TestTypeID,
		}}

	default:
		return nil, fmt.Errorf("%w: unknown session kind %q", ErrInvalidRequest, req.Kind)
	}

	now := e.now()
	sess := models.Session{
		ID:         uuid.New(),
		OwnerID:    owner,
		Kind:       req.Kind,
		Status:     models.SessionNotStarted,
		TestTypeID: req.TestTypeID,
		Blueprint:  blueprint,
		Scores:     map[models.Category]int{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := e.do(ctx, "create session", func(ctx context.Context) error {
		return e.store.CreateSession(ctx, &sess)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[engine] created %s session %s for user %d (%d modules)", sess.Kind, sess.ID, owner, len(blueprint))
	return &models.SessionState{Session: sess, Modules: []models.ModuleRun{}}, nil
}

// Start moves a NotStarted session to InProgress with its first module
// Pending. Starting a running session again is a no-op.
func (e *Engine) Start(ctx context.Context, owner int64, sessionID uuid.UUID) (*models.SessionState, error) {
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
	switch st.Session.Status {
	case models.SessionInProgress:
		return st, nil
	case models.SessionCompleted:
		return nil, e.stale("start session", st, "session already completed")
	}

	if err := e.openRun(ctx, st, 0, now); err != nil {
		return nil, err
	}
	st.Session.Status = models.SessionInProgress
	st.Session.CurrentModule = 0
	st.Session.StartedAt = &now
	st.Session.UpdatedAt = now
	if err := e.saveSession(ctx, &st.Session); err != nil {
		return nil, err
	}

	e.publish(ctx, e.event(events.SessionStarted, &st.Session, now))
	return st, nil
}

// State returns the authoritative snapshot of a session, applying any
// deadline that has passed since the last access.
func (e *Engine) State(ctx context.Context, owner int64, sessionID uuid.UUID) (*models.SessionState, error) {
	release, err := e.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	return e.open(ctx, owner, sessionID, e.now())
}
