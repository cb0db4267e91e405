// Package store is the data-access layer behind the assessment engine.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/examprep/backend/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write violates a uniqueness rule.
	ErrConflict = errors.New("store: conflict")
	// ErrTransient marks failures that may succeed when retried.
	ErrTransient = errors.New("store: transient failure")
)

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

type QuestionRepository interface {
	QueryQuestions(ctx context.Context, f models.QuestionFilter) ([]models.Question, error)
	GetQuestions(ctx context.Context, ids []int64) (map[int64]models.Question, error)
	TopicExists(ctx context.Context, topicID int64) (bool, error)
	SubtopicExists(ctx context.Context, topicID, subtopicID int64) (bool, error)
	ModuleConfigs(ctx context.Context, testTypeID int64) ([]models.ModuleConfig, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	UpdateSession(ctx context.Context, s *models.Session) error
}

type ModuleRunRepository interface {
	// CreateModuleRun fails with ErrConflict if the session already has a run
	// at the same index.
	CreateModuleRun(ctx context.Context, m *models.ModuleRun) error
	GetModuleRun(ctx context.Context, id uuid.UUID) (*models.ModuleRun, error)
	ListModuleRuns(ctx context.Context, sessionID uuid.UUID) ([]models.ModuleRun, error)
	UpdateModuleRun(ctx context.Context, m *models.ModuleRun) error
	// SetAllocation stores ids only if the run has no allocation yet and
	// returns whichever allocation the run ends up with.
	SetAllocation(ctx context.Context, runID uuid.UUID, ids []int64) ([]int64, error)
	ListExpiredModuleRuns(ctx context.Context, now time.Time, limit int) ([]models.ModuleRun, error)
}

type AnswerRepository interface {
	// UpsertAnswer writes on (module run, question); on conflict the existing
	// row is overwritten and its id is copied back into a.
	UpsertAnswer(ctx context.Context, a *models.Answer) error
	ListAnswersBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Answer, error)
}

// Transactor runs a unit of work atomically. fn gets a Store bound to the
// transaction; when fn returns an error none of its writes are kept.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type Store interface {
	QuestionRepository
	SessionRepository
	ModuleRunRepository
	AnswerRepository
	Transactor
}
