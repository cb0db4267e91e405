// Package questions is the read-only question bank the allocation planner
// and the engine draw from.
package questions

import (
	"context"
	"errors"
	"fmt"

	"github.com/examprep/backend/internal/models"
	"github.com/examprep/backend/internal/store"
)

// ErrNotFound is returned when a filter names a topic or subtopic that does
// not exist. An existing topic with no matching questions is not an error.
var ErrNotFound = errors.New("questions: not found")

type Bank struct {
	repo store.QuestionRepository
}

func NewBank(repo store.QuestionRepository) *Bank {
	return &Bank{repo: repo}
}

// FetchPool returns every active question matching f.
func (b *Bank) FetchPool(ctx context.Context, f models.QuestionFilter) ([]models.Question, error) {
	if f.Difficulty != nil && !models.ValidDifficulties[*f.Difficulty] {
		return nil, fmt.Errorf("%w: difficulty %q", ErrNotFound, *f.Difficulty)
	}
	if f.TopicID != nil {
		ok, err := b.repo.TopicExists(ctx, *f.TopicID)
		if err != nil {
			return nil, fmt.Errorf("fetch pool: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: topic %d", ErrNotFound, *f.TopicID)
		}
		if f.SubtopicID != nil {
			ok, err := b.repo.SubtopicExists(ctx, *f.TopicID, *f.SubtopicID)
			if err != nil {
				return nil, fmt.Errorf("fetch pool: %w", err)
			}
			if !ok {
				return nil, fmt.Errorf("%w: subtopic %d of topic %d", ErrNotFound, *f.SubtopicID, *f.TopicID)
			}
		}
	}

	pool, err := b.repo.QueryQuestions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("fetch pool: %w", err)
	}
	return pool, nil
}

// Questions loads questions by id. Missing ids are absent from the map.
func (b *Bank) Questions(ctx context.Context, ids []int64) (map[int64]models.Question, error) {
	qs, err := b.repo.GetQuestions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	return qs, nil
}

func (b *Bank) Question(ctx context.Context, id int64) (*models.Question, error) {
	qs, err := b.Questions(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	q, ok := qs[id]
	if !ok {
		return nil, fmt.Errorf("%w: question %d", ErrNotFound, id)
	}
	return &q, nil
}

func (b *Bank) TopicExists(ctx context.Context, topicID int64) (bool, error) {
	ok, err := b.repo.TopicExists(ctx, topicID)
	if err != nil {
		return false, fmt.Errorf("topic exists: %w", err)
	}
	return ok, nil
}

// ModuleConfigs returns the ordered module blueprints of a test type.
func (b *Bank) ModuleConfigs(ctx context.Context, testTypeID int64) ([]models.ModuleConfig, error) {
	configs, err := b.repo.ModuleConfigs(ctx, testTypeID)
	if err != nil {
		return nil, fmt.Errorf("module configs: %w", err)
	}
	return configs, nil
}
