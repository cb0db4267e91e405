// Package allocation turns a module's topic quotas into a concrete, ordered
// list of question ids that never repeats a question within a session.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/examprep/backend/internal/models"
	"github.com/examprep/backend/internal/questions"
)

var (
	ErrInvalidModuleConfig = errors.New("invalid module config")
	ErrAllocationExhausted = errors.New("allocation exhausted: no questions available")
)

// ConfigError describes why a module blueprint was rejected.
type ConfigError struct {
	Module string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid module config %q: %s", e.Module, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidModuleConfig }

// Validate rejects blueprints whose quotas cannot describe the module.
func Validate(cfg models.ModuleConfig) error {
	if cfg.TotalQuestions <= 0 {
		return &ConfigError{Module: cfg.Name, Reason: fmt.Sprintf("total questions %d must be positive", cfg.TotalQuestions)}
	}
	if len(cfg.TopicQuotas) == 0 {
		return &ConfigError{Module: cfg.Name, Reason: "no topic quotas"}
	}
	if cfg.TimeLimitSeconds < 0 {
		return &ConfigError{Module: cfg.Name, Reason: "negative time limit"}
	}
	sum := 0
	for topic, quota := range cfg.TopicQuotas {
		if quota < 0 {
			return &ConfigError{Module: cfg.Name, Reason: fmt.Sprintf("negative quota %d for topic %d", quota, topic)}
		}
		sum += quota
	}
	if sum != cfg.TotalQuestions {
		return &ConfigError{Module: cfg.Name, Reason: fmt.Sprintf("quotas sum to %d, module declares %d", sum, cfg.TotalQuestions)}
	}
	return nil
}

// PoolFetcher is the part of the question bank the planner needs.
type PoolFetcher interface {
	FetchPool(ctx context.Context, f models.QuestionFilter) ([]models.Question, error)
}

// Allocation is the planner's output for one module run.
type Allocation struct {
	QuestionIDs []int64
	// Deficits maps topic id to the number of questions the pool was short.
	Deficits map[int64]int
}

type Planner struct {
	bank PoolFetcher

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPlanner creates a planner. A nil src seeds from the runtime.
func NewPlanner(bank PoolFetcher, src rand.Source) *Planner {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Planner{bank: bank, rng: rand.New(src)}
}

// Plan draws min(quota, available) questions per topic uniformly at random,
// excluding used, then shuffles the combined list once more so position
// says nothing about topic.
func (p *Planner) Plan(ctx context.Context, cfg models.ModuleConfig, used map[int64]bool) (*Allocation, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	topics := make([]int64, 0, len(cfg.TopicQuotas))
	for topic := range cfg.TopicQuotas {
		topics = append(topics, topic)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })

	alloc := &Allocation{Deficits: make(map[int64]int)}
	for _, topic := range topics {
		quota := cfg.TopicQuotas[topic]
		if quota == 0 {
			continue
		}

		pool, err := p.bank.FetchPool(ctx, cfg.Filter(topic))
		if errors.Is(err, questions.ErrNotFound) {
			return nil, &ConfigError{Module: cfg.Name, Reason: err.Error()}
		}
		if err != nil {
			return nil, fmt.Errorf("plan topic %d: %w", topic, err)
		}

		available := make([]int64, 0, len(pool))
		for _, q := range pool {
			if !used[q.ID] {
				available = append(available, q.ID)
			}
		}
		sort.Slice(available, func(i, j int) bool { return available[i] < available[j] })

		if len(available) < quota {
			alloc.Deficits[topic] = quota - len(available)
			log.Printf("[planner] module %q topic %d: quota %d, only %d unused questions available",
				cfg.Name, topic, quota, len(available))
		}
		alloc.QuestionIDs = append(alloc.QuestionIDs, p.sample(available, quota)...)
	}

	if len(alloc.QuestionIDs) == 0 {
		return nil, fmt.Errorf("module %q: %w", cfg.Name, ErrAllocationExhausted)
	}

	p.mu.Lock()
	p.rng.Shuffle(len(alloc.QuestionIDs), func(i, j int) {
		alloc.QuestionIDs[i], alloc.QuestionIDs[j] = alloc.QuestionIDs[j], alloc.QuestionIDs[i]
	})
	p.mu.Unlock()

	return alloc, nil
}

// sample returns min(k, len(ids)) ids chosen without replacement. ids is
// reordered in place.
func (p *Planner) sample(ids []int64, k int) []int64 {
	if k > len(ids) {
		k = len(ids)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < k; i++ {
		j := i + p.rng.IntN(len(ids)-i)
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids[:k]
}
