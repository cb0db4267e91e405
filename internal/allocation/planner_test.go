package allocation

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/examprep/backend/internal/models"
	"github.com/examprep/backend/internal/questions"
	"github.com/examprep/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bankWith seeds topic t with n questions whose ids start at t*100.
func bankWith(pools map[int64]int) *questions.Bank {
	m := store.NewMemory()
	for topic, n := range pools {
		m.AddTopic(topic)
		for i := 0; i < n; i++ {
			m.AddQuestions(models.Question{
				ID:         topic*100 + int64(i),
				TopicID:    topic,
				Difficulty: models.DifficultyModerate,
				Category:   models.CategoryNormal,
			})
		}
	}
	return questions.NewBank(m)
}

func topicOf(id int64) int64 { return id / 100 }

func countByTopic(ids []int64) map[int64]int {
	out := make(map[int64]int)
	for _, id := range ids {
		out[topicOf(id)]++
	}
	return out
}

func assertUnique(t *testing.T, ids []int64) {
	t.Helper()
	seen := make(map[int64]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "question %d allocated twice", id)
		seen[id] = true
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     models.ModuleConfig
		wantErr bool
	}{
		{"ok", models.ModuleConfig{TopicQuotas: map[int64]int{1: 2, 2: 1}, TotalQuestions: 3}, false},
		{"zero quota allowed", models.ModuleConfig{TopicQuotas: map[int64]int{1: 3, 2: 0}, TotalQuestions: 3}, false},
		{"sum too small", models.ModuleConfig{TopicQuotas: map[int64]int{1: 2}, TotalQuestions: 3}, true},
		{"sum too large", models.ModuleConfig{TopicQuotas: map[int64]int{1: 2, 2: 2}, TotalQuestions: 3}, true},
		{"no quotas", models.ModuleConfig{TotalQuestions: 3}, true},
		{"no questions", models.ModuleConfig{TopicQuotas: map[int64]int{1: 0}}, true},
		{"negative quota", models.ModuleConfig{TopicQuotas: map[int64]int{1: 4, 2: -1}, TotalQuestions: 3}, true},
		{"negative time limit", models.ModuleConfig{TopicQuotas: map[int64]int{1: 1}, TotalQuestions: 1, TimeLimitSeconds: -5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidModuleConfig))
				var cfgErr *ConfigError
				assert.True(t, errors.As(err, &cfgErr))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPlanRejectsConfigBeforeFetching(t *testing.T) {
	p := NewPlanner(bankWith(map[int64]int{1: 5}), rand.NewPCG(1, 2))
	_, err := p.Plan(context.Background(), models.ModuleConfig{
		Name:           "broken",
		TopicQuotas:    map[int64]int{1: 2},
		TotalQuestions: 5,
	}, nil)
	assert.ErrorIs(t, err, ErrInvalidModuleConfig)
}

func TestPlanUnknownTopicIsConfigError(t *testing.T) {
	p := NewPlanner(bankWith(map[int64]int{1: 5}), rand.NewPCG(1, 2))
	_, err := p.Plan(context.Background(), models.ModuleConfig{
		TopicQuotas:    map[int64]int{42: 1},
		TotalQuestions: 1,
	}, nil)
	assert.ErrorIs(t, err, ErrInvalidModuleConfig)
}

func TestPlanQuotaAndExclusion(t *testing.T) {
	ctx := context.Background()
	p := NewPlanner(bankWith(map[int64]int{1: 5, 2: 1}), rand.NewPCG(7, 11))

	first, err := p.Plan(ctx, models.ModuleConfig{
		Name:           "module 1",
		TopicQuotas:    map[int64]int{1: 2, 2: 1},
		TotalQuestions: 3,
	}, nil)
	require.NoError(t, err)
	require.Len(t, first.QuestionIDs, 3)
	assert.Equal(t, map[int64]int{1: 2, 2: 1}, countByTopic(first.QuestionIDs))
	assert.Empty(t, first.Deficits)
	assertUnique(t, first.QuestionIDs)

	used := make(map[int64]bool)
	for _, id := range first.QuestionIDs {
		used[id] = true
	}

	second, err := p.Plan(ctx, models.ModuleConfig{
		Name:           "module 2",
		TopicQuotas:    map[int64]int{1: 1},
		TotalQuestions: 1,
	}, used)
	require.NoError(t, err)
	require.Len(t, second.QuestionIDs, 1)
	assert.Equal(t, int64(1), topicOf(second.QuestionIDs[0]))
	assert.False(t, used[second.QuestionIDs[0]])
}

func TestPlanPartialFill(t *testing.T) {
	ctx := context.Background()
	p := NewPlanner(bankWith(map[int64]int{1: 3, 2: 4}), rand.NewPCG(3, 5))

	used := map[int64]bool{100: true, 101: true, 102: true}
	alloc, err := p.Plan(ctx, models.ModuleConfig{
		Name:           "module 2",
		TopicQuotas:    map[int64]int{1: 2, 2: 2},
		TotalQuestions: 4,
	}, used)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{2: 2}, countByTopic(alloc.QuestionIDs))
	assert.Equal(t, map[int64]int{1: 2}, alloc.Deficits)
}

func TestPlanTotalExhaustion(t *testing.T) {
	ctx := context.Background()
	p := NewPlanner(bankWith(map[int64]int{1: 2}), rand.NewPCG(3, 5))

	_, err := p.Plan(ctx, models.ModuleConfig{
		TopicQuotas:    map[int64]int{1: 2},
		TotalQuestions: 2,
	}, map[int64]bool{100: true, 101: true})
	assert.ErrorIs(t, err, ErrAllocationExhausted)
}

func TestPlanLengthProperty(t *testing.T) {
	ctx := context.Background()
	pools := map[int64]int{1: 4, 2: 2, 3: 9}
	p := NewPlanner(bankWith(pools), rand.NewPCG(99, 100))

	quotas := []map[int64]int{
		{1: 3, 2: 3, 3: 3},
		{1: 1, 3: 5},
		{2: 1, 3: 2},
	}

	used := make(map[int64]bool)
	for i, q := range quotas {
		total := 0
		expected := 0
		for topic, n := range q {
			total += n
			available := 0
			for j := 0; j < pools[topic]; j++ {
				if !used[topic*100+int64(j)] {
					available++
				}
			}
			expected += min(n, available)
		}

		alloc, err := p.Plan(ctx, models.ModuleConfig{TopicQuotas: q, TotalQuestions: total}, used)
		require.NoError(t, err, "module %d", i)
		assert.Len(t, alloc.QuestionIDs, expected, "module %d", i)
		for _, id := range alloc.QuestionIDs {
			assert.False(t, used[id], "module %d reused question %d", i, id)
			used[id] = true
		}
	}
}

func TestPlanIsReproducibleWithSeed(t *testing.T) {
	ctx := context.Background()
	cfg := models.ModuleConfig{TopicQuotas: map[int64]int{1: 3, 2: 3}, TotalQuestions: 6}

	a, err := NewPlanner(bankWith(map[int64]int{1: 10, 2: 10}), rand.NewPCG(5, 6)).Plan(ctx, cfg, nil)
	require.NoError(t, err)
	b, err := NewPlanner(bankWith(map[int64]int{1: 10, 2: 10}), rand.NewPCG(5, 6)).Plan(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, a.QuestionIDs, b.QuestionIDs)
}

func TestPlanCoversWholePool(t *testing.T) {
	ctx := context.Background()
	p := NewPlanner(bankWith(map[int64]int{1: 6}), rand.NewPCG(1, 1))
	cfg := models.ModuleConfig{TopicQuotas: map[int64]int{1: 1}, TotalQuestions: 1}

	seen := make(map[int64]bool)
	for i := 0; i < 500; i++ {
		alloc, err := p.Plan(ctx, cfg, nil)
		require.NoError(t, err)
		seen[alloc.QuestionIDs[0]] = true
	}
	assert.Len(t, seen, 6)
}
