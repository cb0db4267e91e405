package ledger

import (
	"context"
	"testing"

	"github.com/examprep/backend/internal/models"
	"github.com/examprep/backend/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choice(c int) *int { return &c }

func TestScores(t *testing.T) {
	answers := []models.Answer{
		{Category: models.CategoryNormal, PointsEarned: 20},
		{Category: models.CategoryAnalogy, PointsEarned: 6},
		{Category: models.CategoryNormal, PointsEarned: 24},
		{Category: models.CategoryGrammar, PointsEarned: 0},
	}
	scores, total := Scores(answers)
	assert.Equal(t, map[models.Category]int{models.CategoryNormal: 44, models.CategoryAnalogy: 6}, scores)
	assert.Equal(t, 50, total)
}

func TestUnanswered(t *testing.T) {
	run := &models.ModuleRun{ID: uuid.New(), Allocation: []int64{5, 3, 9, 1}}
	other := uuid.New()
	answers := []models.Answer{
		{ModuleRunID: run.ID, QuestionID: 3, SelectedChoice: choice(2)},
		{ModuleRunID: run.ID, QuestionID: 9, IsFlagged: true},
		{ModuleRunID: other, QuestionID: 1, SelectedChoice: choice(2)},
	}
	assert.Equal(t, []int64{5, 9, 1}, Unanswered(run, answers))
}

func TestNextSeqAndWithout(t *testing.T) {
	run := uuid.New()
	assert.Equal(t, int64(1), NextSeq(nil))

	answers := []models.Answer{
		{ModuleRunID: run, QuestionID: 1, Seq: 4},
		{ModuleRunID: run, QuestionID: 2, Seq: 2},
	}
	assert.Equal(t, int64(5), NextSeq(answers))

	rest := Without(answers, run, 1)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(2), rest[0].QuestionID)
	assert.Nil(t, Find(rest, run, 1))
	assert.NotNil(t, Find(answers, run, 1))
}

func TestRecordUpserts(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory())
	sessionID, run := uuid.New(), uuid.New()

	first := &models.Answer{SessionID: sessionID, ModuleRunID: run, QuestionID: 1, SelectedChoice: choice(1), Seq: 1}
	require.NoError(t, l.Record(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)

	again := &models.Answer{SessionID: sessionID, ModuleRunID: run, QuestionID: 1, SelectedChoice: choice(3), Seq: 2}
	require.NoError(t, l.Record(ctx, again))
	assert.Equal(t, first.ID, again.ID)

	answers, err := l.List(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, 3, *answers[0].SelectedChoice)
	assert.Equal(t, map[int64]bool{1: true}, UsedQuestionIDs(answers))
}
