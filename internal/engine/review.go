package engine

import (
	"context"

	"github.com/examprep/backend/internal/ledger"
	"github.com/examprep/backend/internal/models"
	"github.com/examprep/backend/internal/scoring"
	"github.com/google/uuid"
)

// Review returns every completed module with correct choices and
// explanations revealed, the category scores, and an ability estimate
// replayed over the candidate's chosen answers.
func (e *Engine) Review(ctx context.Context, owner int64, sessionID uuid.UUID) (*models.SessionReview, error) {
	release, err := e.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := e.open(ctx, owner, sessionID, e.now())
	if err != nil {
		return nil, err
	}
	answers, err := e.answers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var ids []int64
	for _, m := range st.Modules {
		ids = append(ids, m.Allocation...)
	}
	qs, err := value(ctx, e, "get questions", func(ctx context.Context) (map[int64]models.Question, error) {
		return e.bank.Questions(ctx, ids)
	})
	if err != nil {
		return nil, err
	}

	review := &models.SessionReview{
		Session: st.Session,
		Modules: []models.ModuleReview{},
		Scores:  st.Session.Scores,
		Total:   st.Session.TotalScore,
	}
	for i := range st.Modules {
		run := &st.Modules[i]
		if run.Status != models.ModuleCompleted {
			continue
		}
		review.Modules = append(review.Modules, reviewModule(run, qs, ledger.ForRun(answers, run.ID)))
	}

	var outcomes []scoring.Outcome
	for _, a := range answers {
		q, ok := qs[a.QuestionID]
		if !ok || a.SelectedChoice == nil {
			continue
		}
		outcomes = append(outcomes, scoring.Outcome{DifficultyScore: q.Difficulty.Score(), Correct: a.IsCorrect})
	}
	review.Ability = scoring.EstimateAbility(outcomes)
	return review, nil
}

func reviewModule(run *models.ModuleRun, qs map[int64]models.Question, answers map[int64]models.Answer) models.ModuleReview {
	mr := models.ModuleReview{
		ModuleRunID:      run.ID,
		Name:             run.Config.Name,
		CompletionReason: run.CompletionReason,
		Total:            len(run.Allocation),
		Questions:        make([]models.ReviewedQuestion, 0, len(run.Allocation)),
	}
	for _, qid := range run.Allocation {
		q := qs[qid]
		rq := models.ReviewedQuestion{
			QuestionID:    qid,
			Difficulty:    q.Difficulty,
			Category:      q.Category,
			Stem:          q.Stem,
			Choices:       q.Choices,
			CorrectChoice: q.CorrectChoice,
			Explanation:   q.Explanation,
		}
		if a, ok := answers[qid]; ok {
			rq.SelectedChoice = a.SelectedChoice
			rq.IsCorrect = a.IsCorrect
			rq.IsFlagged = a.IsFlagged
			rq.PointsEarned = a.PointsEarned
			rq.StreakAtAnswer = a.StreakAtAnswer
		}
		if rq.IsCorrect {
			mr.Correct++
		}
		mr.Points += rq.PointsEarned
		mr.Questions = append(mr.Questions, rq)
	}
	return mr
}
