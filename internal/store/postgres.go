package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/examprep/backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres implements Store over a lib/pq connection pool.
type Postgres struct {
	db queryer
	// pool is nil for a Postgres bound to a transaction.
	pool *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, pool: db}
}

// WithTx runs fn inside one database transaction. Calls made on a
// transaction-bound Postgres join the outer transaction.
func (s *Postgres) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(&Postgres{db: tx}); err != nil {
		return err
	}
	return classify("commit tx", tx.Commit())
}

// classify maps driver errors onto the store sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
		case pqErr.Code.Class() == "08", // connection exception
			pqErr.Code.Class() == "53", // insufficient resources
			pqErr.Code == "40001",      // serialization_failure
			pqErr.Code == "40P01",      // deadlock_detected
			pqErr.Code == "57014",      // query_canceled
			pqErr.Code == "57P01",      // admin_shutdown
			pqErr.Code == "57P03":      // cannot_connect_now
			return fmt.Errorf("%s: %w", op, Transient(err))
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w", op, Transient(err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ── Questions ───────────────────────────────────────────

const questionCols = `id, topic_id, subtopic_id, test_type_id, difficulty, category,
	stem, choices, correct_choice, explanation, created_at`

func scanQuestion(row interface{ Scan(...any) error }, q *models.Question) error {
	return row.Scan(&q.ID, &q.TopicID, &q.SubtopicID, &q.TestTypeID, &q.Difficulty, &q.Category,
		&q.Stem, pq.Array(&q.Choices), &q.CorrectChoice, &q.Explanation, &q.CreatedAt)
}

func (s *Postgres) QueryQuestions(ctx context.Context, f models.QuestionFilter) ([]models.Question, error) {
	where := []string{"active = TRUE"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.TopicID != nil {
		add("topic_id = $%d", *f.TopicID)
	}
	if f.SubtopicID != nil {
		add("subtopic_id = $%d", *f.SubtopicID)
	}
	if f.Difficulty != nil {
		add("difficulty = $%d", *f.Difficulty)
	}
	if f.TestTypeID != nil {
		add("test_type_id = $%d", *f.TestTypeID)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM questions WHERE %s ORDER BY id`, questionCols, strings.Join(where, " AND ")),
		args...,
	)
	if err != nil {
		return nil, classify("query questions", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		if err := scanQuestion(rows, &q); err != nil {
			return nil, classify("scan question", err)
		}
		questions = append(questions, q)
	}
	return questions, classify("query questions", rows.Err())
}

func (s *Postgres) GetQuestions(ctx context.Context, ids []int64) (map[int64]models.Question, error) {
	out := make(map[int64]models.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM questions WHERE id = ANY($1)`, questionCols),
		pq.Array(ids),
	)
	if err != nil {
		return nil, classify("get questions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q models.Question
		if err := scanQuestion(rows, &q); err != nil {
			return nil, classify("scan question", err)
		}
		out[q.ID] = q
	}
	return out, classify("get questions", rows.Err())
}

func (s *Postgres) TopicExists(ctx context.Context, topicID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM topics WHERE id = $1)`, topicID,
	).Scan(&exists)
	return exists, classify("topic exists", err)
}

func (s *Postgres) SubtopicExists(ctx context.Context, topicID, subtopicID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM subtopics WHERE id = $1 AND topic_id = $2)`, subtopicID, topicID,
	).Scan(&exists)
	return exists, classify("subtopic exists", err)
}

func (s *Postgres) ModuleConfigs(ctx context.Context, testTypeID int64) ([]models.ModuleConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, topic_quotas, total_questions, time_limit_seconds,
		        subtopic_id, difficulty, filter_test_type_id
		 FROM test_modules WHERE test_type_id = $1 ORDER BY position`,
		testTypeID,
	)
	if err != nil {
		return nil, classify("module configs", err)
	}
	defer rows.Close()

	var configs []models.ModuleConfig
	for rows.Next() {
		var c models.ModuleConfig
		var quotas []byte
		if err := rows.Scan(&c.Name, &quotas, &c.TotalQuestions, &c.TimeLimitSeconds,
			&c.SubtopicID, &c.Difficulty, &c.TestTypeID); err != nil {
			return nil, classify("scan module config", err)
		}
		if err := json.Unmarshal(quotas, &c.TopicQuotas); err != nil {
			return nil, fmt.Errorf("decode topic quotas: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, classify("module configs", rows.Err())
}

// ── Sessions ────────────────────────────────────────────

const sessionCols = `id, owner_id, kind, status, test_type_id, blueprint, current_module,
	scores, total_score, streak, mistakes, started_at, completed_at, created_at, updated_at`

func (s *Postgres) CreateSession(ctx context.Context, sess *models.Session) error {
	blueprint, scores, err := encodeSession(sess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, owner_id, kind, status, test_type_id, blueprint, current_module,
		                       scores, total_score, streak, mistakes, started_at, completed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		sess.ID, sess.OwnerID, sess.Kind, sess.Status, sess.TestTypeID, blueprint, sess.CurrentModule,
		scores, sess.TotalScore, sess.Streak.Streak, sess.Streak.Mistakes,
		sess.StartedAt, sess.CompletedAt, sess.CreatedAt, sess.UpdatedAt,
	)
	return classify("create session", err)
}

func (s *Postgres) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var sess models.Session
	var blueprint, scores []byte
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionCols), id,
	).Scan(&sess.ID, &sess.OwnerID, &sess.Kind, &sess.Status, &sess.TestTypeID, &blueprint, &sess.CurrentModule,
		&scores, &sess.TotalScore, &sess.Streak.Streak, &sess.Streak.Mistakes,
		&sess.StartedAt, &sess.CompletedAt, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, classify("get session", err)
	}
	if err := json.Unmarshal(blueprint, &sess.Blueprint); err != nil {
		return nil, fmt.Errorf("decode blueprint: %w", err)
	}
	if err := json.Unmarshal(scores, &sess.Scores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	return &sess, nil
}

func (s *Postgres) UpdateSession(ctx context.Context, sess *models.Session) error {
	blueprint, scores, err := encodeSession(sess)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET status = $1, blueprint = $2, current_module = $3, scores = $4, total_score = $5,
		     streak = $6, mistakes = $7, started_at = $8, completed_at = $9, updated_at = $10
		 WHERE id = $11`,
		sess.Status, blueprint, sess.CurrentModule, scores, sess.TotalScore,
		sess.Streak.Streak, sess.Streak.Mistakes, sess.StartedAt, sess.CompletedAt, sess.UpdatedAt,
		sess.ID,
	)
	if err != nil {
		return classify("update session", err)
	}
	return expectRow("update session", res)
}

func encodeSession(sess *models.Session) ([]byte, []byte, error) {
	blueprint, err := json.Marshal(sess.Blueprint)
	if err != nil {
		return nil, nil, fmt.Errorf("encode blueprint: %w", err)
	}
	scores := sess.Scores
	if scores == nil {
		scores = map[models.Category]int{}
	}
	encoded, err := json.Marshal(scores)
	if err != nil {
		return nil, nil, fmt.Errorf("encode scores: %w", err)
	}
	return blueprint, encoded, nil
}

func expectRow(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// ── Module Runs ─────────────────────────────────────────

const moduleRunCols = `id, session_id, module_index, config, status, allocation, question_cursor,
	started_at, deadline, completed_at, COALESCE(completion_reason, ''), created_at`

func scanModuleRun(row interface{ Scan(...any) error }) (*models.ModuleRun, error) {
	var m models.ModuleRun
	var config []byte
	if err := row.Scan(&m.ID, &m.SessionID, &m.Index, &config, &m.Status, pq.Array(&m.Allocation), &m.Cursor,
		&m.StartedAt, &m.Deadline, &m.CompletedAt, &m.CompletionReason, &m.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(config, &m.Config); err != nil {
		return nil, fmt.Errorf("decode module config: %w", err)
	}
	return &m, nil
}

func (s *Postgres) CreateModuleRun(ctx context.Context, m *models.ModuleRun) error {
	config, err := json.Marshal(m.Config)
	if err != nil {
		return fmt.Errorf("encode module config: %w", err)
	}
	var allocation any
	if m.Allocation != nil {
		allocation = pq.Array(m.Allocation)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO module_runs (id, session_id, module_index, config, status, allocation, question_cursor,
		                          started_at, deadline, completed_at, completion_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)`,
		m.ID, m.SessionID, m.Index, config, m.Status, allocation, m.Cursor,
		m.StartedAt, m.Deadline, m.CompletedAt, string(m.CompletionReason), m.CreatedAt,
	)
	return classify("create module run", err)
}

func (s *Postgres) GetModuleRun(ctx context.Context, id uuid.UUID) (*models.ModuleRun, error) {
	m, err := scanModuleRun(s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM module_runs WHERE id = $1`, moduleRunCols), id,
	))
	if err != nil {
		return nil, classify("get module run", err)
	}
	return m, nil
}

func (s *Postgres) ListModuleRuns(ctx context.Context, sessionID uuid.UUID) ([]models.ModuleRun, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM module_runs WHERE session_id = $1 ORDER BY module_index`, moduleRunCols),
		sessionID,
	)
	if err != nil {
		return nil, classify("list module runs", err)
	}
	defer rows.Close()

	var runs []models.ModuleRun
	for rows.Next() {
		m, err := scanModuleRun(rows)
		if err != nil {
			return nil, classify("scan module run", err)
		}
		runs = append(runs, *m)
	}
	return runs, classify("list module runs", rows.Err())
}

// UpdateModuleRun writes the mutable lifecycle columns. The allocation is
// only ever written by SetAllocation.
func (s *Postgres) UpdateModuleRun(ctx context.Context, m *models.ModuleRun) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE module_runs
		 SET status = $1, question_cursor = $2, started_at = $3, deadline = $4,
		     completed_at = $5, completion_reason = NULLIF($6, '')
		 WHERE id = $7`,
		m.Status, m.Cursor, m.StartedAt, m.Deadline, m.CompletedAt, string(m.CompletionReason), m.ID,
	)
	if err != nil {
		return classify("update module run", err)
	}
	return expectRow("update module run", res)
}

func (s *Postgres) SetAllocation(ctx context.Context, runID uuid.UUID, ids []int64) ([]int64, error) {
	var stored []int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE module_runs SET allocation = $1
		 WHERE id = $2 AND allocation IS NULL
		 RETURNING allocation`,
		pq.Array(ids), runID,
	).Scan(pq.Array(&stored))
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, classify("set allocation", err)
	}

	// Already allocated, or the run does not exist.
	err = s.db.QueryRowContext(ctx,
		`SELECT allocation FROM module_runs WHERE id = $1`, runID,
	).Scan(pq.Array(&stored))
	if err != nil {
		return nil, classify("get allocation", err)
	}
	return stored, nil
}

func (s *Postgres) ListExpiredModuleRuns(ctx context.Context, now time.Time, limit int) ([]models.ModuleRun, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM module_runs
		 WHERE status = $1 AND deadline IS NOT NULL AND deadline <= $2
		 ORDER BY deadline
		 LIMIT $3`, moduleRunCols),
		models.ModuleActive, now, limit,
	)
	if err != nil {
		return nil, classify("list expired module runs", err)
	}
	defer rows.Close()

	var runs []models.ModuleRun
	for rows.Next() {
		m, err := scanModuleRun(rows)
		if err != nil {
			return nil, classify("scan module run", err)
		}
		runs = append(runs, *m)
	}
	return runs, classify("list expired module runs", rows.Err())
}

// ── Answers ─────────────────────────────────────────────

func (s *Postgres) UpsertAnswer(ctx context.Context, a *models.Answer) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO answers (id, session_id, module_run_id, question_id, selected_choice, is_correct,
		                      is_flagged, auto_submitted, streak_at_answer, points_earned, category, seq, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (module_run_id, question_id) DO UPDATE
		 SET selected_choice = EXCLUDED.selected_choice, is_correct = EXCLUDED.is_correct,
		     is_flagged = EXCLUDED.is_flagged, auto_submitted = EXCLUDED.auto_submitted,
		     streak_at_answer = EXCLUDED.streak_at_answer, points_earned = EXCLUDED.points_earned,
		     category = EXCLUDED.category, seq = EXCLUDED.seq, submitted_at = EXCLUDED.submitted_at
		 RETURNING id`,
		a.ID, a.SessionID, a.ModuleRunID, a.QuestionID, a.SelectedChoice, a.IsCorrect,
		a.IsFlagged, a.AutoSubmitted, a.StreakAtAnswer, a.PointsEarned, a.Category, a.Seq, a.SubmittedAt,
	).Scan(&a.ID)
	return classify("upsert answer", err)
}

func (s *Postgres) ListAnswersBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, module_run_id, question_id, selected_choice, is_correct,
		        is_flagged, auto_submitted, streak_at_answer, points_earned, category, seq, submitted_at
		 FROM answers WHERE session_id = $1
		 ORDER BY seq, question_id`,
		sessionID,
	)
	if err != nil {
		return nil, classify("list answers", err)
	}
	defer rows.Close()

	var answers []models.Answer
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.ID, &a.SessionID, &a.ModuleRunID, &a.QuestionID, &a.SelectedChoice, &a.IsCorrect,
			&a.IsFlagged, &a.AutoSubmitted, &a.StreakAtAnswer, &a.PointsEarned, &a.Category, &a.Seq,
			&a.SubmittedAt); err != nil {
			return nil, classify("scan answer", err)
		}
		answers = append(answers, a)
	}
	return answers, classify("list answers", rows.Err())
}
