package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/examprep/backend/internal/models"
	"github.com/google/uuid"
)

type answerKey struct {
	run      uuid.UUID
	question int64
}

type subtopicKey struct {
	topic, subtopic int64
}

// Memory is an in-process Store. It mirrors the Postgres semantics closely
// enough to drive the engine in tests and local runs.
type Memory struct {
	mu        sync.Mutex
	questions map[int64]models.Question
	topics    map[int64]bool
	subtopics map[subtopicKey]bool
	testTypes map[int64][]models.ModuleConfig
	sessions  map[uuid.UUID]models.Session
	runs      map[uuid.UUID]models.ModuleRun
	answers   map[answerKey]models.Answer
}

func NewMemory() *Memory {
	return &Memory{
		questions: make(map[int64]models.Question),
		topics:    make(map[int64]bool),
		subtopics: make(map[subtopicKey]bool),
		testTypes: make(map[int64][]models.ModuleConfig),
		sessions:  make(map[uuid.UUID]models.Session),
		runs:      make(map[uuid.UUID]models.ModuleRun),
		answers:   make(map[answerKey]models.Answer),
	}
}

// ── Seeding ─────────────────────────────────────────────

func (m *Memory) AddTopic(id int64, subtopics ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics[id] = true
	for _, s := range subtopics {
		m.subtopics[subtopicKey{id, s}] = true
	}
}

// AddQuestions stores questions and registers their topics.
func (m *Memory) AddQuestions(qs ...models.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range qs {
		m.questions[q.ID] = q
		m.topics[q.TopicID] = true
		if q.SubtopicID != nil {
			m.subtopics[subtopicKey{q.TopicID, *q.SubtopicID}] = true
		}
	}
}

func (m *Memory) SetModuleConfigs(testTypeID int64, configs []models.ModuleConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.testTypes[testTypeID] = configs
}

// ── Questions ───────────────────────────────────────────

func (m *Memory) QueryQuestions(ctx context.Context, f models.QuestionFilter) ([]models.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Question
	for _, q := range m.questions {
		if f.TopicID != nil && q.TopicID != *f.TopicID {
			continue
		}
		if f.SubtopicID != nil && (q.SubtopicID == nil || *q.SubtopicID != *f.SubtopicID) {
			continue
		}
		if f.Difficulty != nil && q.Difficulty != *f.Difficulty {
			continue
		}
		if f.TestTypeID != nil && (q.TestTypeID == nil || *q.TestTypeID != *f.TestTypeID) {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetQuestions(ctx context.Context, ids []int64) (map[int64]models.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int64]models.Question, len(ids))
	for _, id := range ids {
		if q, ok := m.questions[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (m *Memory) TopicExists(ctx context.Context, topicID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topics[topicID], nil
}

func (m *Memory) SubtopicExists(ctx context.Context, topicID, subtopicID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subtopics[subtopicKey{topicID, subtopicID}], nil
}

func (m *Memory) ModuleConfigs(ctx context.Context, testTypeID int64) ([]models.ModuleConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.testTypes[testTypeID]), nil
}

// ── Sessions ────────────────────────────────────────────

func cloneSession(s models.Session) models.Session {
	s.Blueprint = slices.Clone(s.Blueprint)
	scores := make(map[models.Category]int, len(s.Scores))
	for k, v := range s.Scores {
		scores[k] = v
	}
	s.Scores = scores
	return s
}

func (m *Memory) CreateSession(ctx context.Context, s *models.Session) error {
	if err := ctx.Err(); err != nil {
		return Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createSession(cloneSession(*s))
}

func (m *Memory) createSession(s models.Session) error {
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("create session: %w", ErrConflict)
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get session: %w", ErrNotFound)
	}
	out := cloneSession(s)
	return &out, nil
}

func (m *Memory) UpdateSession(ctx context.Context, s *models.Session) error {
	if err := ctx.Err(); err != nil {
		return Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateSession(cloneSession(*s))
}

func (m *Memory) updateSession(s models.Session) error {
	if _, ok := m.sessions[s.ID]; !ok {
		return fmt.Errorf("update session: %w", ErrNotFound)
	}
	m.sessions[s.ID] = s
	return nil
}

// ── Module Runs ─────────────────────────────────────────

func cloneRun(r models.ModuleRun) models.ModuleRun {
	r.Allocation = slices.Clone(r.Allocation)
	return r
}

func (m *Memory) CreateModuleRun(ctx context.Context, run *models.ModuleRun) error {
	if err := ctx.Err(); err != nil {
		return Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createModuleRun(cloneRun(*run))
}

func (m *Memory) createModuleRun(run models.ModuleRun) error {
	for _, r := range m.runs {
		if r.ID == run.ID || (r.SessionID == run.SessionID && r.Index == run.Index) {
			return fmt.Errorf("create module run: %w", ErrConflict)
		}
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetModuleRun(ctx context.Context, id uuid.UUID) (*models.ModuleRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("get module run: %w", ErrNotFound)
	}
	out := cloneRun(r)
	return &out, nil
}

func (m *Memory) ListModuleRuns(ctx context.Context, sessionID uuid.UUID) ([]models.ModuleRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ModuleRun
	for _, r := range m.runs {
		if r.SessionID == sessionID {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *Memory) UpdateModuleRun(ctx context.Context, run *models.ModuleRun) error {
	if err := ctx.Err(); err != nil {
		return Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateModuleRun(cloneRun(*run))
}

func (m *Memory) updateModuleRun(run models.ModuleRun) error {
	existing, ok := m.runs[run.ID]
	if !ok {
		return fmt.Errorf("update module run: %w", ErrNotFound)
	}
	run.Allocation = existing.Allocation
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) SetAllocation(ctx context.Context, runID uuid.UUID, ids []int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setAllocation(runID, ids)
}

func (m *Memory) setAllocation(runID uuid.UUID, ids []int64) ([]int64, error) {
	r, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("set allocation: %w", ErrNotFound)
	}
	if r.Allocation == nil {
		r.Allocation = slices.Clone(ids)
		m.runs[runID] = r
	}
	return slices.Clone(r.Allocation), nil
}

func (m *Memory) ListExpiredModuleRuns(ctx context.Context, now time.Time, limit int) ([]models.ModuleRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ModuleRun
	for _, r := range m.runs {
		if r.Expired(now) {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(*out[j].Deadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── Answers ─────────────────────────────────────────────

func (m *Memory) UpsertAnswer(ctx context.Context, a *models.Answer) error {
	if err := ctx.Err(); err != nil {
		return Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertAnswer(a)
	return nil
}

func (m *Memory) upsertAnswer(a *models.Answer) {
	key := answerKey{a.ModuleRunID, a.QuestionID}
	if existing, ok := m.answers[key]; ok {
		a.ID = existing.ID
	}
	m.answers[key] = *a
}

func (m *Memory) ListAnswersBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Answer
	for _, a := range m.answers {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].QuestionID < out[j].QuestionID
	})
	return out, nil
}

// ── Transactions ────────────────────────────────────────

// WithTx stages fn's writes and applies them together under the store lock.
// If fn fails nothing is applied; if one staged write fails the store is
// restored to its state before the commit. Reads inside fn see committed
// state only, not the transaction's own staged writes.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Store) error) error {
	tx := &memoryTx{Memory: m}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return Transient(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sessions, runs, answers := maps.Clone(m.sessions), maps.Clone(m.runs), maps.Clone(m.answers)
	for _, op := range tx.ops {
		if err := op(); err != nil {
			m.sessions, m.runs, m.answers = sessions, runs, answers
			return err
		}
	}
	return nil
}

// memoryTx is the Store handed to a Memory transaction. Writes are queued
// and run by WithTx while it holds the lock.
type memoryTx struct {
	*Memory
	ops []func() error
}

func (t *memoryTx) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memoryTx) stage(ctx context.Context, op func() error) error {
	if err := ctx.Err(); err != nil {
		return Transient(err)
	}
	t.ops = append(t.ops, op)
	return nil
}

func (t *memoryTx) CreateSession(ctx context.Context, s *models.Session) error {
	c := cloneSession(*s)
	return t.stage(ctx, func() error { return t.createSession(c) })
}

func (t *memoryTx) UpdateSession(ctx context.Context, s *models.Session) error {
	c := cloneSession(*s)
	return t.stage(ctx, func() error { return t.updateSession(c) })
}

func (t *memoryTx) CreateModuleRun(ctx context.Context, run *models.ModuleRun) error {
	c := cloneRun(*run)
	return t.stage(ctx, func() error { return t.createModuleRun(c) })
}

func (t *memoryTx) UpdateModuleRun(ctx context.Context, run *models.ModuleRun) error {
	c := cloneRun(*run)
	return t.stage(ctx, func() error { return t.updateModuleRun(c) })
}

// SetAllocation returns ids as given; whether an earlier allocation wins is
// only decided at commit.
func (t *memoryTx) SetAllocation(ctx context.Context, runID uuid.UUID, ids []int64) ([]int64, error) {
	c := slices.Clone(ids)
	err := t.stage(ctx, func() error {
		_, err := t.setAllocation(runID, c)
		return err
	})
	return slices.Clone(ids), err
}

func (t *memoryTx) UpsertAnswer(ctx context.Context, a *models.Answer) error {
	t.mu.Lock()
	if existing, ok := t.answers[answerKey{a.ModuleRunID, a.QuestionID}]; ok {
		a.ID = existing.ID
	}
	t.mu.Unlock()

	c := *a
	return t.stage(ctx, func() error {
		t.upsertAnswer(&c)
		return nil
	})
}
