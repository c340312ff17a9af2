package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// HistoryStore is an in-memory implementation of history.Store.
type HistoryStore struct {
	runs   map[string]history.Run
	steps  []history.Step
	nextID int64
	mu     sync.RWMutex
	now    func() time.Time
}

// NewHistoryStore creates a new in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		runs: make(map[string]history.Run),
		now:  time.Now,
	}
}

// CreateRun persists a new run. An empty status defaults to pending.
func (s *HistoryStore) CreateRun(ctx context.Context, r history.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.ID == "" {
		return history.ErrInvalidRunID
	}
	if r.Status == "" {
		r.Status = history.RunPending
	}
	if !r.Status.IsValid() {
		return history.ErrInvalidStatus
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[r.ID]; exists {
		return history.ErrRunExists
	}
	r.Sequence = append(robot.Plan(nil), r.Sequence...)
	s.runs[r.ID] = r
	return nil
}

// SetRunStatus updates the run status.
func (s *HistoryStore) SetRunStatus(ctx context.Context, id string, status history.RunStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return history.ErrInvalidRunID
	}
	if !status.IsValid() {
		return history.ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return history.ErrRunNotFound
	}
	r.Status = status
	if status.IsFinal() {
		r.FinishedAt = s.now()
	}
	s.runs[id] = r
	return nil
}

// AddStep records a running step.
func (s *HistoryStore) AddStep(ctx context.Context, runID, position string, action robot.Action) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return 0, history.ErrRunNotFound
	}
	s.nextID++
	s.steps = append(s.steps, history.Step{
		ID:        s.nextID,
		RunID:     runID,
		Position:  position,
		Action:    action,
		State:     history.StepRunning,
		StartedAt: s.now(),
	})
	return s.nextID, nil
}

// FinishStep completes a step, or marks it errored when errMsg is set.
func (s *HistoryStore) FinishStep(ctx context.Context, stepID int64, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.steps {
		if s.steps[i].ID != stepID {
			continue
		}
		s.steps[i].State = history.StepCompleted
		if errMsg != "" {
			s.steps[i].State = history.StepError
			s.steps[i].Error = errMsg
		}
		s.steps[i].FinishedAt = s.now()
		return nil
	}
	return history.ErrStepNotFound
}

// Get retrieves a run by ID.
func (s *HistoryStore) Get(ctx context.Context, id string) (history.Run, error) {
	if err := ctx.Err(); err != nil {
		return history.Run{}, err
	}
	if id == "" {
		return history.Run{}, history.ErrInvalidRunID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return history.Run{}, history.ErrRunNotFound
	}
	return copyRun(r), nil
}

// LatestCompleted returns the newest completed run.
func (s *HistoryStore) LatestCompleted(ctx context.Context) (history.Run, error) {
	runs, err := s.List(ctx, history.ListFilter{Status: []history.RunStatus{history.RunCompleted}, Limit: 1})
	if err != nil {
		return history.Run{}, err
	}
	if len(runs) == 0 {
		return history.Run{}, history.ErrRunNotFound
	}
	return runs[0], nil
}

// List returns runs matching the filter, newest first.
func (s *HistoryStore) List(ctx context.Context, filter history.ListFilter) ([]history.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []history.Run
	for _, r := range s.runs {
		if filter.Matches(r) {
			result = append(result, copyRun(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Steps returns the steps of a run in dispatch order.
func (s *HistoryStore) Steps(ctx context.Context, runID string) ([]history.Step, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []history.Step
	for _, st := range s.steps {
		if st.RunID == runID {
			out = append(out, st)
		}
	}
	return out, nil
}

// FailedPositions returns distinct positions of errored steps, sorted.
func (s *HistoryStore) FailedPositions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, st := range s.steps {
		if st.State == history.StepError && st.Position != "" && !seen[st.Position] {
			seen[st.Position] = true
			out = append(out, st.Position)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Len returns the number of stored runs.
func (s *HistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

func copyRun(r history.Run) history.Run {
	r.Sequence = append(robot.Plan(nil), r.Sequence...)
	return r
}

var _ history.Store = (*HistoryStore)(nil)
