package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// HistoryStore is a PostgreSQL-backed implementation of history.Store.
type HistoryStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewHistoryStore creates a history store. Call Migrate before first use.
func NewHistoryStore(pool *pgxpool.Pool, schema string) *HistoryStore {
	if schema == "" {
		schema = "public"
	}
	return &HistoryStore{pool: pool, schema: schema}
}

func (s *HistoryStore) runsTable() string  { return qualify(s.schema, "runs") }
func (s *HistoryStore) stepsTable() string { return qualify(s.schema, "run_steps") }

// Migrate creates the runs and run_steps tables.
func (s *HistoryStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			run_id TEXT PRIMARY KEY,
			operator_input TEXT NOT NULL,
			sequence_json JSONB NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed')),
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS %[2]s (
			step_id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES %[1]s (run_id),
			position TEXT NOT NULL,
			action TEXT NOT NULL CHECK (action IN ('move', 'routine')),
			state TEXT NOT NULL CHECK (state IN ('pending', 'running', 'completed', 'error')),
			error TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON %[1]s (started_at);
	`, s.runsTable(), s.stepsTable())

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// CreateRun persists a new run. An empty status defaults to pending.
func (s *HistoryStore) CreateRun(ctx context.Context, r history.Run) error {
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
		r.StartedAt = time.Now()
	}
	if r.Sequence == nil {
		r.Sequence = robot.Plan{}
	}

	seq, err := json.Marshal(r.Sequence)
	if err != nil {
		return fmt.Errorf("marshal sequence: %w", err)
	}

	var finished *time.Time
	if !r.FinishedAt.IsZero() {
		finished = &r.FinishedAt
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, operator_input, sequence_json, status, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.runsTable())

	_, err = s.pool.Exec(ctx, query, r.ID, r.OperatorInput, seq, string(r.Status), r.StartedAt, finished)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return history.ErrRunExists
		}
		return wrapError(err)
	}
	return nil
}

// SetRunStatus updates the run status. Final statuses stamp finished_at.
func (s *HistoryStore) SetRunStatus(ctx context.Context, id string, status history.RunStatus) error {
	if id == "" {
		return history.ErrInvalidRunID
	}
	if !status.IsValid() {
		return history.ErrInvalidStatus
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2,
			finished_at = CASE WHEN $3 THEN now() ELSE finished_at END
		WHERE run_id = $1
	`, s.runsTable())

	result, err := s.pool.Exec(ctx, query, id, string(status), status.IsFinal())
	if err != nil {
		return wrapError(err)
	}
	if result.RowsAffected() == 0 {
		return history.ErrRunNotFound
	}
	return nil
}

// AddStep records a running step and returns its id.
func (s *HistoryStore) AddStep(ctx context.Context, runID, position string, action robot.Action) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, position, action, state, started_at)
		SELECT run_id, $2, $3, $4, now() FROM %s WHERE run_id = $1
		RETURNING step_id
	`, s.stepsTable(), s.runsTable())

	var id int64
	err := s.pool.QueryRow(ctx, query, runID, position, string(action), string(history.StepRunning)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, history.ErrRunNotFound
	}
	if err != nil {
		return 0, wrapError(err)
	}
	return id, nil
}

// FinishStep completes a step, or marks it errored when errMsg is set.
func (s *HistoryStore) FinishStep(ctx context.Context, stepID int64, errMsg string) error {
	state := history.StepCompleted
	var errCol *string
	if errMsg != "" {
		state = history.StepError
		errCol = &errMsg
	}

	query := fmt.Sprintf(`UPDATE %s SET state = $2, error = $3, finished_at = now() WHERE step_id = $1`, s.stepsTable())
	result, err := s.pool.Exec(ctx, query, stepID, string(state), errCol)
	if err != nil {
		return wrapError(err)
	}
	if result.RowsAffected() == 0 {
		return history.ErrStepNotFound
	}
	return nil
}

const runColumns = "run_id, operator_input, sequence_json, status, started_at, finished_at"

func scanRun(row pgx.Row) (history.Run, error) {
	var (
		r        history.Run
		seq      []byte
		status   string
		finished *time.Time
	)
	if err := row.Scan(&r.ID, &r.OperatorInput, &seq, &status, &r.StartedAt, &finished); err != nil {
		return history.Run{}, err
	}
	if err := json.Unmarshal(seq, &r.Sequence); err != nil {
		return history.Run{}, fmt.Errorf("unmarshal sequence: %w", err)
	}
	r.Status = history.RunStatus(status)
	if finished != nil {
		r.FinishedAt = *finished
	}
	return r, nil
}

// Get retrieves a run by ID.
func (s *HistoryStore) Get(ctx context.Context, id string) (history.Run, error) {
	if id == "" {
		return history.Run{}, history.ErrInvalidRunID
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE run_id = $1`, runColumns, s.runsTable())
	r, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return history.Run{}, history.ErrRunNotFound
	}
	if err != nil {
		return history.Run{}, wrapError(err)
	}
	return r, nil
}

// LatestCompleted returns the most recently started completed run.
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
	query, args := s.buildListQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer rows.Close()

	var runs []history.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(err)
	}
	return runs, nil
}

func (s *HistoryStore) buildListQuery(filter history.ListFilter) (string, []any) {
	whereClause, args := buildWhereClause(filter)

	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY started_at DESC, run_id DESC`, runColumns, s.runsTable(), whereClause)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func buildWhereClause(filter history.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		args = append(args, statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !filter.FromTime.IsZero() {
		args = append(args, filter.FromTime)
		conditions = append(conditions, fmt.Sprintf("started_at >= $%d", len(args)))
	}
	if !filter.ToTime.IsZero() {
		args = append(args, filter.ToTime)
		conditions = append(conditions, fmt.Sprintf("started_at < $%d", len(args)))
	}
	if filter.InputPattern != "" {
		args = append(args, "%"+filter.InputPattern+"%")
		conditions = append(conditions, fmt.Sprintf("operator_input ILIKE $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// Steps returns the steps of a run in dispatch order.
func (s *HistoryStore) Steps(ctx context.Context, runID string) ([]history.Step, error) {
	query := fmt.Sprintf(`
		SELECT step_id, run_id, position, action, state, error, started_at, finished_at
		FROM %s WHERE run_id = $1 ORDER BY step_id
	`, s.stepsTable())

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, wrapError(err)
	}
	defer rows.Close()

	var steps []history.Step
	for rows.Next() {
		var (
			st       history.Step
			action   string
			state    string
			errMsg   *string
			finished *time.Time
		)
		if err := rows.Scan(&st.ID, &st.RunID, &st.Position, &action, &state, &errMsg, &st.StartedAt, &finished); err != nil {
			return nil, err
		}
		st.Action = robot.Action(action)
		st.State = history.StepState(state)
		if errMsg != nil {
			st.Error = *errMsg
		}
		if finished != nil {
			st.FinishedAt = *finished
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// FailedPositions returns distinct positions of errored steps, sorted.
func (s *HistoryStore) FailedPositions(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT position FROM %s
		WHERE state = $1 AND position <> ''
		ORDER BY position
	`, s.stepsTable())

	rows, err := s.pool.Query(ctx, query, string(history.StepError))
	if err != nil {
		return nil, wrapError(err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

var _ history.Store = (*HistoryStore)(nil)
