package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// HistoryStore is a SQLite-backed implementation of history.Store.
type HistoryStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewHistoryStore opens the database and creates the history tables.
func NewHistoryStore(cfg Config, opts ...Option) (*HistoryStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &HistoryStore{db: db, now: time.Now}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewHistoryStoreFromDB creates a history store on an existing connection.
func NewHistoryStoreFromDB(db *sql.DB) (*HistoryStore, error) {
	s := &HistoryStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *HistoryStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			operator_input TEXT NOT NULL,
			sequence_json TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed')),
			started_at TEXT NOT NULL,
			finished_at TEXT
		);
		CREATE TABLE IF NOT EXISTS run_steps (
			step_id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			position TEXT NOT NULL,
			action TEXT NOT NULL CHECK (action IN ('move', 'routine')),
			state TEXT NOT NULL CHECK (state IN ('pending', 'running', 'completed', 'error')),
			error TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			FOREIGN KEY (run_id) REFERENCES runs (run_id)
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
		CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
		CREATE INDEX IF NOT EXISTS idx_run_steps_run_id ON run_steps(run_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
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
	if r.Sequence == nil {
		r.Sequence = robot.Plan{}
	}

	seq, err := json.Marshal(r.Sequence)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, operator_input, sequence_json, status, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.OperatorInput, string(seq), string(r.Status), formatTime(r.StartedAt), nullTime(r.FinishedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return history.ErrRunExists
		}
		return err
	}
	return nil
}

// SetRunStatus updates the run status. Final statuses stamp finished_at.
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

	var finished sql.NullString
	if status.IsFinal() {
		finished = sql.NullString{String: formatTime(s.now()), Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, finished_at = COALESCE(?, finished_at) WHERE run_id = ?",
		string(status), finished, id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return history.ErrRunNotFound
	}
	return nil
}

// AddStep records a running step and returns its id.
func (s *HistoryStore) AddStep(ctx context.Context, runID, position string, action robot.Action) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE run_id = ?", runID).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, history.ErrRunNotFound
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO run_steps (run_id, position, action, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, position, string(action), string(history.StepRunning), formatTime(s.now()),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// FinishStep completes a step, or marks it errored when errMsg is set.
func (s *HistoryStore) FinishStep(ctx context.Context, stepID int64, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state := history.StepCompleted
	var errCol sql.NullString
	if errMsg != "" {
		state = history.StepError
		errCol = sql.NullString{String: errMsg, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE run_steps SET state = ?, error = ?, finished_at = ? WHERE step_id = ?",
		string(state), errCol, formatTime(s.now()), stepID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return history.ErrStepNotFound
	}
	return nil
}

const runColumns = "run_id, operator_input, sequence_json, status, started_at, finished_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (history.Run, error) {
	var (
		r        history.Run
		seq      string
		status   string
		started  string
		finished sql.NullString
	)
	if err := row.Scan(&r.ID, &r.OperatorInput, &seq, &status, &started, &finished); err != nil {
		return history.Run{}, err
	}
	if err := json.Unmarshal([]byte(seq), &r.Sequence); err != nil {
		return history.Run{}, err
	}
	r.Status = history.RunStatus(status)
	r.StartedAt = parseTime(started)
	if finished.Valid {
		r.FinishedAt = parseTime(finished.String)
	}
	return r, nil
}

// Get retrieves a run by ID.
func (s *HistoryStore) Get(ctx context.Context, id string) (history.Run, error) {
	if err := ctx.Err(); err != nil {
		return history.Run{}, err
	}
	if id == "" {
		return history.Run{}, history.ErrInvalidRunID
	}

	r, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE run_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return history.Run{}, history.ErrRunNotFound
	}
	return r, err
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
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := "SELECT " + runColumns + " FROM runs"
	where, args := buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY started_at DESC, run_id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []history.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			continue // Skip malformed entries
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func buildWhereClause(filter history.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !filter.FromTime.IsZero() {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, formatTime(filter.FromTime))
	}
	if !filter.ToTime.IsZero() {
		conditions = append(conditions, "started_at < ?")
		args = append(args, formatTime(filter.ToTime))
	}
	if filter.InputPattern != "" {
		conditions = append(conditions, "operator_input LIKE ?")
		args = append(args, "%"+filter.InputPattern+"%")
	}

	return strings.Join(conditions, " AND "), args
}

// Steps returns the steps of a run in dispatch order.
func (s *HistoryStore) Steps(ctx context.Context, runID string) ([]history.Step, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT step_id, run_id, position, action, state, error, started_at, finished_at
		 FROM run_steps WHERE run_id = ? ORDER BY step_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var steps []history.Step
	for rows.Next() {
		var (
			st       history.Step
			action   string
			state    string
			errMsg   sql.NullString
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.RunID, &st.Position, &action, &state, &errMsg, &started, &finished); err != nil {
			return nil, err
		}
		st.Action = robot.Action(action)
		st.State = history.StepState(state)
		st.Error = errMsg.String
		st.StartedAt = parseTime(started)
		if finished.Valid {
			st.FinishedAt = parseTime(finished.String)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// FailedPositions returns distinct positions of errored steps, sorted.
func (s *HistoryStore) FailedPositions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT position FROM run_steps WHERE state = ? AND position != '' ORDER BY position",
		string(history.StepError),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

var _ history.Store = (*HistoryStore)(nil)
