package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// StateStore persists the robot state as a single row. The row is seeded
// with the default state on first use and survives restarts.
type StateStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewStateStore opens the database and ensures the state row exists.
func NewStateStore(cfg Config, opts ...Option) (*StateStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &StateStore{db: db, now: time.Now}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewStateStoreFromDB creates a state store on an existing connection.
func NewStateStoreFromDB(db *sql.DB) (*StateStore, error) {
	s := &StateStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StateStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS robot_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			current_position TEXT NOT NULL,
			current_tool TEXT NOT NULL,
			last_updated TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}

	def := robot.DefaultState()
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO robot_state (id, current_position, current_tool, last_updated) VALUES (1, ?, ?, ?)`,
		def.Position, def.Tool, formatTime(s.now()),
	)
	if err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Get returns the current state.
func (s *StateStore) Get(ctx context.Context) (robot.State, error) {
	if err := ctx.Err(); err != nil {
		return robot.State{}, err
	}

	var st robot.State
	var updated string
	err := s.db.QueryRowContext(ctx,
		"SELECT current_position, current_tool, last_updated FROM robot_state WHERE id = 1",
	).Scan(&st.Position, &st.Tool, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return robot.DefaultState(), nil
	}
	if err != nil {
		return robot.State{}, err
	}
	st.LastUpdated = parseTime(updated)
	return st, nil
}

// SetPosition records the current position.
func (s *StateStore) SetPosition(ctx context.Context, position string) error {
	return s.update(ctx, "current_position", position)
}

// SetTool records the current tool. An empty tool means none.
func (s *StateStore) SetTool(ctx context.Context, tool string) error {
	if tool == "" {
		tool = robot.NoTool
	}
	return s.update(ctx, "current_tool", tool)
}

// update writes one column. column is always a constant from this file.
func (s *StateStore) update(ctx context.Context, column, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE robot_state SET "+column+" = ?, last_updated = ? WHERE id = 1",
		value, formatTime(s.now()),
	)
	return err
}

// Close closes the database connection.
func (s *StateStore) Close() error {
	return s.db.Close()
}

var _ robot.StateStore = (*StateStore)(nil)
