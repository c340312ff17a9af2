package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// StateStore keeps the robot state in a single-row table.
type StateStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewStateStore creates a state store. Call Migrate before first use.
func NewStateStore(pool *pgxpool.Pool, schema string) *StateStore {
	if schema == "" {
		schema = "public"
	}
	return &StateStore{pool: pool, schema: schema}
}

func (s *StateStore) tableName() string {
	return qualify(s.schema, "robot_state")
}

// Migrate creates the table and seeds the default state.
func (s *StateStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			current_position TEXT NOT NULL,
			current_tool TEXT NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL
		)
	`, s.tableName())
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}

	def := robot.DefaultState()
	seed := fmt.Sprintf(`
		INSERT INTO %s (id, current_position, current_tool, last_updated)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO NOTHING
	`, s.tableName())
	if _, err := s.pool.Exec(ctx, seed, def.Position, def.Tool); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Get returns the current state.
func (s *StateStore) Get(ctx context.Context) (robot.State, error) {
	query := fmt.Sprintf(`SELECT current_position, current_tool, last_updated FROM %s WHERE id = 1`, s.tableName())

	var st robot.State
	var updated time.Time
	err := s.pool.QueryRow(ctx, query).Scan(&st.Position, &st.Tool, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return robot.DefaultState(), nil
	}
	if err != nil {
		return robot.State{}, wrapError(err)
	}
	st.LastUpdated = updated.UTC()
	return st, nil
}

// SetPosition records the current position.
func (s *StateStore) SetPosition(ctx context.Context, position string) error {
	query := fmt.Sprintf(`UPDATE %s SET current_position = $1, last_updated = now() WHERE id = 1`, s.tableName())
	_, err := s.pool.Exec(ctx, query, position)
	return wrapError(err)
}

// SetTool records the current tool. An empty tool means none.
func (s *StateStore) SetTool(ctx context.Context, tool string) error {
	if tool == "" {
		tool = robot.NoTool
	}
	query := fmt.Sprintf(`UPDATE %s SET current_tool = $1, last_updated = now() WHERE id = 1`, s.tableName())
	_, err := s.pool.Exec(ctx, query, tool)
	return wrapError(err)
}

var _ robot.StateStore = (*StateStore)(nil)
