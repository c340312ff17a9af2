// Package neo4j implements the knowledge store on a Neo4j graph.
//
// Schema:
//
//	(:Position {name, role, description})
//	(:Tool {name, description})-[:TOOL_AVAILABLE_AT]->(:ToolStand {name})-[:LOCATED_AT]->(:Position)
//	(:Routine {name, description, required_tool})-[:SUPPORTED_AT {stabilize, action_after, verify}]->(:Position)
//	(:Position)-[:ONLY_ALLOWED_MOVE_TO]-(:Position)
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// Config configures the Neo4j connection.
type Config struct {
	URI      string
	Username string
	Password string
	Database string

	MaxConnectionPoolSize int
	ConnectionTimeout     time.Duration
}

// DefaultConfig returns connection defaults for a local server.
func DefaultConfig() Config {
	return Config{
		URI:                   "bolt://localhost:7687",
		Username:              "neo4j",
		MaxConnectionPoolSize: 10,
		ConnectionTimeout:     10 * time.Second,
	}
}

// querier runs cypher statements. It is the seam used by tests.
type querier interface {
	Read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)
	Write(ctx context.Context, cypher string, params map[string]any) error
	Close(ctx context.Context) error
}

type driverQuerier struct {
	driver   neo4j.DriverWithContext
	database string
}

func (d *driverQuerier) Read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: d.database, AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]*neo4j.Record), nil
}

func (d *driverQuerier) Write(ctx context.Context, cypher string, params map[string]any) error {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: d.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func (d *driverQuerier) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

// Store is a knowledge.Store backed by Neo4j.
type Store struct {
	q querier
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: neo4j uri is required", knowledge.ErrUnavailable)
	}

	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		if cfg.ConnectionTimeout > 0 {
			c.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
		}
	})
	if err != nil {
		return nil, errors.Join(knowledge.ErrUnavailable, err)
	}

	vctx := ctx
	if cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		vctx, cancel = context.WithTimeout(ctx, cfg.ConnectionTimeout)
		defer cancel()
	}
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, errors.Join(knowledge.ErrUnavailable, err)
	}

	return &Store{q: &driverQuerier{driver: driver, database: cfg.Database}}, nil
}

func newWithQuerier(q querier) *Store {
	return &Store{q: q}
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	return s.q.Close(ctx)
}

func (s *Store) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	records, err := s.q.Read(ctx, cypher, params)
	if err != nil {
		return nil, errors.Join(knowledge.ErrUnavailable, err)
	}
	return records, nil
}

// ListPositions returns all positions ordered by name.
func (s *Store) ListPositions(ctx context.Context) ([]robot.Position, error) {
	records, err := s.read(ctx, `
		MATCH (p:Position)
		RETURN p.name AS name, p.role AS role, p.description AS description
		ORDER BY p.name`, nil)
	if err != nil {
		return nil, err
	}
	out := make([]robot.Position, 0, len(records))
	for _, r := range records {
		out = append(out, robot.Position{
			Name:        str(r, "name"),
			Role:        robot.Role(str(r, "role")),
			Description: str(r, "description"),
		})
	}
	return out, nil
}

// ListTools returns all tools ordered by name.
func (s *Store) ListTools(ctx context.Context) ([]robot.Tool, error) {
	records, err := s.read(ctx, `
		MATCH (t:Tool)
		RETURN t.name AS name, t.description AS description
		ORDER BY t.name`, nil)
	if err != nil {
		return nil, err
	}
	out := make([]robot.Tool, 0, len(records))
	for _, r := range records {
		out = append(out, robot.Tool{Name: str(r, "name"), Description: str(r, "description")})
	}
	return out, nil
}

const routineReturn = `RETURN r.name AS name, r.description AS description,
		       COALESCE(r.required_tool, 'none') AS required_tool`

// ListRoutines returns all routines ordered by name.
func (s *Store) ListRoutines(ctx context.Context) ([]robot.Routine, error) {
	records, err := s.read(ctx, "MATCH (r:Routine)\n"+routineReturn+"\nORDER BY r.name", nil)
	if err != nil {
		return nil, err
	}
	out := make([]robot.Routine, 0, len(records))
	for _, r := range records {
		out = append(out, routineOf(r))
	}
	return out, nil
}

// GetRoutine returns a routine by name.
func (s *Store) GetRoutine(ctx context.Context, name string) (robot.Routine, error) {
	records, err := s.read(ctx, "MATCH (r:Routine {name: $name})\n"+routineReturn, map[string]any{"name": name})
	if err != nil {
		return robot.Routine{}, err
	}
	if len(records) == 0 {
		return robot.Routine{}, fmt.Errorf("%w: %s", knowledge.ErrRoutineNotFound, name)
	}
	return routineOf(records[0]), nil
}

// ToolLocations maps tools to the position of their stand.
func (s *Store) ToolLocations(ctx context.Context) (map[string]string, error) {
	records, err := s.read(ctx, `
		MATCH (t:Tool)-[:TOOL_AVAILABLE_AT]->(:ToolStand)-[:LOCATED_AT]->(p:Position)
		RETURN t.name AS tool, p.name AS position
		ORDER BY t.name`, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(records))
	for _, r := range records {
		out[str(r, "tool")] = str(r, "position")
	}
	return out, nil
}

// AllowedMoves returns the neighbours of position.
func (s *Store) AllowedMoves(ctx context.Context, position string) ([]string, error) {
	records, err := s.read(ctx, `
		MATCH (:Position {name: $from})-[:ONLY_ALLOWED_MOVE_TO]-(next:Position)
		RETURN DISTINCT next.name AS position
		ORDER BY position`, map[string]any{"from": position})
	if err != nil {
		return nil, err
	}
	return column(records, "position"), nil
}

// IsMoveAllowed reports whether a move edge connects a and b.
func (s *Store) IsMoveAllowed(ctx context.Context, a, b string) (bool, error) {
	records, err := s.read(ctx, `
		MATCH (:Position {name: $from})-[:ONLY_ALLOWED_MOVE_TO]-(:Position {name: $to})
		RETURN COUNT(*) > 0 AS allowed`, map[string]any{"from": a, "to": b})
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	v, _ := records[0].Get("allowed")
	allowed, _ := v.(bool)
	return allowed, nil
}

// SupportedPositions returns where routine is usable.
func (s *Store) SupportedPositions(ctx context.Context, routine string) ([]string, error) {
	records, err := s.read(ctx, `
		MATCH (:Routine {name: $routine})-[:SUPPORTED_AT]->(p:Position)
		RETURN p.name AS position
		ORDER BY position`, map[string]any{"routine": routine})
	if err != nil {
		return nil, err
	}
	return column(records, "position"), nil
}

// RoutineMetadata returns the SUPPORTED_AT properties of routine at position.
func (s *Store) RoutineMetadata(ctx context.Context, routine, position string) (robot.SupportMetadata, bool, error) {
	records, err := s.read(ctx, `
		MATCH (:Routine {name: $routine})-[s:SUPPORTED_AT]->(:Position {name: $position})
		RETURN s.stabilize AS stabilize, s.action_after AS action_after, s.verify AS verify`,
		map[string]any{"routine": routine, "position": position})
	if err != nil {
		return robot.SupportMetadata{}, false, err
	}
	if len(records) == 0 {
		return robot.SupportMetadata{}, false, nil
	}
	r := records[0]
	meta := robot.SupportMetadata{
		ActionAfter: str(r, "action_after"),
		Verify:      str(r, "verify"),
	}
	if v, ok := number(r, "stabilize"); ok {
		meta.Stabilize = robot.Seconds(v)
	}
	return meta, true, nil
}

// ShortestPath uses Neo4j's shortestPath over move edges.
func (s *Store) ShortestPath(ctx context.Context, a, b string) ([]string, error) {
	known, err := s.read(ctx, `
		MATCH (p:Position) WHERE p.name IN [$from, $to]
		RETURN p.name AS name`, map[string]any{"from": a, "to": b})
	if err != nil {
		return nil, err
	}
	names := column(known, "name")
	for _, want := range []string{a, b} {
		if !contains(names, want) {
			return nil, fmt.Errorf("%w: %s", knowledge.ErrPositionNotFound, want)
		}
	}
	if a == b {
		return []string{a}, nil
	}

	records, err := s.read(ctx, `
		MATCH path = shortestPath((:Position {name: $from})-[:ONLY_ALLOWED_MOVE_TO*]-(:Position {name: $to}))
		RETURN [n IN nodes(path) | n.name] AS positions`, map[string]any{"from": a, "to": b})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s to %s", knowledge.ErrNoPath, a, b)
	}
	raw, _ := records[0].Get("positions")
	list, _ := raw.([]any)
	path := make([]string, 0, len(list))
	for _, n := range list {
		if name, ok := n.(string); ok {
			path = append(path, name)
		}
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: %s to %s", knowledge.ErrNoPath, a, b)
	}
	return path, nil
}

func routineOf(r *neo4j.Record) robot.Routine {
	return robot.Routine{
		Name:         str(r, "name"),
		Description:  str(r, "description"),
		RequiredTool: str(r, "required_tool"),
	}
}

func str(r *neo4j.Record, key string) string {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func number(r *neo4j.Record, key string) (float64, bool) {
	v, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func column(records []*neo4j.Record, key string) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, str(r, key))
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var (
	_ knowledge.Store  = (*Store)(nil)
	_ knowledge.Closer = (*Store)(nil)
)
