package neo4j

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/knowledge/graphtest"
	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// fakeQuerier answers reads by matching a fragment of the cypher text.
type fakeQuerier struct {
	answers map[string][]*neo4j.Record
	err     error
	writes  []string
}

func (f *fakeQuerier) Read(_ context.Context, cypher string, _ map[string]any) ([]*neo4j.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	for fragment, records := range f.answers {
		if strings.Contains(cypher, fragment) {
			return records, nil
		}
	}
	return nil, nil
}

func (f *fakeQuerier) Write(_ context.Context, cypher string, _ map[string]any) error {
	f.writes = append(f.writes, cypher)
	return f.err
}

func (f *fakeQuerier) Close(context.Context) error { return nil }

func rec(kv ...any) *neo4j.Record {
	r := &neo4j.Record{}
	for i := 0; i < len(kv); i += 2 {
		r.Keys = append(r.Keys, kv[i].(string))
		r.Values = append(r.Values, kv[i+1])
	}
	return r
}

func TestStore_Lists(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{answers: map[string][]*neo4j.Record{
		"MATCH (p:Position)\n": {
			rec("name", "Home", "role", "home", "description", nil),
			rec("name", "StationB", "role", "work", "description", "Inspection"),
		},
		"MATCH (t:Tool)\n": {rec("name", "Camera", "description", "Vision")},
		"MATCH (r:Routine)\n": {
			rec("name", "scan", "description", "", "required_tool", "Camera"),
		},
		"TOOL_AVAILABLE_AT": {rec("tool", "Camera", "position", "CamStand")},
	}}
	s := newWithQuerier(q)
	ctx := context.Background()

	positions, err := s.ListPositions(ctx)
	if err != nil {
		t.Fatalf("ListPositions() error = %v", err)
	}
	want := []robot.Position{
		{Name: "Home", Role: robot.RoleHome},
		{Name: "StationB", Role: robot.RoleWork, Description: "Inspection"},
	}
	if diff := cmp.Diff(want, positions); diff != "" {
		t.Errorf("ListPositions() mismatch (-want +got):\n%s", diff)
	}

	tools, _ := s.ListTools(ctx)
	if len(tools) != 1 || tools[0].Name != "Camera" {
		t.Errorf("ListTools() = %v", tools)
	}

	routines, _ := s.ListRoutines(ctx)
	if len(routines) != 1 || routines[0].Required() != "Camera" {
		t.Errorf("ListRoutines() = %v", routines)
	}

	locations, _ := s.ToolLocations(ctx)
	if locations["Camera"] != "CamStand" {
		t.Errorf("ToolLocations() = %v", locations)
	}
}

func TestStore_RoutineMetadata(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{answers: map[string][]*neo4j.Record{
		"SUPPORTED_AT]->(:Position {name: $position})": {
			rec("stabilize", int64(2), "action_after", "check_part", "verify", nil),
		},
	}}
	s := newWithQuerier(q)

	meta, ok, err := s.RoutineMetadata(context.Background(), "pick", "StationA")
	if err != nil || !ok {
		t.Fatalf("RoutineMetadata() = %v, %v", ok, err)
	}
	if meta.Stabilize == nil || *meta.Stabilize != 2 {
		t.Errorf("Stabilize = %v", meta.Stabilize)
	}
	if meta.ActionAfter != "check_part" || meta.Verify != "" {
		t.Errorf("meta = %+v", meta)
	}

	empty := newWithQuerier(&fakeQuerier{})
	if _, ok, _ := empty.RoutineMetadata(context.Background(), "pick", "Home"); ok {
		t.Error("missing support edge should report not found")
	}
}

func TestStore_GetRoutineNotFound(t *testing.T) {
	t.Parallel()

	s := newWithQuerier(&fakeQuerier{})
	if _, err := s.GetRoutine(context.Background(), "dance"); !errors.Is(err, knowledge.ErrRoutineNotFound) {
		t.Errorf("GetRoutine() error = %v", err)
	}
}

func TestStore_ShortestPath(t *testing.T) {
	t.Parallel()

	both := []*neo4j.Record{rec("name", "Home"), rec("name", "StationB")}

	tests := []struct {
		name    string
		answers map[string][]*neo4j.Record
		from    string
		to      string
		want    []string
		wantErr error
	}{
		{
			name: "path found",
			answers: map[string][]*neo4j.Record{
				"WHERE p.name IN": both,
				"shortestPath":    {rec("positions", []any{"Home", "Junction", "CamStand", "StationB"})},
			},
			from: "Home", to: "StationB",
			want: []string{"Home", "Junction", "CamStand", "StationB"},
		},
		{
			name:    "no path",
			answers: map[string][]*neo4j.Record{"WHERE p.name IN": both},
			from:    "Home", to: "StationB",
			wantErr: knowledge.ErrNoPath,
		},
		{
			name:    "unknown position",
			answers: map[string][]*neo4j.Record{"WHERE p.name IN": {rec("name", "Home")}},
			from:    "Home", to: "Mars",
			wantErr: knowledge.ErrPositionNotFound,
		},
		{
			name:    "same position",
			answers: map[string][]*neo4j.Record{"WHERE p.name IN": {rec("name", "Home")}},
			from:    "Home", to: "Home",
			want:    []string{"Home"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newWithQuerier(&fakeQuerier{answers: tt.answers})
			got, err := s.ShortestPath(context.Background(), tt.from, tt.to)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ShortestPath() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ShortestPath() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ShortestPath() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_Unavailable(t *testing.T) {
	t.Parallel()

	s := newWithQuerier(&fakeQuerier{err: errors.New("connection refused")})
	if _, err := s.ListPositions(context.Background()); !errors.Is(err, knowledge.ErrUnavailable) {
		t.Errorf("ListPositions() error = %v, want ErrUnavailable", err)
	}
}

func TestStore_Seed(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{}
	s := newWithQuerier(q)

	if err := s.Seed(context.Background(), graphtest.Cell()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if len(q.writes) != 6 {
		t.Fatalf("writes = %d, want 6", len(q.writes))
	}
	if !strings.Contains(q.writes[0], "MERGE (p:Position") {
		t.Errorf("positions must be written first: %s", q.writes[0])
	}

	bad := graphtest.Cell()
	bad.Moves = append(bad.Moves, knowledge.MoveEdge{From: "Home", To: "Mars"})
	if err := s.Seed(context.Background(), bad); !errors.Is(err, knowledge.ErrInvalidGraph) {
		t.Errorf("Seed(invalid) error = %v", err)
	}
}

func TestNew_RequiresURI(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{}); !errors.Is(err, knowledge.ErrUnavailable) {
		t.Errorf("New() error = %v", err)
	}
}
