package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// KnowledgeStore is an in-memory knowledge graph built from a knowledge.Graph.
// The graph can be swapped atomically with Load, which the file watcher uses
// for hot reloads.
type KnowledgeStore struct {
	mu sync.RWMutex
	ix *graphIndex
}

type supportKey struct {
	routine  string
	position string
}

// graphIndex is an immutable lookup structure over one graph version.
type graphIndex struct {
	positions   map[string]robot.Position
	posOrder    []string
	tools       []robot.Tool
	routines    map[string]robot.Routine
	routineList []robot.Routine
	locations   map[string]string
	adjacency   map[string][]string
	supports    map[supportKey]robot.SupportMetadata
	supportedAt map[string][]string
}

// NewKnowledgeStore creates a store from a validated graph.
func NewKnowledgeStore(g knowledge.Graph) (*KnowledgeStore, error) {
	s := &KnowledgeStore{}
	if err := s.Load(g); err != nil {
		return nil, err
	}
	return s, nil
}

// Load validates g and replaces the current graph.
func (s *KnowledgeStore) Load(g knowledge.Graph) error {
	if err := g.Validate(); err != nil {
		return err
	}
	ix := buildIndex(g)

	s.mu.Lock()
	s.ix = ix
	s.mu.Unlock()
	return nil
}

func buildIndex(g knowledge.Graph) *graphIndex {
	ix := &graphIndex{
		positions:   make(map[string]robot.Position, len(g.Positions)),
		routines:    make(map[string]robot.Routine, len(g.Routines)),
		locations:   g.ToolLocations(),
		adjacency:   make(map[string][]string),
		supports:    make(map[supportKey]robot.SupportMetadata, len(g.Supports)),
		supportedAt: make(map[string][]string),
	}

	for _, p := range g.Positions {
		ix.positions[p.Name] = p
		ix.posOrder = append(ix.posOrder, p.Name)
	}
	sort.Strings(ix.posOrder)

	for _, t := range g.Tools {
		ix.tools = append(ix.tools, t.Tool)
	}
	sort.Slice(ix.tools, func(i, j int) bool { return ix.tools[i].Name < ix.tools[j].Name })

	for _, r := range g.Routines {
		if r.RequiredTool == "" {
			r.RequiredTool = robot.NoTool
		}
		ix.routines[r.Name] = r
		ix.routineList = append(ix.routineList, r)
	}
	sort.Slice(ix.routineList, func(i, j int) bool { return ix.routineList[i].Name < ix.routineList[j].Name })

	seen := make(map[[2]string]bool)
	for _, m := range g.Moves {
		for _, pair := range [][2]string{{m.From, m.To}, {m.To, m.From}} {
			if seen[pair] {
				continue
			}
			seen[pair] = true
			ix.adjacency[pair[0]] = append(ix.adjacency[pair[0]], pair[1])
		}
	}
	for k := range ix.adjacency {
		sort.Strings(ix.adjacency[k])
	}

	for _, e := range g.Supports {
		ix.supports[supportKey{e.Routine, e.Position}] = e.SupportMetadata
		ix.supportedAt[e.Routine] = append(ix.supportedAt[e.Routine], e.Position)
	}
	for k := range ix.supportedAt {
		sort.Strings(ix.supportedAt[k])
	}

	return ix
}

func (s *KnowledgeStore) index(ctx context.Context) (*graphIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ix, nil
}

// ListPositions returns all positions ordered by name.
func (s *KnowledgeStore) ListPositions(ctx context.Context) ([]robot.Position, error) {
	ix, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]robot.Position, 0, len(ix.posOrder))
	for _, name := range ix.posOrder {
		out = append(out, ix.positions[name])
	}
	return out, nil
}

// ListTools returns all tools ordered by name.
func (s *KnowledgeStore) ListTools(ctx context.Context) ([]robot.Tool, error) {
	ix, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	return append([]robot.Tool(nil), ix.tools...), nil
}

// ListRoutines returns all routines ordered by name.
func (s *KnowledgeStore) ListRoutines(ctx context.Context) ([]robot.Routine, error) {
	ix, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	return append([]robot.Routine(nil), ix.routineList...), nil
}

// GetRoutine returns a routine by name.
func (s *KnowledgeStore) GetRoutine(ctx context.Context, name string) (robot.Routine, error) {
	ix, err := s.index(ctx)
	if err != nil {
		return robot.Routine{}, err
	}
	r, ok := ix.routines[name]
	if !ok {
		return robot.Routine{}, fmt.Errorf("%w: %s", knowledge.ErrRoutineNotFound, name)
	}
	return r, nil
}

// ToolLocations maps tools to their stand positions.
func (s *KnowledgeStore) ToolLocations(ctx context.Context) (map[string]string, error) {
	ix, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(ix.locations))
	for k, v := range ix.locations {
		out[k] = v
	}
	return out, nil
}

// AllowedMoves returns the neighbours of position.
func (s *KnowledgeStore) AllowedMoves(ctx context.Context, position string) ([]string, error) {
	ix, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), ix.adjacency[position]...), nil
}

// IsMoveAllowed reports whether a move edge connects a and b.
func (s *KnowledgeStore) IsMoveAllowed(ctx context.Context, a, b string) (bool, error) {
	ix, err := s.index(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range ix.adjacency[a] {
		if n == b {
			return true, nil
		}
	}
	return false, nil
}

// SupportedPositions returns where routine is usable.
func (s *KnowledgeStore) SupportedPositions(ctx context.Context, routine string) ([]string, error) {
	ix, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), ix.supportedAt[routine]...), nil
}

// RoutineMetadata returns the support metadata of routine at position.
func (s *KnowledgeStore) RoutineMetadata(ctx context.Context, routine, position string) (robot.SupportMetadata, bool, error) {
	ix, err := s.index(ctx)
	if err != nil {
		return robot.SupportMetadata{}, false, err
	}
	m, ok := ix.supports[supportKey{routine, position}]
	return m, ok, nil
}

// ShortestPath runs a breadth-first search over move edges. Neighbours are
// expanded in name order so equal-length paths resolve deterministically.
func (s *KnowledgeStore) ShortestPath(ctx context.Context, a, b string) ([]string, error) {
	ix, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := ix.positions[a]; !ok {
		return nil, fmt.Errorf("%w: %s", knowledge.ErrPositionNotFound, a)
	}
	if _, ok := ix.positions[b]; !ok {
		return nil, fmt.Errorf("%w: %s", knowledge.ErrPositionNotFound, b)
	}
	if a == b {
		return []string{a}, nil
	}

	cameFrom := map[string]string{a: a}
	queue := []string{a}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range ix.adjacency[current] {
			if _, seen := cameFrom[next]; seen {
				continue
			}
			cameFrom[next] = current
			if next == b {
				return reconstruct(cameFrom, a, b), nil
			}
			queue = append(queue, next)
		}
	}

	return nil, fmt.Errorf("%w: %s to %s", knowledge.ErrNoPath, a, b)
}

func reconstruct(cameFrom map[string]string, start, goal string) []string {
	path := []string{goal}
	for n := goal; n != start; {
		n = cameFrom[n]
		path = append(path, n)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

var _ knowledge.Store = (*KnowledgeStore)(nil)
