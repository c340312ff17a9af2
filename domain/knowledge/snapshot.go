package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// Snapshot is a point-in-time copy of the graph used to build LLM context
// and operator answers.
type Snapshot struct {
	Positions     []robot.Position    `json:"positions"`
	Tools         []robot.Tool        `json:"tools"`
	Routines      []robot.Routine     `json:"routines"`
	ToolLocations map[string]string   `json:"tool_locations"`
	AllowedMoves  map[string][]string `json:"allowed_moves"`
}

// LoadSnapshot queries the store concurrently and assembles a Snapshot.
func LoadSnapshot(ctx context.Context, store Store) (Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		positions, err := store.ListPositions(gctx)
		snap.Positions = positions
		return err
	})
	g.Go(func() error {
		tools, err := store.ListTools(gctx)
		snap.Tools = tools
		return err
	})
	g.Go(func() error {
		routines, err := store.ListRoutines(gctx)
		snap.Routines = routines
		return err
	})
	g.Go(func() error {
		locations, err := store.ToolLocations(gctx)
		snap.ToolLocations = locations
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("load knowledge snapshot: %w", err)
	}

	var mu sync.Mutex
	snap.AllowedMoves = make(map[string][]string, len(snap.Positions))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, p := range snap.Positions {
		name := p.Name
		g.Go(func() error {
			moves, err := store.AllowedMoves(gctx, name)
			if err != nil {
				return err
			}
			sort.Strings(moves)
			mu.Lock()
			snap.AllowedMoves[name] = moves
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("load allowed moves: %w", err)
	}

	return snap, nil
}

// PositionNames returns the position names in snapshot order.
func (s Snapshot) PositionNames() []string {
	names := make([]string, len(s.Positions))
	for i, p := range s.Positions {
		names[i] = p.Name
	}
	return names
}

// Describe renders the snapshot as the plain-text block used in prompts.
func (s Snapshot) Describe() string {
	var b strings.Builder

	b.WriteString("AVAILABLE POSITIONS:\n")
	for _, p := range s.Positions {
		fmt.Fprintf(&b, "  - %s (role: %s)\n", p.Name, p.Role)
		if p.Description != "" {
			fmt.Fprintf(&b, "    Description: %s\n", p.Description)
		}
		if moves := s.AllowedMoves[p.Name]; len(moves) > 0 {
			fmt.Fprintf(&b, "    Can move to: %s\n", strings.Join(moves, ", "))
		}
	}

	b.WriteString("\nAVAILABLE TOOLS:\n")
	for _, t := range s.Tools {
		fmt.Fprintf(&b, "  - %s: %s", t.Name, t.Description)
		if stand, ok := s.ToolLocations[t.Name]; ok {
			fmt.Fprintf(&b, " (stand at %s)", stand)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nAVAILABLE ROUTINES:\n")
	for _, r := range s.Routines {
		req := "no tool required"
		if r.NeedsTool() {
			req = r.RequiredTool
		}
		fmt.Fprintf(&b, "  - %s (%s)\n", r.Name, req)
		if r.Description != "" {
			fmt.Fprintf(&b, "    Description: %s\n", r.Description)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
