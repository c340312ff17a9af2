package knowledge

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// Graph is the declarative form of a cell's knowledge graph. It is the
// document format of graph files and the seed format for graph databases.
type Graph struct {
	Positions []robot.Position `json:"positions" yaml:"positions"`
	Tools     []ToolEntry      `json:"tools" yaml:"tools"`
	Stands    []Stand          `json:"stands" yaml:"stands"`
	Routines  []robot.Routine  `json:"routines" yaml:"routines"`
	Moves     []MoveEdge       `json:"moves" yaml:"moves"`
	Supports  []SupportEdge    `json:"supports" yaml:"supports"`
}

// ToolEntry is a tool and the stand it is stored on.
type ToolEntry struct {
	robot.Tool `yaml:",inline"`
	Stand      string `json:"stand,omitempty" yaml:"stand,omitempty"`
}

// Stand is a tool stand located at a position.
type Stand struct {
	Name     string `json:"name" yaml:"name"`
	Position string `json:"position" yaml:"position"`
}

// MoveEdge is an unordered pair of positions between which the robot may move.
type MoveEdge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// SupportEdge declares that a routine is usable at a position.
type SupportEdge struct {
	Routine               string `json:"routine" yaml:"routine"`
	Position              string `json:"position" yaml:"position"`
	robot.SupportMetadata `yaml:",inline"`
}

// Validate checks referential integrity. All problems are reported together.
func (g Graph) Validate() error {
	var errs []error
	addf := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	positions := make(map[string]bool, len(g.Positions))
	for _, p := range g.Positions {
		if p.Name == "" {
			addf("position with empty name")
			continue
		}
		if positions[p.Name] {
			addf("duplicate position %q", p.Name)
		}
		if !p.Role.IsValid() {
			addf("position %q has invalid role %q", p.Name, p.Role)
		}
		positions[p.Name] = true
	}

	stands := make(map[string]bool, len(g.Stands))
	for _, s := range g.Stands {
		if stands[s.Name] {
			addf("duplicate stand %q", s.Name)
		}
		stands[s.Name] = true
		if !positions[s.Position] {
			addf("stand %q located at unknown position %q", s.Name, s.Position)
		}
	}

	tools := make(map[string]bool, len(g.Tools))
	for _, t := range g.Tools {
		if tools[t.Name] {
			addf("duplicate tool %q", t.Name)
		}
		tools[t.Name] = true
		if t.Stand != "" && !stands[t.Stand] {
			addf("tool %q references unknown stand %q", t.Name, t.Stand)
		}
	}

	routines := make(map[string]bool, len(g.Routines))
	for _, r := range g.Routines {
		if routines[r.Name] {
			addf("duplicate routine %q", r.Name)
		}
		routines[r.Name] = true
		if r.NeedsTool() && !tools[r.RequiredTool] {
			addf("routine %q requires unknown tool %q", r.Name, r.RequiredTool)
		}
	}

	for _, m := range g.Moves {
		if m.From == m.To {
			addf("move edge %q forms a self loop", m.From)
		}
		if !positions[m.From] || !positions[m.To] {
			addf("move edge %s-%s references unknown position", m.From, m.To)
		}
	}

	for _, s := range g.Supports {
		if !routines[s.Routine] {
			addf("support edge references unknown routine %q", s.Routine)
		}
		if !positions[s.Position] {
			addf("support edge for %q references unknown position %q", s.Routine, s.Position)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(errs...))
}

// ToolLocations resolves each tool with a stand to the stand's position.
func (g Graph) ToolLocations() map[string]string {
	standPos := make(map[string]string, len(g.Stands))
	for _, s := range g.Stands {
		standPos[s.Name] = s.Position
	}
	locations := make(map[string]string, len(g.Tools))
	for _, t := range g.Tools {
		if pos, ok := standPos[t.Stand]; ok {
			locations[t.Name] = pos
		}
	}
	return locations
}
