package neo4j

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/robotflow/domain/knowledge"
)

// Seed writes a validated graph into the database. Nodes and edges are
// merged by name, so seeding the same graph twice is a no-op.
func (s *Store) Seed(ctx context.Context, g knowledge.Graph) error {
	if err := g.Validate(); err != nil {
		return err
	}

	for _, st := range seedStatements(g) {
		if err := s.q.Write(ctx, st.cypher, st.params); err != nil {
			return errors.Join(knowledge.ErrUnavailable, fmt.Errorf("seed %s: %w", st.name, err))
		}
	}
	return nil
}

type statement struct {
	name   string
	cypher string
	params map[string]any
}

func seedStatements(g knowledge.Graph) []statement {
	positions := make([]map[string]any, 0, len(g.Positions))
	for _, p := range g.Positions {
		positions = append(positions, map[string]any{"name": p.Name, "role": string(p.Role), "description": p.Description})
	}

	stands := make([]map[string]any, 0, len(g.Stands))
	for _, st := range g.Stands {
		stands = append(stands, map[string]any{"name": st.Name, "position": st.Position})
	}

	tools := make([]map[string]any, 0, len(g.Tools))
	for _, t := range g.Tools {
		tools = append(tools, map[string]any{"name": t.Name, "description": t.Description, "stand": t.Stand})
	}

	routines := make([]map[string]any, 0, len(g.Routines))
	for _, r := range g.Routines {
		routines = append(routines, map[string]any{"name": r.Name, "description": r.Description, "required_tool": r.Required()})
	}

	moves := make([]map[string]any, 0, len(g.Moves))
	for _, m := range g.Moves {
		moves = append(moves, map[string]any{"from": m.From, "to": m.To})
	}

	supports := make([]map[string]any, 0, len(g.Supports))
	for _, e := range g.Supports {
		row := map[string]any{
			"routine":      e.Routine,
			"position":     e.Position,
			"action_after": nil,
			"verify":       nil,
			"stabilize":    nil,
		}
		if e.Stabilize != nil {
			row["stabilize"] = *e.Stabilize
		}
		if e.ActionAfter != "" {
			row["action_after"] = e.ActionAfter
		}
		if e.Verify != "" {
			row["verify"] = e.Verify
		}
		supports = append(supports, row)
	}

	return []statement{
		{"positions", `
			UNWIND $rows AS row
			MERGE (p:Position {name: row.name})
			SET p.role = row.role, p.description = row.description`, map[string]any{"rows": positions}},
		{"stands", `
			UNWIND $rows AS row
			MATCH (p:Position {name: row.position})
			MERGE (s:ToolStand {name: row.name})
			MERGE (s)-[:LOCATED_AT]->(p)`, map[string]any{"rows": stands}},
		{"tools", `
			UNWIND $rows AS row
			MERGE (t:Tool {name: row.name})
			SET t.description = row.description
			WITH t, row WHERE row.stand <> ''
			MATCH (s:ToolStand {name: row.stand})
			MERGE (t)-[:TOOL_AVAILABLE_AT]->(s)`, map[string]any{"rows": tools}},
		{"routines", `
			UNWIND $rows AS row
			MERGE (r:Routine {name: row.name})
			SET r.description = row.description, r.required_tool = row.required_tool`, map[string]any{"rows": routines}},
		{"moves", `
			UNWIND $rows AS row
			MATCH (a:Position {name: row.from}), (b:Position {name: row.to})
			MERGE (a)-[:ONLY_ALLOWED_MOVE_TO]-(b)`, map[string]any{"rows": moves}},
		{"supports", `
			UNWIND $rows AS row
			MATCH (r:Routine {name: row.routine}), (p:Position {name: row.position})
			MERGE (r)-[s:SUPPORTED_AT]->(p)
			SET s.stabilize = row.stabilize, s.action_after = row.action_after, s.verify = row.verify`, map[string]any{"rows": supports}},
	}
}
