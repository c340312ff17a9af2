// Package graphtest provides a small reference cell used across tests.
//
//	Home - Junction - CamStand - StationB
//	          |                     |
//	       GripStand - StationA ----+
//
// Island has no move edges.
package graphtest

import (
	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// Cell returns a fresh copy of the reference graph.
func Cell() knowledge.Graph {
	return knowledge.Graph{
		Positions: []robot.Position{
			{Name: "Home", Role: robot.RoleHome, Description: "Parking pose"},
			{Name: "Junction", Role: robot.RoleSafeApproach, Description: "Central clearance point"},
			{Name: "CamStand", Role: robot.RoleToolMount, Description: "Camera stand"},
			{Name: "GripStand", Role: robot.RoleToolMount, Description: "Gripper stand"},
			{Name: "StationA", Role: robot.RoleWork, Description: "Assembly fixture"},
			{Name: "StationB", Role: robot.RoleWork, Description: "Inspection fixture"},
			{Name: "Island", Role: robot.RoleWork, Description: "Unreachable bench"},
		},
		Tools: []knowledge.ToolEntry{
			{Tool: robot.Tool{Name: "Camera", Description: "Vision sensor"}, Stand: "CamRack"},
			{Tool: robot.Tool{Name: "Gripper", Description: "Parallel gripper"}, Stand: "GripRack"},
		},
		Stands: []knowledge.Stand{
			{Name: "CamRack", Position: "CamStand"},
			{Name: "GripRack", Position: "GripStand"},
		},
		Routines: []robot.Routine{
			{Name: "scan", Description: "Capture a surface scan", RequiredTool: "Camera"},
			{Name: "pick", Description: "Pick a part", RequiredTool: "Gripper"},
			{Name: "wipe", Description: "Wipe the fixture", RequiredTool: robot.NoTool},
			{Name: "check_part", Description: "Post-pick check"},
			{Name: robot.TargetToolAttach, Description: "Attach tool from stand"},
			{Name: robot.TargetToolRelease, Description: "Return tool to stand"},
		},
		Moves: []knowledge.MoveEdge{
			{From: "Home", To: "Junction"},
			{From: "Junction", To: "CamStand"},
			{From: "CamStand", To: "StationB"},
			{From: "Junction", To: "GripStand"},
			{From: "GripStand", To: "StationA"},
			{From: "StationA", To: "StationB"},
		},
		Supports: []knowledge.SupportEdge{
			{Routine: "scan", Position: "StationB"},
			{Routine: "scan", Position: "StationA", SupportMetadata: robot.SupportMetadata{Stabilize: robot.Seconds(1.5)}},
			{Routine: "pick", Position: "StationA", SupportMetadata: robot.SupportMetadata{
				Stabilize: robot.Seconds(0.5), ActionAfter: "check_part", Verify: "check_part",
			}},
			{Routine: "wipe", Position: "StationA"},
			{Routine: "wipe", Position: "StationB"},
			{Routine: robot.TargetToolAttach, Position: "CamStand"},
			{Routine: robot.TargetToolRelease, Position: "CamStand"},
			{Routine: robot.TargetToolAttach, Position: "GripStand", SupportMetadata: robot.SupportMetadata{Stabilize: robot.Seconds(2)}},
			{Routine: robot.TargetToolRelease, Position: "GripStand", SupportMetadata: robot.SupportMetadata{Verify: "check_part"}},
		},
	}
}

// StartState is the robot parked at Home with no tool.
func StartState() robot.State {
	return robot.State{Position: "Home", Tool: robot.NoTool}
}
