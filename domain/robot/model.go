// Package robot provides the core domain model for robot cell planning:
// positions, tools, routines, plans and the persisted robot state.
package robot

// Role classifies what a position is used for in the cell.
type Role string

const (
	RoleHome         Role = "home"          // Parking position
	RoleSafeApproach Role = "safe_approach" // Clearance waypoint
	RoleToolMount    Role = "tool_mount"    // Tool stand location
	RoleWork         Role = "work"          // Position where routines run
)

// IsValid returns true if the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleHome, RoleSafeApproach, RoleToolMount, RoleWork:
		return true
	default:
		return false
	}
}

// Position is a named location the robot can occupy.
type Position struct {
	Name        string `json:"name" yaml:"name"`
	Role        Role   `json:"role" yaml:"role"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Tool is an end effector that can be attached to the robot.
type Tool struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Routine is a named program the robot executes at a position.
type Routine struct {
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	RequiredTool string `json:"required_tool,omitempty" yaml:"required_tool,omitempty"`
}

// NeedsTool reports whether the routine requires a specific tool.
func (r Routine) NeedsTool() bool {
	return r.RequiredTool != "" && r.RequiredTool != NoTool
}

// Required returns the required tool, normalizing empty to NoTool.
func (r Routine) Required() string {
	if r.RequiredTool == "" {
		return NoTool
	}
	return r.RequiredTool
}

// SupportMetadata carries execution hints attached to a routine at a position.
// Zero values mean the hint is absent.
type SupportMetadata struct {
	Stabilize   *float64 `json:"stabilize,omitempty" yaml:"stabilize,omitempty"`
	ActionAfter string   `json:"action_after,omitempty" yaml:"action_after,omitempty"`
	Verify      string   `json:"verify,omitempty" yaml:"verify,omitempty"`
}

// IsEmpty returns true if no hint is set.
func (m SupportMetadata) IsEmpty() bool {
	return m.Stabilize == nil && m.ActionAfter == "" && m.Verify == ""
}

// Seconds returns a pointer usable as a stabilize value.
func Seconds(v float64) *float64 {
	return &v
}
