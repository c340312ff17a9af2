package mcp

import (
	"context"
	"encoding/json"
	"time"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	mcpserver "github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// ServerConfig configures the robot MCP server.
type ServerConfig struct {
	Name         string
	Version      string
	Instructions string
	Tools        *Tools
}

// Server exposes the robot tools over MCP.
type Server struct {
	srv   *mcpgo.Server
	tools *Tools
}

type handler func(ctx context.Context, input json.RawMessage) (string, error)

// NewServer creates the server and registers the four robot tools.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Name == "" {
		cfg.Name = "robotflow"
	}
	info := mcpgo.ServerInfo{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Description: "Plan and verify robot cell motion against the knowledge graph",
		Capabilities: mcpgo.Capabilities{
			Tools: true,
		},
	}

	var opts []mcpgo.Option
	if cfg.Instructions != "" {
		opts = append(opts, mcpgo.WithInstructions(cfg.Instructions))
	}

	s := &Server{srv: mcpgo.NewServer(info, opts...), tools: cfg.Tools}
	s.register(ToolPlanIntent,
		"Build and verify a robot plan for an intent such as {\"goal\":\"move\",\"position\":\"StationB\"}. The robot does not move.",
		cfg.Tools.PlanIntent)
	s.register(ToolVerifyPlan,
		"Verify a list of plan steps ({\"steps\":[...]}) against the knowledge graph.",
		cfg.Tools.VerifyPlan)
	s.register(ToolRobotState,
		"Return the robot's current position and attached tool.",
		cfg.Tools.RobotState)
	s.register(ToolListPositions,
		"List every position with its role and allowed moves.",
		cfg.Tools.ListPositions)
	return s
}

// register adds a tool whose calls are logged.
func (s *Server) register(name, description string, h handler) {
	logged := func(ctx context.Context, input json.RawMessage) (string, error) {
		start := time.Now()
		out, err := h(ctx, input)
		ev := logging.Debug()
		if err != nil {
			ev = logging.Warn().Add(logging.ErrorField(err))
		}
		ev.Add(logging.Component("mcp")).
			Add(logging.Operation(name)).
			Add(logging.Duration(time.Since(start))).
			Msg("tool call")
		return out, err
	}
	s.srv.Tool(name).
		Description(description).
		Handler(logged)
}

// Server returns the underlying mcp-go server.
func (s *Server) Server() *mcpgo.Server {
	return s.srv
}

// Use adds middleware to the server.
func (s *Server) Use(middlewares ...mcpserver.Middleware) {
	s.srv.Use(middlewares...)
}

// ServeStdio runs the server over stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context, opts ...mcpgo.ServeOption) error {
	return mcpgo.ServeStdio(ctx, s.srv, opts...)
}

// ServeHTTP runs the server over HTTP with SSE.
func (s *Server) ServeHTTP(ctx context.Context, addr string, opts ...mcpgo.HTTPOption) error {
	return mcpgo.ServeHTTP(ctx, s.srv, addr, opts...)
}
