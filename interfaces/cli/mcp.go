package cli

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// mcpOptions holds options for the mcp command.
type mcpOptions struct {
	http string
}

// newMCPCmd creates the mcp command.
func (a *App) newMCPCmd() *cobra.Command {
	opts := &mcpOptions{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the planning tools over the Model Context Protocol",
		Long: `MCP serves plan_intent, verify_plan, robot_state and list_positions to
an MCP client. The tools plan and verify but never move the robot.
The server speaks over stdio unless --http is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.openReadOnly(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt)

			srv := rt.MCPServer()
			if opts.http != "" {
				logging.Info().
					Add(logging.Component("mcp")).
					Add(logging.Str("addr", opts.http)).
					Msg("serving MCP over HTTP")
				return srv.ServeHTTP(ctx, opts.http)
			}
			return srv.ServeStdio(ctx)
		},
	}

	cmd.Flags().StringVar(&opts.http, "http", "", "Serve over HTTP on this address instead of stdio")
	return cmd
}
