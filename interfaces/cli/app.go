// Package cli provides the robotflow command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/robotflow"
	"github.com/felixgeelhaar/robotflow/domain/config"
	"github.com/felixgeelhaar/robotflow/domain/policy"
	api "github.com/felixgeelhaar/robotflow/interfaces/api"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// Version information set at build time.
var (
	Version   = robotflow.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string

	// build opens the runtime. Tests replace it.
	build func(ctx context.Context, cfg config.AppConfig, opts ...api.Option) (*api.Runtime, error)
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		build:  api.Build,
	}

	app.root = &cobra.Command{
		Use:   "robotflow",
		Short: "Plan, review, verify and execute robot cell commands",
		Long: `robotflow turns operator commands into robot motion plans. Every plan is
built from the cell knowledge graph, approved by a human, verified against
the graph and only then executed, simulated or on the robot.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			app.initLogging()
		},
	}

	app.root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Path to configuration file (defaults apply when empty)")
	app.root.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "Log level (overrides config)")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newRunCmd(),
		app.newChatCmd(),
		app.newPlanCmd(),
		app.newVerifyCmd(),
		app.newStateCmd(),
		app.newHistoryCmd(),
		app.newMCPCmd(),
		app.newGraphCmd(),
		app.newConfigCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// WithInput sets the operator input stream.
func (a *App) WithInput(stdin io.Reader) *App {
	a.stdin = stdin
	a.root.SetIn(stdin)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// initLogging keeps stdout for the operator; logs go to stderr.
func (a *App) initLogging() {
	level := a.logLevel
	if level == "" {
		level = "warn"
	}
	logging.Init(logging.Config{Level: level, Format: "console", Output: a.stderr})
}

func (a *App) loadConfig() (*config.AppConfig, error) {
	cfg, err := api.LoadConfig(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	lc := logging.Config{Format: cfg.Logging.Format}
	if a.logLevel == "" {
		lc.Level = cfg.Logging.Level
	}
	logging.Init(lc)
	return cfg, nil
}

// openRuntime loads the configuration and builds the runtime.
func (a *App) openRuntime(ctx context.Context, opts ...api.Option) (*api.Runtime, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	opts = append([]api.Option{api.WithVersion(Version), api.WithTerminal(a.stdin, a.stdout)}, opts...)
	rt, err := a.build(ctx, *cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return rt, nil
}

// openReadOnly builds a runtime for commands that never reach review.
func (a *App) openReadOnly(ctx context.Context) (*api.Runtime, error) {
	return a.openRuntime(ctx, api.WithReviewer(policy.NewDenyReviewer("read-only command")))
}

func closeRuntime(ctx context.Context, rt *api.Runtime) {
	if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
		logging.Warn().
			Add(logging.Component("cli")).
			Add(logging.ErrorField(err)).
			Msg("shutdown incomplete")
	}
}

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "robotflow version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}
