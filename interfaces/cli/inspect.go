package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/robotflow/domain/history"
	api "github.com/felixgeelhaar/robotflow/interfaces/api"
	infraconfig "github.com/felixgeelhaar/robotflow/infrastructure/config"
	"github.com/felixgeelhaar/robotflow/infrastructure/knowledge/neo4j"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/memory"
)

// stateOptions holds options for the state command.
type stateOptions struct {
	json bool
}

// newStateCmd creates the state command.
func (a *App) newStateCmd() *cobra.Command {
	opts := &stateOptions{}

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the stored robot state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.openReadOnly(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt)

			state, err := rt.State.Get(ctx)
			if err != nil {
				return fmt.Errorf("failed to read robot state: %w", err)
			}
			if opts.json {
				return writeJSON(a.stdout, state)
			}
			s := newStyles(a.stdout)
			s.field(a.stdout, "Position", state.Position)
			s.field(a.stdout, "Tool", state.Tool)
			s.field(a.stdout, "Updated", state.LastUpdated.Local().Format(time.RFC3339))
			s.field(a.stdout, "Execution", rt.Link.Mode())
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the state as JSON")
	return cmd
}

// historyOptions holds options for the history command.
type historyOptions struct {
	date            string
	limit           int
	status          []string
	input           string
	failedPositions bool
	json            bool
}

// filter converts the flags into a history filter.
func (o *historyOptions) filter() (history.ListFilter, error) {
	var f history.ListFilter
	if o.date != "" {
		day, err := time.ParseInLocation(time.DateOnly, o.date, time.Local)
		if err != nil {
			return f, fmt.Errorf("invalid --date %q: use YYYY-MM-DD", o.date)
		}
		f = history.OnDate(day)
	}
	for _, s := range o.status {
		status := history.RunStatus(strings.ToLower(s))
		if !status.IsValid() {
			return f, fmt.Errorf("invalid --status %q", s)
		}
		f.Status = append(f.Status, status)
	}
	f.InputPattern = o.input
	f.Limit = o.limit
	return f, nil
}

// newHistoryCmd creates the history command.
func (a *App) newHistoryCmd() *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List executed runs, or show the steps of one run",
		Long: `History lists runs newest first. With a run id it shows the run and the
status of every dispatched step.

Example:
  robotflow history --date 2026-10-19 --status failed
  robotflow history --failed-positions
  robotflow history 0f8b7a52-3c1d-4e5f-9a6b-7c8d9e0f1a2b`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.openReadOnly(ctx)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt)

			switch {
			case len(args) == 1:
				return a.showRun(ctx, rt.History, args[0], opts.json)
			case opts.failedPositions:
				positions, err := rt.History.FailedPositions(ctx)
				if err != nil {
					return err
				}
				if opts.json {
					return writeJSON(a.stdout, positions)
				}
				for _, p := range positions {
					fmt.Fprintln(a.stdout, p)
				}
				return nil
			default:
				return a.listRuns(ctx, rt.History, opts)
			}
		},
	}

	cmd.Flags().StringVar(&opts.date, "date", "", "Only runs started on this day (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum number of runs (0 for all)")
	cmd.Flags().StringSliceVar(&opts.status, "status", nil, "Filter by status (pending, running, completed, failed)")
	cmd.Flags().StringVar(&opts.input, "input", "", "Filter by operator input substring")
	cmd.Flags().BoolVar(&opts.failedPositions, "failed-positions", false, "List positions where a step failed")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print as JSON")

	return cmd
}

func (a *App) listRuns(ctx context.Context, store history.Store, opts *historyOptions) error {
	f, err := opts.filter()
	if err != nil {
		return err
	}
	runs, err := store.List(ctx, f)
	if err != nil {
		return err
	}
	if opts.json {
		return writeJSON(a.stdout, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.stdout, newStyles(a.stdout).muted.Render("No runs found."))
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tSTATUS\tSTEPS\tINPUT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Status, len(r.Sequence), r.OperatorInput)
	}
	return tw.Flush()
}

func (a *App) showRun(ctx context.Context, store history.Store, id string, asJSON bool) error {
	run, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	steps, err := store.Steps(ctx, id)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(a.stdout, struct {
			history.Run
			Steps []history.Step `json:"steps"`
		}{run, steps})
	}

	s := newStyles(a.stdout)
	s.field(a.stdout, "Run", run.ID)
	s.field(a.stdout, "Input", run.OperatorInput)
	s.field(a.stdout, "Status", run.Status)
	s.field(a.stdout, "Started", run.StartedAt.Local().Format(time.DateTime))
	if !run.FinishedAt.IsZero() {
		s.field(a.stdout, "Duration", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintln(a.stdout)

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tACTION\tPOSITION\tSTATE\tERROR")
	for i, st := range steps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, st.Action, st.Position, st.State, st.Error)
	}
	return tw.Flush()
}

// newGraphCmd creates the graph command group.
func (a *App) newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Check or seed the cell knowledge graph",
	}
	cmd.AddCommand(a.newGraphCheckCmd(), a.newGraphSeedCmd())
	return cmd
}

// graphFile resolves the graph file argument, falling back to the config.
func (a *App) graphFile(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Knowledge.GraphFile == "" {
		return "", errors.New("no graph file given and knowledge.graph_file is not set")
	}
	return cfg.Knowledge.GraphFile, nil
}

func (a *App) newGraphCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [graph-file]",
		Short: "Validate a graph file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.graphFile(args)
			if err != nil {
				return err
			}
			g, err := memory.LoadGraphFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			s := newStyles(a.stdout)
			fmt.Fprintln(a.stdout, s.ok.Render(path+" is valid"))
			s.field(a.stdout, "Positions", len(g.Positions))
			s.field(a.stdout, "Tools", len(g.Tools))
			s.field(a.stdout, "Stands", len(g.Stands))
			s.field(a.stdout, "Routines", len(g.Routines))
			s.field(a.stdout, "Moves", len(g.Moves))
			s.field(a.stdout, "Supports", len(g.Supports))
			return nil
		},
	}
}

func (a *App) newGraphSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [graph-file]",
		Short: "Write a graph file into the configured Neo4j database",
		Long: `Seed validates a graph file and merges it into Neo4j using the
knowledge.neo4j settings. Seeding the same graph twice changes nothing.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path, err := a.graphFile(args)
			if err != nil {
				return err
			}
			g, err := memory.LoadGraphFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			store, err := neo4j.New(ctx, api.Neo4jConfig(cfg.Knowledge.Neo4j))
			if err != nil {
				return err
			}
			defer store.Close(context.WithoutCancel(ctx))

			if err := store.Seed(ctx, g); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Seeded %d positions and %d moves from %s\n", len(g.Positions), len(g.Moves), path)
			return nil
		},
	}
}

// configOptions holds options for the config show command.
type configOptions struct {
	format string
}

// newConfigCmd creates the config command group.
func (a *App) newConfigCmd() *cobra.Command {
	opts := &configOptions{}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Show prints the configuration after defaults and environment overrides
are applied. Secrets are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			masked := maskSecrets(*cfg)
			data, err := infraconfig.Marshal(&masked, infraconfig.Format(opts.format))
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}
	show.Flags().StringVar(&opts.format, "format", string(infraconfig.FormatYAML), "Output format (yaml, json)")

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(show)
	return cmd
}

const masked = "********"

func maskSecrets(cfg api.AppConfig) api.AppConfig {
	mask := func(s *string) {
		if *s != "" {
			*s = masked
		}
	}
	mask(&cfg.Knowledge.Neo4j.Password)
	mask(&cfg.Notify.TelegramToken)
	mask(&cfg.Notify.DiscordWebhook)
	mask(&cfg.LLM.Token)
	if strings.Contains(cfg.State.DSN, "@") {
		mask(&cfg.State.DSN)
	}
	if strings.Contains(cfg.History.DSN, "@") {
		mask(&cfg.History.DSN)
	}
	return cfg
}
