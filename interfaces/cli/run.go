package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/robotflow/domain/ledger"
	"github.com/felixgeelhaar/robotflow/domain/policy"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	api "github.com/felixgeelhaar/robotflow/interfaces/api"
	"github.com/felixgeelhaar/robotflow/infrastructure/review"
	"github.com/felixgeelhaar/robotflow/infrastructure/security/validation"
)

// runOptions holds options for the run command.
type runOptions struct {
	json        bool
	autoApprove bool
	ledger      bool
}

// newRunCmd creates the run command.
func (a *App) newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <command...>",
		Short: "Run one operator command through the workflow",
		Long: `Run routes one operator command through the workflow: questions are
answered, replays look up an earlier run, and action commands are planned,
reviewed, verified and executed.

Example:
  robotflow run "scan the part at StationB"
  robotflow run --auto-approve '{"goal":"move","position":"Home"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCommand(cmd.Context(), strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the run as JSON")
	cmd.Flags().BoolVar(&opts.autoApprove, "auto-approve", false, "Approve every plan without asking")
	cmd.Flags().BoolVar(&opts.ledger, "ledger", false, "Print the run ledger")

	return cmd
}

func (a *App) runCommand(ctx context.Context, input string, opts *runOptions) error {
	if err := validation.Command(input); err != nil {
		return err
	}
	var extra []api.Option
	if opts.autoApprove {
		extra = append(extra, api.WithReviewer(policy.NewAutoReviewer("cli")))
	}
	rt, err := a.openRuntime(ctx, extra...)
	if err != nil {
		return err
	}
	defer closeRuntime(ctx, rt)

	run, l, err := rt.Engine.RunWithLedger(ctx, input)
	if err != nil {
		return err
	}

	if opts.json {
		if err := writeJSON(a.stdout, run); err != nil {
			return err
		}
	} else {
		a.printRun(a.stdout, run)
	}
	if opts.ledger {
		a.printLedger(a.stdout, l)
	}
	if run.Fallback == workflow.ReasonSystemError {
		return fmt.Errorf("run %s failed: %s", run.CorrelationID, run.Error)
	}
	return nil
}

func (a *App) printRun(w io.Writer, run *workflow.Run) {
	s := newStyles(w)
	fmt.Fprintln(w, s.outcome(run))
	fmt.Fprintln(w, s.muted.Render("correlation id: "+run.CorrelationID))
}

func (a *App) printLedger(w io.Writer, l *ledger.Ledger) {
	if l == nil {
		return
	}
	s := newStyles(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, s.heading.Render("Ledger"))
	for _, e := range l.Entries() {
		line := fmt.Sprintf("  %s  %-17s", e.Timestamp.Format("15:04:05.000"), e.Type)
		if e.State != "" {
			line += " " + string(e.State)
		}
		if len(e.Details) > 0 {
			line += " " + s.muted.Render(string(e.Details))
		}
		fmt.Fprintln(w, line)
	}
}

// Chat commands that end the session.
var chatExit = map[string]bool{"exit": true, "quit": true, ":q": true}

// newChatCmd creates the interactive chat command.
func (a *App) newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive operator session",
		Long: `Chat reads operator commands line by line and runs each one through the
workflow. Plan reviews are asked on the same console. The graph file is
reloaded on change while the session is open when knowledge.watch is set.

Type "exit" or press Ctrl-D to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.chat(cmd.Context())
		},
	}
}

func (a *App) chat(ctx context.Context) error {
	rt, err := a.openRuntime(ctx)
	if err != nil {
		return err
	}
	defer closeRuntime(ctx, rt)

	console := rt.Console
	if console == nil {
		console = review.NewTerminal(a.stdin, a.stdout)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Watch(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return a.repl(gctx, rt, console)
	})
	return g.Wait()
}

func (a *App) repl(ctx context.Context, rt *api.Runtime, console *review.Terminal) error {
	s := newStyles(a.stdout)
	fmt.Fprintln(a.stdout, s.heading.Render(fmt.Sprintf("robotflow %s (%s)", Version, rt.Link.Mode())))
	fmt.Fprintln(a.stdout, s.muted.Render(`Type a command, or "exit" to leave.`))

	for {
		fmt.Fprint(a.stdout, s.label.Render("robotflow> "))
		line, err := console.ReadLine(ctx)
		switch {
		case errors.Is(err, policy.ErrReviewUnavailable):
			fmt.Fprintln(a.stdout)
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if chatExit[strings.ToLower(line)] {
			return nil
		}
		if err := validation.Command(line); err != nil {
			fmt.Fprintln(a.stdout, s.fail.Render(err.Error()))
			continue
		}

		run, err := rt.Engine.Run(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		a.printRun(a.stdout, run)
	}
}
