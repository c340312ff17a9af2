package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/domain/sequence"
	"github.com/felixgeelhaar/robotflow/domain/verification"
	"github.com/felixgeelhaar/robotflow/infrastructure/mcp"
)

// startOptions override the persisted robot state for a dry run.
type startOptions struct {
	position string
	tool     string
}

func registerStart(cmd *cobra.Command) *startOptions {
	o := &startOptions{}
	cmd.Flags().StringVar(&o.position, "from", "", "Start position (defaults to the stored robot state)")
	cmd.Flags().StringVar(&o.tool, "tool", "", "Attached tool at the start position")
	return o
}

// state returns nil when no override was given.
func (o *startOptions) state() *robot.State {
	if o.position == "" {
		return nil
	}
	return &robot.State{Position: o.position, Tool: o.tool}
}

// planOptions holds options for the plan command.
type planOptions struct {
	json bool
}

// newPlanCmd creates the plan command.
func (a *App) newPlanCmd() *cobra.Command {
	opts := &planOptions{}

	cmd := &cobra.Command{
		Use:   "plan <intent-json>",
		Short: "Build and verify a plan for an intent without executing it",
		Long: `Plan builds the step sequence for a structured intent from the knowledge
graph and verifies it. Nothing is reviewed or executed. Pass "-" to read
the intent from stdin.

Example:
  robotflow plan '{"goal":"execute_routine","routine":"scan","position":"StationB"}'
  robotflow plan --from StationA --tool Camera '{"goal":"move","position":"Home"}'`,
		Args: cobra.ExactArgs(1),
	}
	start := registerStart(cmd)
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the result as JSON")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		raw, err := a.readArg(args[0])
		if err != nil {
			return err
		}
		return a.plan(cmd.Context(), raw, start.state(), opts)
	}
	return cmd
}

func (a *App) readArg(arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(a.stdin)
	}
	return []byte(arg), nil
}

func (a *App) plan(ctx context.Context, raw []byte, start *robot.State, opts *planOptions) error {
	rt, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer closeRuntime(ctx, rt)

	input, err := json.Marshal(struct {
		Intent json.RawMessage `json:"intent"`
		Start  *robot.State    `json:"start,omitempty"`
	}{Intent: raw, Start: start})
	if err != nil {
		return fmt.Errorf("invalid intent: %w", err)
	}

	out, err := mcp.NewTools(rt.Knowledge, rt.State).PlanIntent(ctx, input)
	if err != nil {
		return err
	}
	var res mcp.PlanResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		return err
	}

	if opts.json {
		return writeJSON(a.stdout, res)
	}
	s := newStyles(a.stdout)
	if res.Error != "" {
		fmt.Fprintln(a.stdout, s.fail.Render(res.Error))
		return errors.New("no plan")
	}
	fmt.Fprintln(a.stdout, s.heading.Render("Plan"))
	for _, line := range res.Plan.Summary() {
		fmt.Fprintln(a.stdout, "  "+line)
	}
	if res.Verification != nil {
		fmt.Fprintln(a.stdout)
		a.printVerification(a.stdout, *res.Verification)
	}
	return nil
}

// verifyOptions holds options for the verify command.
type verifyOptions struct {
	json bool
}

// newVerifyCmd creates the verify command.
func (a *App) newVerifyCmd() *cobra.Command {
	opts := &verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify <plan-file>",
		Short: "Verify a plan file against the knowledge graph",
		Long: `Verify checks a plan against the knowledge graph. The file may be a
sequence document (the YAML written for every approved plan) or JSON
of the form {"steps": [...]}. The command fails when the plan is invalid.`,
		Args: cobra.ExactArgs(1),
	}
	start := registerStart(cmd)
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the result as JSON")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		plan, err := readPlanFile(args[0])
		if err != nil {
			return err
		}
		return a.verify(cmd.Context(), plan, start.state(), opts)
	}
	return cmd
}

// readPlanFile accepts a sequence document or a JSON step list.
func readPlanFile(path string) (robot.Plan, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		var doc struct {
			Steps robot.Plan `json:"steps"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid plan %s: %w", path, err)
		}
		return doc.Steps, nil
	}
	doc, err := sequence.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return doc.Plan(), nil
}

func (a *App) verify(ctx context.Context, plan robot.Plan, start *robot.State, opts *verifyOptions) error {
	rt, err := a.openReadOnly(ctx)
	if err != nil {
		return err
	}
	defer closeRuntime(ctx, rt)

	input, err := json.Marshal(struct {
		Steps robot.Plan   `json:"steps"`
		Start *robot.State `json:"start,omitempty"`
	}{Steps: plan, Start: start})
	if err != nil {
		return err
	}
	out, err := mcp.NewTools(rt.Knowledge, rt.State).VerifyPlan(ctx, input)
	if err != nil {
		return err
	}
	var res verification.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		return err
	}

	if opts.json {
		if err := writeJSON(a.stdout, res); err != nil {
			return err
		}
	} else {
		a.printVerification(a.stdout, res)
	}
	if !res.Valid {
		return fmt.Errorf("plan is invalid: %d violations", res.ViolationCount())
	}
	return nil
}

func (a *App) printVerification(w io.Writer, res verification.Result) {
	s := newStyles(w)
	if res.Valid {
		fmt.Fprintln(w, s.ok.Render("Verification passed"))
		return
	}
	fmt.Fprintln(w, s.fail.Render(fmt.Sprintf("Verification failed (%d violations)", res.ViolationCount())))
	for _, line := range res.Feedback {
		fmt.Fprintln(w, "  - "+line)
	}
}
