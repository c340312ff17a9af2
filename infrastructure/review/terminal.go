package review

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/felixgeelhaar/robotflow/domain/policy"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// ruleWidth is the width of the review banner rules.
const ruleWidth = 80

// Terminal asks the operator at the console. Input is read by a single
// background goroutine so a review can give up at its deadline without
// losing the next line typed.
type Terminal struct {
	in    io.Reader
	out   io.Writer
	width int

	once  sync.Once
	lines chan string

	title  lipgloss.Style
	option lipgloss.Style
	warn   lipgloss.Style
}

// NewTerminal creates a terminal reviewer over in and out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	r := lipgloss.NewRenderer(out)
	return &Terminal{
		in:     in,
		out:    out,
		width:  bannerWidth(out),
		title:  r.NewStyle().Bold(true),
		option: r.NewStyle().Foreground(lipgloss.Color("6")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

// NewStdioTerminal creates a terminal reviewer on the process console.
func NewStdioTerminal() *Terminal {
	return NewTerminal(os.Stdin, os.Stdout)
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) // #nosec G115 -- file descriptors fit in int
}

// bannerWidth narrows the rule to the terminal when it is smaller than 80.
func bannerWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !IsInteractive(f) {
		return ruleWidth
	}
	w, _, err := term.GetSize(int(f.Fd())) // #nosec G115 -- file descriptors fit in int
	if err != nil || w <= 0 || w > ruleWidth {
		return ruleWidth
	}
	return w
}

func (t *Terminal) startReader() {
	t.once.Do(func() {
		t.lines = make(chan string, 16)
		go func() {
			defer close(t.lines)
			scanner := bufio.NewScanner(t.in)
			for scanner.Scan() {
				t.lines <- scanner.Text()
			}
		}()
	})
}

// ReadLine returns the next operator line. The chat loop reads through the
// reviewer so the two never compete for the console.
func (t *Terminal) ReadLine(ctx context.Context) (string, error) {
	t.startReader()
	return t.readLine(ctx)
}

// readLine waits for the next input line or ctx.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-t.lines:
		if !ok {
			return "", fmt.Errorf("%w: console input closed", policy.ErrReviewUnavailable)
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Review implements policy.Reviewer.
func (t *Terminal) Review(ctx context.Context, req policy.ReviewRequest) (policy.ReviewResponse, error) {
	t.startReader()
	t.render(req)

	for {
		fmt.Fprint(t.out, PromptDecision)
		line, err := t.readLine(ctx)
		if err != nil {
			return t.abandon(req, err)
		}

		c, ok := parseChoice(line)
		if !ok {
			fmt.Fprintln(t.out, t.warn.Render(InvalidChoice))
			continue
		}
		if c.decision == workflow.DecisionRevision && c.comments == "" {
			fmt.Fprintln(t.out)
			fmt.Fprint(t.out, PromptChanges)
			comments, err := t.readLine(ctx)
			if err != nil {
				return t.abandon(req, err)
			}
			c.comments = strings.TrimSpace(comments)
		}

		logging.Info().
			Add(logging.CorrelationID(req.CorrelationID)).
			Add(logging.Decision(c.decision)).
			Add(logging.Reviewer("terminal")).
			Msg("operator decision received")
		return policy.ReviewResponse{Decision: c.decision, Comments: c.comments, Reviewer: "terminal"}, nil
	}
}

func (t *Terminal) abandon(req policy.ReviewRequest, err error) (policy.ReviewResponse, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		fmt.Fprintln(t.out)
		fmt.Fprintln(t.out, t.warn.Render(TimeoutNotice))
		logging.Warn().
			Add(logging.CorrelationID(req.CorrelationID)).
			Msg("human review timeout")
	}
	return policy.ReviewResponse{}, err
}

func (t *Terminal) render(req policy.ReviewRequest) {
	rule := strings.Repeat("=", t.width)
	var b strings.Builder
	b.WriteString("\n" + rule + "\n")
	b.WriteString(t.title.Render("PLAN REVIEW REQUIRED") + "\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Correlation ID: %s\n", req.CorrelationID)
	fmt.Fprintf(&b, "Your command: %s\n", req.Command)
	if req.Attempt > 1 {
		fmt.Fprintf(&b, "Attempt: %d\n", req.Attempt)
	}
	b.WriteString("\nGenerated Plan:\n\n")
	for _, line := range planLines(req) {
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + rule + "\n")
	b.WriteString("Options:\n")
	b.WriteString(t.option.Render("  [a] Approve - Execute this plan") + "\n")
	b.WriteString(t.option.Render("  [r] Revise - Request changes (provide comments)") + "\n")
	b.WriteString(t.option.Render("  [d] Decline - Cancel this task") + "\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Timeout: %d seconds\n", int(req.Timeout.Seconds()))
	b.WriteString(rule + "\n\n")
	fmt.Fprint(t.out, b.String())
}
