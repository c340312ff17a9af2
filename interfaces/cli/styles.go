package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/robotflow/domain/workflow"
)

// styles renders operator-facing output. Colors are dropped automatically
// when the writer is not a terminal.
type styles struct {
	heading lipgloss.Style
	ok      lipgloss.Style
	fail    lipgloss.Style
	muted   lipgloss.Style
	label   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		heading: r.NewStyle().Bold(true),
		ok:      r.NewStyle().Foreground(lipgloss.Color("2")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("1")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		label:   r.NewStyle().Foreground(lipgloss.Color("6")),
	}
}

// outcome styles a run response by how the run ended.
func (s styles) outcome(run *workflow.Run) string {
	if run.Fallback != workflow.ReasonNone || run.Error != "" {
		return s.fail.Render(run.Response)
	}
	return s.ok.Render(run.Response)
}

func (s styles) field(w io.Writer, name string, value any) {
	fmt.Fprintf(w, "%s %v\n", s.label.Render(name+":"), value)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
