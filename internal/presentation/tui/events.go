package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/muesli/termenv"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

// EventPrinter writes a one-line-per-event progress log of a run.
type EventPrinter struct {
	mu      sync.Mutex
	out     *termenv.Output
	prev    *domain.EntrySnapshot
	depth   int
	verbose bool
}

// NewEventPrinter creates a printer for w. Colors follow w's capabilities.
func NewEventPrinter(w io.Writer, verbose bool) *EventPrinter {
	return &EventPrinter{out: termenv.NewOutput(w), verbose: verbose}
}

func (p *EventPrinter) style(s, color string) termenv.Style {
	return p.out.String(s).Foreground(p.out.Color(color))
}

// Print consumes one event. It may be passed directly as a run callback.
func (p *EventPrinter) Print(ev domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	indent := strings.Repeat("  ", p.depth)
	switch e := ev.(type) {
	case domain.DatasetStart:
		fmt.Fprintf(p.out, "%s%s %s %s\n", indent, p.style("▶", "12"), p.out.String(e.Name).Bold(), p.out.String(e.Path).Faint())
		p.depth++
		p.prev = nil
	case domain.Snapshot:
		snap := e.EntrySnapshot
		diffs := domain.DiffEntries(p.prev, &snap)
		s := domain.Summarize(diffs)
		fmt.Fprintf(p.out, "%s%d. %-24s %s %s %s\n", indent, snap.StepIndex, snap.StepLabel,
			p.style(fmt.Sprintf("+%d", s.Added), "10"),
			p.style(fmt.Sprintf("-%d", s.Removed), "9"),
			p.style(fmt.Sprintf("~%d", s.Modified), "11"))
		if p.verbose {
			for _, d := range diffs {
				if d.Changed() {
					fmt.Fprintf(p.out, "%s   %s %s: %s → %s\n", indent, p.marker(d.Status), d.Key, Summary(d.Before), Summary(d.After))
				}
			}
		}
		p.prev = &snap
	case domain.StepError:
		fmt.Fprintf(p.out, "%s%s step %d (%s): %s\n", indent, p.style("✗", "9"), e.StepIndex, e.StepLabel, e.Message)
	case domain.InitError:
		fmt.Fprintf(p.out, "%s%s init: %s\n", indent, p.style("✗", "9"), e.Message)
	case domain.Skipped:
		fmt.Fprintf(p.out, "%s%s %s\n", indent, p.style("↷", "11"), e.Reason)
	case domain.DatasetEnd:
		if p.depth > 0 {
			p.depth--
		}
	case domain.Connector:
		fmt.Fprintf(p.out, "%s%s\n", indent, p.out.String(e.Label).Italic())
	case domain.RunError:
		fmt.Fprintf(p.out, "%s %s\n", p.style("error:", "9"), e.Message)
		if p.verbose && e.Traceback != "" {
			fmt.Fprintln(p.out, p.out.String(e.Traceback).Faint())
		}
	case domain.Complete:
		fmt.Fprintf(p.out, "%s\n", p.out.String(fmt.Sprintf("done in %dms", e.ExecutionTimeMs)).Faint())
	}
}

func (p *EventPrinter) marker(s domain.FieldDiffStatus) termenv.Style {
	switch s {
	case domain.FieldAdded:
		return p.style("+", "10")
	case domain.FieldRemoved:
		return p.style("-", "9")
	default:
		return p.style("~", "11")
	}
}

