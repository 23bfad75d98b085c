package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/pipeprobe"
	"github.com/aretw0/pipeprobe/internal/presentation/tui"
	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/orchestrator"
	"github.com/aretw0/pipeprobe/pkg/protocol"
)

// ErrProbeFailed is returned when a run finished but reported errors.
var ErrProbeFailed = errors.New("probe reported failures")

// DefaultSessionID is used when the command line names no session.
const DefaultSessionID = "cli"

// RunOptions contains all the configuration for the Run command.
type RunOptions struct {
	GlobalOptions
	ConfigPath string
	Dataset    string
	Overrides  []string // OLD=NEW data-root pairs
	SessionID  string
	JSON       bool // NDJSON events on the output
	Report     bool // Markdown step tables after the live log
	Verbose    bool
	Quiet      bool
	Watch      bool
	DryRun     bool // sequence the chain without starting an interpreter
}

// Run probes one dataset, optionally re-running whenever the configuration changes.
func Run(ctx context.Context, opts RunOptions, out io.Writer, extra ...pipeprobe.Option) error {
	values, err := ParseOverrides(opts.Overrides)
	if err != nil {
		return err
	}
	if opts.SessionID == "" {
		opts.SessionID = DefaultSessionID
	}

	probe, logger, cleanup, err := createProbe(ctx, opts.GlobalOptions, extra...)
	if err != nil {
		return err
	}
	defer cleanup()

	if !opts.JSON && !opts.Quiet {
		tui.PrintBanner(out, pipeprobe.Version)
	}

	iteration := func(ctx context.Context) error {
		return runOnce(ctx, probe, logger, opts, values, out)
	}
	if opts.Watch {
		if opts.JSON {
			return fmt.Errorf("--watch and --json cannot be used together")
		}
		return watchLoop(ctx, opts.ConfigPath, logger, out, iteration)
	}
	return handleExecutionError(iteration(ctx))
}

func runOnce(ctx context.Context, probe *pipeprobe.Probe, logger *slog.Logger, opts RunOptions, values map[string]string, out io.Writer) error {
	doc, err := probe.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	req, err := probe.BuildRequest(doc, opts.Dataset, values)
	if err != nil {
		return err
	}

	rec := orchestrator.NewRecorder(orchestrator.WithRecorderLogger(logger))
	onEvent := rec.Record
	if opts.JSON {
		onEvent = func(ev domain.Event) {
			rec.Record(ev)
			if err := writeEventLine(out, ev); err != nil {
				logger.Error("Failed to write event", "type", ev.Type(), "err", err)
			}
		}
	} else {
		printer := tui.NewEventPrinter(out, opts.Verbose)
		onEvent = func(ev domain.Event) {
			rec.Record(ev)
			printer.Print(ev)
		}
	}

	if opts.DryRun {
		if err := probe.Plan(ctx, doc, opts.Dataset, values, onEvent); err != nil {
			return err
		}
	} else if _, err := probe.Run(ctx, opts.SessionID, req, onEvent); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	report := rec.Report()
	if opts.Report && !opts.JSON {
		rendered, err := tui.NewRenderer(out)(tui.ReportMarkdown(report, opts.Verbose))
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
	}
	if report.Failed() {
		return ErrProbeFailed
	}
	return nil
}

func writeEventLine(w io.Writer, ev domain.Event) error {
	data, err := protocol.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
