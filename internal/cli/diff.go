package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/pipeprobe/internal/presentation/tui"
	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/orchestrator"
	"github.com/aretw0/pipeprobe/pkg/protocol"
)

// DiffOptions configures the diff command. Either Events or After must be set.
type DiffOptions struct {
	Before  string // snapshot JSON file, optional
	After   string // snapshot JSON file
	Events  string // NDJSON event log written by run --json
	JSON    bool
	Verbose bool
}

// Diff compares two snapshot files, or replays an event log into per-step diffs.
func Diff(opts DiffOptions, out io.Writer) error {
	if opts.Events != "" {
		report, err := ReplayEvents(opts.Events)
		if err != nil {
			return err
		}
		if opts.JSON {
			return writeJSON(out, report)
		}
		rendered, err := tui.NewRenderer(out)(tui.ReportMarkdown(report, opts.Verbose))
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, rendered)
		return err
	}

	if opts.After == "" {
		return fmt.Errorf("nothing to compare: pass --events or --after")
	}
	var before *domain.EntrySnapshot
	if opts.Before != "" {
		s, err := readSnapshot(opts.Before)
		if err != nil {
			return err
		}
		before = s
	}
	after, err := readSnapshot(opts.After)
	if err != nil {
		return err
	}

	step := orchestrator.StepDiff{StepLabel: after.StepLabel, StepIndex: after.StepIndex}
	step.Fields = domain.DiffEntries(before, after)
	step.Summary = domain.Summarize(step.Fields)
	if opts.JSON {
		return writeJSON(out, step)
	}

	report := &orchestrator.Report{
		Datasets: []*orchestrator.DatasetRun{{Name: "snapshots", Address: opts.After}},
	}
	if before != nil {
		report.Datasets[0].Snapshots = append(report.Datasets[0].Snapshots, *before)
	}
	report.Datasets[0].Snapshots = append(report.Datasets[0].Snapshots, *after)
	rendered, err := tui.NewRenderer(out)(tui.ReportMarkdown(report, opts.Verbose))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}

func readSnapshot(path string) (*domain.EntrySnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var s domain.EntrySnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return &s, nil
}

// ReplayEvents folds an event log into a report. Lines may carry the
// protocol marker; blank lines are skipped and malformed ones rejected.
func ReplayEvents(path string) (*orchestrator.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	rec := orchestrator.NewRecorder()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), protocol.MaxLineSize)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		line = bytes.TrimPrefix(line, []byte(domain.EventMarker))
		if len(line) == 0 {
			continue
		}
		ev, err := protocol.Unmarshal(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		rec.Record(ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	return rec.Report(), nil
}
