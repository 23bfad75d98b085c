package orchestrator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

// DatasetRun is everything one dataset reported during a run.
type DatasetRun struct {
	Address   string                 `json:"address"`
	Name      string                 `json:"name"`
	Target    string                 `json:"target"`
	Snapshots []domain.EntrySnapshot `json:"snapshots"`
	StepError *domain.StepError      `json:"stepError,omitempty"`
	InitError *domain.InitError      `json:"initError,omitempty"`
	Skipped   string                 `json:"skipped,omitempty"`
}

// Failed reports whether the dataset did not run to its last transform.
func (d *DatasetRun) Failed() bool {
	return d.StepError != nil || d.InitError != nil || d.Skipped != ""
}

// StepDiff is the field diff between one snapshot and its predecessor.
type StepDiff struct {
	StepLabel string             `json:"stepLabel"`
	StepIndex int                `json:"stepIndex"`
	Fields    []domain.FieldDiff `json:"fields"`
	Summary   domain.DiffSummary `json:"summary"`
}

// Diffs pairs each snapshot with the one before it. The first snapshot has no
// predecessor, so all of its fields are reported unchanged.
func (d *DatasetRun) Diffs() []StepDiff {
	out := make([]StepDiff, 0, len(d.Snapshots))
	var prev *domain.EntrySnapshot
	for i := range d.Snapshots {
		cur := &d.Snapshots[i]
		fields := domain.DiffEntries(prev, cur)
		out = append(out, StepDiff{
			StepLabel: cur.StepLabel,
			StepIndex: cur.StepIndex,
			Fields:    fields,
			Summary:   domain.Summarize(fields),
		})
		prev = cur
	}
	return out
}

// Report is the folded result of one run.
type Report struct {
	Datasets      []*DatasetRun     `json:"datasets"`
	Connectors    []string          `json:"connectors,omitempty"`
	Errors        []domain.RunError `json:"errors,omitempty"`
	Violations    []string          `json:"violations,omitempty"`
	ExecutionTime time.Duration     `json:"executionTime"`
	Completed     bool              `json:"completed"`
}

// Failed reports whether the run or any dataset failed.
func (r *Report) Failed() bool {
	if len(r.Errors) > 0 {
		return true
	}
	for _, d := range r.Datasets {
		if d.Failed() {
			return true
		}
	}
	return false
}

// Dataset returns the run of the dataset at address.
func (r *Report) Dataset(address string) (*DatasetRun, bool) {
	for _, d := range r.Datasets {
		if d.Address == address {
			return d, true
		}
	}
	return nil, false
}

// Recorder folds events into a Report. Record may be passed directly as the
// event callback of a run; it is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	machine *Machine
	report  Report
	current *DatasetRun
	logger  *slog.Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger logs protocol violations.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// NewRecorder creates an empty recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{machine: NewMachine()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record consumes one event.
func (r *Recorder) Record(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.machine.Apply(ev); err != nil {
		r.report.Violations = append(r.report.Violations, err.Error())
		if r.logger != nil {
			r.logger.Warn("out of order probe event", "err", err)
		}
		if r.report.Completed {
			return
		}
	}

	switch e := ev.(type) {
	case domain.DatasetStart:
		r.current = &DatasetRun{Address: e.Path, Name: e.Name, Target: e.Target}
		r.report.Datasets = append(r.report.Datasets, r.current)
	case domain.Snapshot:
		if r.current != nil {
			r.current.Snapshots = append(r.current.Snapshots, e.EntrySnapshot)
		}
	case domain.StepError:
		if r.current != nil {
			r.current.StepError = &e
		}
	case domain.InitError:
		if r.current != nil {
			r.current.InitError = &e
		}
	case domain.Skipped:
		if r.current != nil {
			r.current.Skipped = e.Reason
		}
	case domain.DatasetEnd:
		r.current = nil
	case domain.Connector:
		r.report.Connectors = append(r.report.Connectors, e.Label)
	case domain.RunError:
		r.report.Errors = append(r.report.Errors, e)
	case domain.Complete:
		r.report.Completed = true
		r.report.ExecutionTime = time.Duration(e.ExecutionTimeMs) * time.Millisecond
	}
}

// Done reports whether the recorder has seen Complete.
func (r *Recorder) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine.Done()
}

// Report returns a copy of the report accumulated so far.
func (r *Recorder) Report() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.report
	out.Datasets = make([]*DatasetRun, len(r.report.Datasets))
	for i, d := range r.report.Datasets {
		cp := *d
		cp.Snapshots = append([]domain.EntrySnapshot(nil), d.Snapshots...)
		out.Datasets[i] = &cp
	}
	out.Connectors = append([]string(nil), r.report.Connectors...)
	out.Errors = append([]domain.RunError(nil), r.report.Errors...)
	out.Violations = append([]string(nil), r.report.Violations...)
	return &out
}
