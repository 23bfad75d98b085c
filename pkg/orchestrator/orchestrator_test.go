package orchestrator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/orchestrator"
)

type entry struct {
	fields  []domain.FieldSnapshot
	batched bool
}

func (e entry) Fields() []domain.FieldSnapshot { return e.fields }
func (e entry) Batched() bool                  { return e.batched }

// fakeExecutor fails Open for datasets in failOpen and Apply for transforms in failStep.
type fakeExecutor struct {
	failOpen map[string]bool
	failStep map[string]bool
	panicOn  string
}

func (f fakeExecutor) Open(_ context.Context, node *domain.DatasetNode) (orchestrator.Entry, error) {
	if f.failOpen[node.DisplayName] {
		return nil, errors.New("cannot open " + node.DisplayName)
	}
	return entry{fields: []domain.FieldSnapshot{{Key: "hr", PythonType: "Tensor", Shape: "[3, 8, 8]"}}}, nil
}

func (f fakeExecutor) Apply(_ context.Context, _ *domain.DatasetNode, step domain.TransformStep, e orchestrator.Entry) (orchestrator.Entry, error) {
	if step.DisplayName == f.panicOn {
		panic("transform exploded")
	}
	if f.failStep[step.DisplayName] {
		return nil, errors.New(step.DisplayName + " failed")
	}
	fields := append([]domain.FieldSnapshot{}, e.Fields()...)
	fields = append(fields, domain.FieldSnapshot{Key: step.DisplayName, PythonType: "str"})
	return entry{fields: fields}, nil
}

func wrappedChain() *domain.DatasetNode {
	inner := &domain.DatasetNode{
		Address:     "train.params.dataset",
		DisplayName: "ImageDataset",
		Target:      "pkg.ImageDataset",
		Transforms: []domain.TransformStep{
			{Index: 0, DisplayName: "Normalize"},
			{Index: 1, DisplayName: "Crop"},
		},
	}
	return &domain.DatasetNode{
		Address:     "train",
		DisplayName: "PatchedDataset",
		Target:      "pkg.PatchedDataset",
		Wrapped:     inner,
		Transforms:  []domain.TransformStep{{Index: 0, DisplayName: "Flip"}},
	}
}

func run(t *testing.T, root *domain.DatasetNode, exec orchestrator.Executor) []domain.Event {
	t.Helper()
	var events []domain.Event
	m := orchestrator.NewMachine()
	orchestrator.Sequence(context.Background(), root, exec, func(ev domain.Event) {
		require.NoError(t, m.Apply(ev), "event %T", ev)
		events = append(events, ev)
	})
	require.True(t, m.Done())
	return events
}

func types(events []domain.Event) []domain.EventType {
	out := make([]domain.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type()
	}
	return out
}

func TestSequence_WrappedChain(t *testing.T) {
	events := run(t, wrappedChain(), fakeExecutor{})

	assert.Equal(t, []domain.EventType{
		domain.EventDatasetStart, domain.EventSnapshot, domain.EventSnapshot, domain.EventSnapshot, domain.EventDatasetEnd,
		domain.EventConnector,
		domain.EventDatasetStart, domain.EventSnapshot, domain.EventSnapshot, domain.EventDatasetEnd,
		domain.EventComplete,
	}, types(events))

	assert.Equal(t, domain.Connector{Label: "Wrapped by PatchedDataset"}, events[5])
	assert.Equal(t, "train.params.dataset", events[0].(domain.DatasetStart).Path)

	first := events[1].(domain.Snapshot)
	assert.Equal(t, "ImageDataset", first.StepLabel)
	assert.Equal(t, 0, first.StepIndex)
	crop := events[3].(domain.Snapshot)
	assert.Equal(t, "Crop", crop.StepLabel)
	assert.Equal(t, 2, crop.StepIndex)
}

func TestSequence_InnerFailureSkipsWrapper(t *testing.T) {
	events := run(t, wrappedChain(), fakeExecutor{failStep: map[string]bool{"Normalize": true}})

	assert.Equal(t, []domain.EventType{
		domain.EventDatasetStart, domain.EventSnapshot, domain.EventStepError, domain.EventDatasetEnd,
		domain.EventDatasetStart, domain.EventSkipped, domain.EventDatasetEnd,
		domain.EventComplete,
	}, types(events))

	assert.Equal(t, domain.StepError{StepLabel: "Normalize", StepIndex: 1, Message: "Normalize failed"}, events[2])
	assert.Equal(t, domain.Skipped{Reason: "Inner dataset pipeline failed"}, events[5])
}

func TestSequence_InitError(t *testing.T) {
	root := &domain.DatasetNode{Address: "ds", DisplayName: "Broken"}
	events := run(t, root, fakeExecutor{failOpen: map[string]bool{"Broken": true}})

	assert.Equal(t, []domain.EventType{
		domain.EventDatasetStart, domain.EventInitError, domain.EventDatasetEnd, domain.EventComplete,
	}, types(events))
}

func TestSequence_PanicBecomesRunError(t *testing.T) {
	events := run(t, wrappedChain(), fakeExecutor{panicOn: "Crop"})

	last := events[len(events)-1]
	assert.IsType(t, domain.Complete{}, last)
	runErr, ok := events[len(events)-2].(domain.RunError)
	require.True(t, ok)
	assert.Contains(t, runErr.Message, "transform exploded")
}

func TestSequence_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var events []domain.Event
	orchestrator.Sequence(ctx, wrappedChain(), fakeExecutor{}, func(ev domain.Event) {
		events = append(events, ev)
	})

	require.Len(t, events, 2)
	assert.Contains(t, events[0].(domain.RunError).Message, "probe cancelled")
	assert.IsType(t, domain.Complete{}, events[1])
}

func TestSequence_NilRoot(t *testing.T) {
	var events []domain.Event
	orchestrator.Sequence(context.Background(), nil, fakeExecutor{}, func(ev domain.Event) {
		events = append(events, ev)
	})
	assert.Equal(t, []domain.EventType{domain.EventError, domain.EventComplete}, types(events))
}

func TestMachine_Violations(t *testing.T) {
	tests := []struct {
		name   string
		events []domain.Event
	}{
		{"snapshot outside dataset", []domain.Event{domain.Snapshot{}}},
		{"non increasing step", []domain.Event{
			domain.DatasetStart{Path: "a"},
			domain.Snapshot{EntrySnapshot: domain.EntrySnapshot{StepIndex: 1}},
			domain.Snapshot{EntrySnapshot: domain.EntrySnapshot{StepIndex: 1}},
		}},
		{"snapshot after step error", []domain.Event{
			domain.DatasetStart{Path: "a"},
			domain.StepError{StepIndex: 1},
			domain.Snapshot{EntrySnapshot: domain.EntrySnapshot{StepIndex: 2}},
		}},
		{"mismatched end", []domain.Event{domain.DatasetStart{Path: "a"}, domain.DatasetEnd{Path: "b"}}},
		{"nested start", []domain.Event{domain.DatasetStart{Path: "a"}, domain.DatasetStart{Path: "b"}}},
		{"connector first", []domain.Event{domain.Connector{Label: "Wrapped by X"}}},
		{"event after complete", []domain.Event{domain.Complete{}, domain.DatasetStart{}}},
		{"event after run error", []domain.Event{domain.RunError{}, domain.Snapshot{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := orchestrator.NewMachine()
			var err error
			for _, ev := range tt.events {
				err = m.Apply(ev)
			}
			assert.ErrorIs(t, err, orchestrator.ErrProtocolViolation)
		})
	}
}

func TestMachine_RunErrorFromAnyPhase(t *testing.T) {
	m := orchestrator.NewMachine()
	require.NoError(t, m.Apply(domain.DatasetStart{Path: "a"}))
	require.NoError(t, m.Apply(domain.RunError{Message: "timed out after 1 seconds"}))
	assert.Equal(t, orchestrator.PhaseFailed, m.Phase())
	require.NoError(t, m.Apply(domain.Complete{}))
	assert.True(t, m.Done())
}

func TestRecorder_Report(t *testing.T) {
	rec := orchestrator.NewRecorder()
	orchestrator.Sequence(context.Background(), wrappedChain(), fakeExecutor{}, rec.Record)

	report := rec.Report()
	assert.True(t, report.Completed)
	assert.False(t, report.Failed())
	assert.Empty(t, report.Violations)
	assert.Equal(t, []string{"Wrapped by PatchedDataset"}, report.Connectors)
	require.Len(t, report.Datasets, 2)

	inner, ok := report.Dataset("train.params.dataset")
	require.True(t, ok)
	require.Len(t, inner.Snapshots, 3)

	diffs := inner.Diffs()
	require.Len(t, diffs, 3)
	assert.Zero(t, diffs[0].Summary.Added, "first snapshot has no predecessor")
	assert.Equal(t, domain.FieldUnchanged, diffs[0].Fields[0].Status)

	assert.Equal(t, "Normalize", diffs[1].StepLabel)
	require.Len(t, diffs[1].Fields, 2)
	assert.Equal(t, domain.FieldAdded, diffs[1].Fields[1].Status)
	assert.Equal(t, 1, diffs[1].Summary.Added)
}

func TestRecorder_FailedRun(t *testing.T) {
	rec := orchestrator.NewRecorder()
	orchestrator.Sequence(context.Background(), wrappedChain(), fakeExecutor{failStep: map[string]bool{"Crop": true}}, rec.Record)

	report := rec.Report()
	assert.True(t, report.Failed())
	inner, _ := report.Dataset("train.params.dataset")
	require.NotNil(t, inner.StepError)
	assert.Equal(t, "Crop", inner.StepError.StepLabel)

	outer, _ := report.Dataset("train")
	assert.Equal(t, domain.SkippedInnerFailed, outer.Skipped)
	assert.Empty(t, outer.Snapshots)
}

func TestRecorder_IgnoresEventsAfterComplete(t *testing.T) {
	rec := orchestrator.NewRecorder()
	rec.Record(domain.Complete{ExecutionTimeMs: 10})
	rec.Record(domain.DatasetStart{Path: "late"})

	report := rec.Report()
	assert.Empty(t, report.Datasets)
	assert.Len(t, report.Violations, 1)
	assert.True(t, rec.Done())
}

func TestPlanner_SequencesWithoutExecuting(t *testing.T) {
	root := wrappedChain()
	root.Wrapped.DataRoot = "/data/train"
	root.Wrapped.DataRootKey = "root"

	events := run(t, root, orchestrator.Planner{})
	assert.Equal(t, []domain.EventType{
		domain.EventDatasetStart,
		domain.EventSnapshot,
		domain.EventSnapshot,
		domain.EventSnapshot,
		domain.EventDatasetEnd,
		domain.EventConnector,
		domain.EventDatasetStart,
		domain.EventSnapshot,
		domain.EventSnapshot,
		domain.EventDatasetEnd,
		domain.EventComplete,
	}, types(events))

	first := events[1].(domain.Snapshot)
	require.Len(t, first.Fields, 1)
	assert.Equal(t, "root", first.Fields[0].Key)
	assert.Equal(t, "/data/train", first.Fields[0].Preview)
	assert.Empty(t, events[7].(domain.Snapshot).Fields, "the wrapper has no data root")

	rec := orchestrator.NewRecorder()
	for _, ev := range events {
		rec.Record(ev)
	}
	report := rec.Report()
	assert.False(t, report.Failed())
	inner, ok := report.Dataset("train.params.dataset")
	require.True(t, ok)
	for _, d := range inner.Diffs()[1:] {
		assert.Equal(t, 1, d.Summary.Unchanged, d.StepLabel)
	}
}

func TestPlan_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var events []domain.Event
	orchestrator.Plan(ctx, wrappedChain(), func(ev domain.Event) { events = append(events, ev) })
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventComplete, events[len(events)-1].Type())
	assert.Contains(t, types(events), domain.EventError)
}
