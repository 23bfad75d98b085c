package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

// Entry is one dataset item as seen by an Executor.
type Entry interface {
	// Fields summarizes the entry's fields.
	Fields() []domain.FieldSnapshot
	// Batched reports whether the entry holds a batch rather than a single item.
	Batched() bool
}

// Executor instantiates datasets and applies transforms in-process.
type Executor interface {
	// Open instantiates node without its transforms and returns its first entry.
	// The wrapped dataset, if any, has already been probed successfully.
	Open(ctx context.Context, node *domain.DatasetNode) (Entry, error)

	// Apply runs one transform on entry.
	Apply(ctx context.Context, node *domain.DatasetNode, step domain.TransformStep, entry Entry) (Entry, error)
}

// Sequence probes root's wrapped chain with exec and reports every step to emit.
// It always ends with exactly one Complete.
func Sequence(ctx context.Context, root *domain.DatasetNode, exec Executor, emit func(domain.Event)) {
	started := time.Now()
	s := &sequencer{exec: exec, emit: emit}

	defer func() {
		if rec := recover(); rec != nil {
			emit(domain.RunError{
				Message:   fmt.Sprintf("internal error: %v", rec),
				Traceback: string(debug.Stack()),
			})
		}
		emit(domain.Complete{ExecutionTimeMs: time.Since(started).Milliseconds()})
	}()

	if root == nil {
		emit(domain.RunError{Message: domain.ErrNotADataset.Error()})
		return
	}
	if _, err := s.dataset(ctx, root); err != nil {
		emit(domain.RunError{Message: err.Error()})
	}
}

type sequencer struct {
	exec Executor
	emit func(domain.Event)
}

// dataset reports whether node or anything it wraps failed. A non-nil error
// aborts the whole run.
func (s *sequencer) dataset(ctx context.Context, node *domain.DatasetNode) (bool, error) {
	innerFailed := false
	if node.Wrapped != nil {
		failed, err := s.dataset(ctx, node.Wrapped)
		if err != nil {
			return true, err
		}
		innerFailed = failed
		if !failed {
			s.emit(domain.ConnectorFor(node))
		}
	}

	if err := ctx.Err(); err != nil {
		return true, fmt.Errorf("probe cancelled: %w", err)
	}

	s.emit(domain.StartOf(node))
	defer s.emit(domain.DatasetEnd{Path: node.Address})

	if innerFailed {
		s.emit(domain.Skipped{Reason: domain.SkippedInnerFailed})
		return true, nil
	}

	entry, err := s.exec.Open(ctx, node)
	if err != nil {
		s.emit(domain.InitError{Message: err.Error()})
		return true, nil
	}
	s.emit(snapshot(entry, node.DisplayName, 0))

	for i, step := range node.Transforms {
		if err := ctx.Err(); err != nil {
			return true, fmt.Errorf("probe cancelled: %w", err)
		}
		index := i + 1
		next, err := s.exec.Apply(ctx, node, step, entry)
		if err != nil {
			s.emit(domain.StepError{StepLabel: step.DisplayName, StepIndex: index, Message: err.Error()})
			return true, nil
		}
		entry = next
		s.emit(snapshot(entry, step.DisplayName, index))
	}
	return false, nil
}

func snapshot(entry Entry, label string, index int) domain.Snapshot {
	fields := entry.Fields()
	if fields == nil {
		fields = []domain.FieldSnapshot{}
	}
	return domain.Snapshot{EntrySnapshot: domain.EntrySnapshot{
		StepLabel: label,
		StepIndex: index,
		Fields:    fields,
		IsBatched: entry.Batched(),
	}}
}
