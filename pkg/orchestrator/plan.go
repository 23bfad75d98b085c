package orchestrator

import (
	"context"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

// planEntry stands in for a dataset item when nothing is executed. Its only
// field is the dataset's data root, so overridden roots show up in reports.
type planEntry struct {
	fields []domain.FieldSnapshot
}

func (e planEntry) Fields() []domain.FieldSnapshot { return e.fields }
func (e planEntry) Batched() bool                  { return false }

// Planner is an Executor that instantiates nothing. Sequencing a chain with it
// yields the event stream a real run would produce if every step succeeded.
type Planner struct{}

// Open implements Executor.
func (Planner) Open(ctx context.Context, node *domain.DatasetNode) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var e planEntry
	if node.DataRoot != "" {
		e.fields = []domain.FieldSnapshot{{Key: node.DataRootKey, PythonType: "str", Preview: node.DataRoot}}
	}
	return e, nil
}

// Apply implements Executor.
func (Planner) Apply(ctx context.Context, _ *domain.DatasetNode, _ domain.TransformStep, entry Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Plan sequences root without executing anything.
func Plan(ctx context.Context, root *domain.DatasetNode, emit func(domain.Event)) {
	Sequence(ctx, root, Planner{}, emit)
}
