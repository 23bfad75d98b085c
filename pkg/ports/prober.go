package ports

import (
	"context"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

// Prober executes a single probe run.
type Prober interface {
	// Execute blocks until the run has terminated. onEvent receives events in
	// arrival order and exactly one domain.Complete, always last, even when the
	// run fails, times out or ctx is cancelled.
	Execute(ctx context.Context, req domain.RunRequest, onEvent func(domain.Event))
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, req domain.RunRequest, onEvent func(domain.Event))

// Execute calls f.
func (f ProberFunc) Execute(ctx context.Context, req domain.RunRequest, onEvent func(domain.Event)) {
	f(ctx, req, onEvent)
}
