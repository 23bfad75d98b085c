package domain

import (
	"context"
	"time"
)

// RunOutcome classifies how a probe run ended.
type RunOutcome string

const (
	// OutcomeCompleted means the child reported completion without errors.
	OutcomeCompleted RunOutcome = "completed"
	// OutcomeFailed means the child completed but reported step, init or run errors.
	OutcomeFailed       RunOutcome = "failed"
	OutcomeTimeout      RunOutcome = "timeout"
	OutcomeCancelled    RunOutcome = "cancelled"
	OutcomeCrashed      RunOutcome = "crashed"
	OutcomeLaunchFailed RunOutcome = "launch_failed"
)

// RunHooks defines callbacks for probe run observability.
// Every field is optional.
type RunHooks struct {
	OnRunStart    func(context.Context, RunRequest)
	OnEvent       func(context.Context, Event)
	OnLineDropped func(context.Context, error)
	OnRunEnd      func(context.Context, RunOutcome, time.Duration)
}

// MergeHooks returns hooks that call each of hs in order.
func MergeHooks(hs ...RunHooks) RunHooks {
	return RunHooks{
		OnRunStart: func(ctx context.Context, req RunRequest) {
			for _, h := range hs {
				if h.OnRunStart != nil {
					h.OnRunStart(ctx, req)
				}
			}
		},
		OnEvent: func(ctx context.Context, ev Event) {
			for _, h := range hs {
				if h.OnEvent != nil {
					h.OnEvent(ctx, ev)
				}
			}
		},
		OnLineDropped: func(ctx context.Context, err error) {
			for _, h := range hs {
				if h.OnLineDropped != nil {
					h.OnLineDropped(ctx, err)
				}
			}
		},
		OnRunEnd: func(ctx context.Context, o RunOutcome, d time.Duration) {
			for _, h := range hs {
				if h.OnRunEnd != nil {
					h.OnRunEnd(ctx, o, d)
				}
			}
		},
	}
}
