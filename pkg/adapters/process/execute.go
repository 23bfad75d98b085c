package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/protocol"
)

// Execute runs one probe and blocks until it has terminated.
//
// onEvent receives events in arrival order and always receives exactly one
// Complete, as the last event, whatever the outcome: success, step errors,
// crashes, malformed output, timeout, cancellation of ctx or setup failures.
// Failures are reported as events; Execute never panics into the caller.
func (r *Runner) Execute(ctx context.Context, req domain.RunRequest, onEvent func(domain.Event)) {
	started := time.Now()
	ctx, span := r.tracer.Start(ctx, "probe.execute", trace.WithAttributes(
		attribute.String("probe.yaml_path", req.YAMLPath),
		attribute.String("probe.dataset_path", req.DatasetPath),
	))
	defer span.End()

	if r.hooks.OnRunStart != nil {
		r.hooks.OnRunStart(ctx, req)
	}

	em := &emitter{ctx: ctx, deliver: onEvent, hooks: r.hooks, logger: r.logger}
	outcome := domain.OutcomeCrashed

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("probe run panicked", "panic", rec)
			em.abort(fmt.Sprintf("internal error: %v", rec), string(debug.Stack()))
			outcome = domain.OutcomeCrashed
		}
		em.finish()

		elapsed := time.Since(started)
		span.SetAttributes(attribute.String("probe.outcome", string(outcome)))
		if outcome != domain.OutcomeCompleted {
			span.SetStatus(codes.Error, string(outcome))
		}
		if r.hooks.OnRunEnd != nil {
			r.hooks.OnRunEnd(ctx, outcome, elapsed)
		}
		r.logger.Info("probe run finished", "dataset", req.DatasetPath, "outcome", outcome, "elapsed", elapsed)
	}()

	outcome = r.execute(ctx, req, em, started)
}

func (r *Runner) execute(ctx context.Context, req domain.RunRequest, em *emitter, started time.Time) domain.RunOutcome {
	if err := r.validate.Struct(req); err != nil {
		em.abort(fmt.Sprintf("invalid run request: %v", err), "")
		return domain.OutcomeLaunchFailed
	}

	it, err := r.ResolveInterpreter()
	if err != nil {
		em.abort(err.Error(), "")
		return domain.OutcomeLaunchFailed
	}

	scriptPath, err := r.writeTemp("pipeprobe-script-*.py", r.script)
	if err != nil {
		em.abort(err.Error(), "")
		return domain.OutcomeLaunchFailed
	}
	defer os.Remove(scriptPath)

	payload, err := json.Marshal(req)
	if err != nil {
		em.abort(fmt.Sprintf("failed to encode run request: %v", err), "")
		return domain.OutcomeLaunchFailed
	}
	requestPath, err := r.writeTemp("pipeprobe-request-*.json", payload)
	if err != nil {
		em.abort(err.Error(), "")
		return domain.OutcomeLaunchFailed
	}
	defer os.Remove(requestPath)

	if ctx.Err() != nil {
		em.abort("probe cancelled", "")
		return domain.OutcomeCancelled
	}

	// The process is stopped explicitly (timeout, cancel, lingering after
	// completion), so its context does not derive from ctx.
	procCtx, stop := context.WithCancel(context.Background())
	defer stop()

	stdout, stdoutW := io.Pipe()
	stderr := newTailBuffer(stderrTailSize)

	args := append(append([]string{}, it.Args...), scriptPath, requestPath)
	cmd := exec.CommandContext(procCtx, it.Command, args...)
	cmd.Dir = r.workDir
	cmd.Env = r.environ(it, req.ProjectPaths)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderr
	cmd.Cancel = func() error { return r.stop(cmd.Process) }
	cmd.WaitDelay = r.killGrace

	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		em.abort(fmt.Sprintf("failed to start %s: %v", it.Command, err), "")
		return domain.OutcomeLaunchFailed
	}
	r.logger.Debug("probe process started", "pid", cmd.Process.Pid, "interpreter", it.Command, "dataset", req.DatasetPath)

	waitCh := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		stdoutW.Close()
		waitCh <- err
	}()

	events := make(chan domain.Event, eventBuffer)
	go r.read(ctx, stdout, events)

	var (
		timeoutC <-chan time.Time
		graceC   <-chan time.Time
		done     = ctx.Done()
		held     *domain.Complete
		waitErr  error
		outcome  domain.RunOutcome
	)
	if r.timeout > 0 {
		t := time.NewTimer(r.timeout)
		defer t.Stop()
		timeoutC = t.C
	}

	for events != nil || waitCh != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if held != nil || outcome != "" {
				continue
			}
			if c, isComplete := ev.(domain.Complete); isComplete {
				// Delivered once the process is gone, so nothing else can follow it.
				held = &c
				g := time.NewTimer(r.completeGrace)
				defer g.Stop()
				graceC = g.C
				continue
			}
			em.emit(ev)

		case waitErr = <-waitCh:
			waitCh = nil

		case <-timeoutC:
			timeoutC = nil
			stop()
			if held == nil && outcome == "" {
				r.logger.Warn("probe timed out", "dataset", req.DatasetPath, "timeout", r.timeout)
				em.emit(domain.RunError{Message: fmt.Sprintf("timed out after %s seconds", formatSeconds(r.timeout))})
				em.emit(domain.Complete{ExecutionTimeMs: r.timeout.Milliseconds()})
				outcome = domain.OutcomeTimeout
			}

		case <-done:
			done = nil
			stop()
			if held == nil && outcome == "" {
				r.logger.Info("probe cancelled", "dataset", req.DatasetPath)
				em.emit(domain.RunError{Message: "probe cancelled"})
				em.emit(domain.Complete{ExecutionTimeMs: time.Since(started).Milliseconds()})
				outcome = domain.OutcomeCancelled
			}

		case <-graceC:
			graceC = nil
			r.logger.Warn("probe process still running after completion; stopping it", "pid", cmd.Process.Pid)
			stop()
		}
	}

	if outcome != "" {
		return outcome
	}
	if held != nil {
		em.emit(*held)
		if em.failures > 0 {
			return domain.OutcomeFailed
		}
		return domain.OutcomeCompleted
	}

	code := exitCode(waitErr)
	r.logger.Warn("probe process exited without completing", "dataset", req.DatasetPath, "code", code)
	em.emit(domain.RunError{
		Message:   fmt.Sprintf("exited unexpectedly, code=%d", code),
		Traceback: stderr.String(),
	})
	em.emit(domain.Complete{})
	return domain.OutcomeCrashed
}

// read decodes stdout into events until the stream ends. Anything left after a
// read error is discarded so the process never blocks on a full pipe.
func (r *Runner) read(ctx context.Context, stdout *io.PipeReader, events chan<- domain.Event) {
	defer close(events)
	defer io.Copy(io.Discard, stdout)

	dec := protocol.NewDecoder(stdout,
		protocol.WithNoiseHandler(func(line string) {
			r.logger.Debug("probe output", "line", line)
		}),
		protocol.WithDropHandler(func(line string, err error) {
			r.logger.Warn("dropped malformed probe event", "err", err)
			if r.hooks.OnLineDropped != nil {
				r.hooks.OnLineDropped(ctx, err)
			}
		}),
	)
	for {
		ev, err := dec.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Warn("probe output read failed", "err", err)
			}
			return
		}
		events <- ev
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// emitter enforces the delivery contract: arrival order, nothing after Complete.
type emitter struct {
	ctx       context.Context
	deliver   func(domain.Event)
	hooks     domain.RunHooks
	logger    *slog.Logger
	completed bool
	failures  int
}

func (e *emitter) emit(ev domain.Event) {
	if e.completed {
		return
	}
	if domain.IsTerminal(ev) {
		e.completed = true
	}
	switch ev.(type) {
	case domain.StepError, domain.InitError, domain.RunError:
		e.failures++
	}
	if e.hooks.OnEvent != nil {
		e.hooks.OnEvent(e.ctx, ev)
	}
	e.safeDeliver(ev)
}

func (e *emitter) safeDeliver(ev domain.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("probe event consumer panicked", "event", ev.Type(), "panic", rec)
		}
	}()
	if e.deliver != nil {
		e.deliver(ev)
	}
}

// abort reports a failure and completes the run with zero elapsed time.
func (e *emitter) abort(message, traceback string) {
	e.emit(domain.RunError{Message: message, Traceback: traceback})
	e.emit(domain.Complete{})
}

func (e *emitter) finish() {
	if !e.completed {
		e.emit(domain.Complete{})
	}
}
