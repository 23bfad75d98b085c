package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/aretw0/pipeprobe/internal/logging"
)

// GlobalOptions are shared by every command.
type GlobalOptions struct {
	SettingsPath string
	LogLevel     string
	JSONLogs     bool
	Debug        bool
}

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
				// Context cancelled elsewhere
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// createLogger configures the application logger on Stderr.
// Debug wins over the configured level; an empty level falls back to fallback.
func createLogger(opts GlobalOptions, fallback string) (*slog.Logger, error) {
	name := opts.LogLevel
	if name == "" {
		name = fallback
	}
	if opts.Debug {
		name = "debug"
	}
	level, err := logging.ParseLevel(name)
	if err != nil {
		return nil, err
	}
	return logging.NewWriter(os.Stderr, level, opts.JSONLogs), nil
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

// ParseOverrides turns "old=new" pairs into a data-root override map.
func ParseOverrides(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		from, to, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(from) == "" {
			return nil, fmt.Errorf("invalid override %q: expected OLD=NEW", p)
		}
		out[strings.TrimSpace(from)] = strings.TrimSpace(to)
	}
	return out, nil
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

// handleExecutionError maps interruptions to a clean exit.
func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}
