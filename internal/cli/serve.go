package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/pipeprobe"
	httpAdapter "github.com/aretw0/pipeprobe/pkg/adapters/http"
	"github.com/aretw0/pipeprobe/pkg/adapters/mcp"
	"github.com/aretw0/pipeprobe/pkg/observability"
)

// shutdownTimeout bounds graceful shutdown of servers and in-flight runs.
const shutdownTimeout = 5 * time.Second

// ServeOptions configures the HTTP server.
type ServeOptions struct {
	GlobalOptions
	Addr    string
	Metrics bool
}

// Serve runs the HTTP API until ctx is done.
func Serve(ctx context.Context, opts ServeOptions, extra ...pipeprobe.Option) error {
	var metrics *observability.Metrics
	if opts.Metrics {
		metrics = observability.NewMetrics()
		extra = append(extra, pipeprobe.WithMetrics(metrics))
	}

	probe, logger, cleanup, err := createProbe(ctx, opts.GlobalOptions, extra...)
	if err != nil {
		return err
	}
	defer cleanup()

	handlerOpts := []httpAdapter.Option{httpAdapter.WithLogger(logger)}
	if metrics != nil {
		handlerOpts = append(handlerOpts, httpAdapter.WithMetrics(metrics.Handler()))
	}

	srv := &http.Server{
		Addr:    opts.Addr,
		Handler: httpAdapter.NewHandler(probe, handlerOpts...),
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting pipeprobe server", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "err", err)
			srv.Close()
		}
		if err := probe.Sessions().Shutdown(shutdownCtx); err != nil {
			logger.Warn("Probe runs did not stop in time", "err", err)
		}
		logger.Info("pipeprobe server stopped gracefully")
		return nil
	}
}

// MCPOptions configures the MCP server.
type MCPOptions struct {
	GlobalOptions
	Transport string // stdio or sse
	Port      int
}

// ServeMCP runs the MCP server until ctx is done (sse) or stdin closes (stdio).
func ServeMCP(ctx context.Context, opts MCPOptions, extra ...pipeprobe.Option) error {
	probe, logger, cleanup, err := createProbe(ctx, opts.GlobalOptions, extra...)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := mcp.NewServer(probe, logger)
	switch opts.Transport {
	case "", "stdio":
		return srv.ServeStdio()
	case "sse":
		return srv.ServeSSE(ctx, opts.Port)
	default:
		return fmt.Errorf("unknown transport %q: expected stdio or sse", opts.Transport)
	}
}
