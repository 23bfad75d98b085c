package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/pipeprobe"
	"github.com/aretw0/pipeprobe/pkg/adapters/redis"
	"github.com/aretw0/pipeprobe/pkg/config"
)

// createProbe initializes a Probe with standard CLI conventions.
// The returned cleanup releases external connections and must always be called.
func createProbe(ctx context.Context, opts GlobalOptions, extra ...pipeprobe.Option) (*pipeprobe.Probe, *slog.Logger, func(), error) {
	settings, err := config.Load(opts.SettingsPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := createLogger(opts, settings.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {}
	probeOpts := []pipeprobe.Option{
		pipeprobe.WithSettings(settings),
		pipeprobe.WithLogger(logger),
	}

	// Cross-process exclusivity only when a Redis address is configured.
	if settings.RedisAddr != "" {
		locker, err := redis.Dial(ctx, settings.RedisAddr)
		if err != nil {
			return nil, nil, nil, err
		}
		probeOpts = append(probeOpts, pipeprobe.WithLocker(locker))
		cleanup = func() {
			if err := locker.Close(); err != nil {
				logger.Warn("Failed to close redis client", "err", err)
			}
		}
		logger.Debug("Distributed session locks enabled", "addr", settings.RedisAddr)
	}

	probe, err := pipeprobe.New(append(probeOpts, extra...)...)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("error initializing pipeprobe: %w", err)
	}
	return probe, logger, cleanup, nil
}
