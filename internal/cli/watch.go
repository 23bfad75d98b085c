package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the bursts of events editors produce on save.
const watchDebounce = 100 * time.Millisecond

// WatchFile reports changes of the file at path until ctx is done.
// The parent directory is watched so that atomic replacements (write to a
// temp file, rename over) are seen as well. The channel is closed on exit.
func WatchFile(ctx context.Context, path string, logger *slog.Logger) (<-chan string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid watch path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	changes := make(chan string, 1)
	go func() {
		defer close(changes)
		defer watcher.Close()

		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				logger.Debug("Config file changed", "file", event.Name, "op", event.Op.String())
				pending = time.After(watchDebounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Watcher error", "err", err)
			case <-pending:
				pending = nil
				select {
				case changes <- abs:
				default:
				}
			}
		}
	}()
	return changes, nil
}

// watchLoop runs iteration, restarting it whenever path changes. A change
// while an iteration is in flight cancels it first. It returns when ctx is done.
func watchLoop(ctx context.Context, path string, logger *slog.Logger, out io.Writer, iteration func(context.Context) error) error {
	changes, err := WatchFile(ctx, path, logger)
	if err != nil {
		return err
	}
	logger.Info("Starting Watcher", "path", path)

	for {
		iterCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- iteration(iterCtx) }()

		select {
		case <-ctx.Done():
			cancel()
			<-done
			return nil
		case _, ok := <-changes:
			cancel()
			<-done
			if !ok {
				return nil
			}
			printSystemMessage(out, "Change detected in '%s'.", path)
			continue
		case err := <-done:
			cancel()
			if err != nil && !isInterrupted(err) {
				logger.Error("Iteration failed", "err", err)
				printSystemMessage(out, "Error: %v", err)
			}
		}

		printSystemMessage(out, "Waiting for changes...")
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			printSystemMessage(out, "Change detected in '%s'.", path)
		}
	}
}
