package exchange

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WaitForSocket blocks until the socket file for address exists or ctx
// ends. It watches the socket directory instead of polling.
func WaitForSocket(ctx context.Context, address string, opts Options) error {
	path := SocketPath(opts.Dir, address)
	logger := opts.logger().With("socket", path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create socket watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	// The server may have started before the watch was registered.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	logger.Debug("waiting for exchange server")
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return ErrClosed
			}
			if event.Name == path && event.Has(fsnotify.Create) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return ErrClosed
			}
			logger.Debug("socket watcher error", "error", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
