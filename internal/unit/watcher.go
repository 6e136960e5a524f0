package unit

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/contentloader/internal/logfields"
)

// DefaultDebounce is the quiet period after the last file event before the
// catalog is rescanned.
const DefaultDebounce = 2 * time.Second

// Watcher rescans a Catalog when files below its directory change.
type Watcher struct {
	catalog  *Catalog
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher for c. A non-positive debounce selects
// DefaultDebounce.
func NewWatcher(c *Catalog, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{catalog: c, watcher: fw, debounce: debounce, logger: logger}, nil
}

// Run watches until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			w.logger.Error("Error closing file watcher", logfields.Error(err))
		}
	}()

	if err := w.addTree(); err != nil {
		return err
	}
	w.logger.Info("Watching unit directory", logfields.Path(w.catalog.Dir()))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debug("Unit directory change", logfields.Path(event.Name), slog.String("op", event.Op.String()))
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Unit watcher error", logfields.Error(err))
		case <-timer.C:
			if err := w.catalog.Scan(ctx); err != nil {
				w.logger.Error("Failed to rescan units", logfields.Error(err))
			}
			if err := w.addTree(); err != nil {
				w.logger.Warn("Failed to refresh directory watches", logfields.Error(err))
			}
		}
	}
}

// addTree watches the root and every directory below it. fsnotify is not
// recursive, so new subdirectories are picked up after each rescan.
func (w *Watcher) addTree() error {
	root := w.catalog.Dir()
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return fmt.Errorf("failed to watch unit directory %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}
