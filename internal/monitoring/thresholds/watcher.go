package thresholds

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap"
)

// DefaultDebounce collapses bursts of writes from editors into one reload
const DefaultDebounce = 100 * time.Millisecond

// Watcher applies a threshold file to a Manager whenever the file changes.
// Reloads run as domain.SystemPrincipal.
type Watcher struct {
	path     string
	manager  *Manager
	logger   *zap.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewWatcher creates a watcher for path. Nothing is read until Start.
func NewWatcher(path string, manager *Manager, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		path:     path,
		manager:  manager,
		logger:   logger,
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
	}
}

// Start applies the file once and then watches it. An invalid file at
// startup is an error; invalid files seen later are logged and skipped.
func (w *Watcher) Start() error {
	if err := w.Reload(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory so atomic rename-over saves are seen
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch threshold file: %w", err)
	}
	w.watcher = watcher

	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Info("Watching threshold file", zap.String("path", w.path))
	return nil
}

// Reload applies the file immediately
func (w *Watcher) Reload() error {
	u, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	if u.IsEmpty() {
		return nil
	}

	ctx := domain.WithPrincipal(context.Background(), domain.SystemPrincipal)
	if _, err := w.manager.Update(ctx, u); err != nil {
		return err
	}
	return nil
}

// Stop ends the watch loop
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		if w.watcher != nil {
			w.watcher.Close()
		}
		w.wg.Wait()
	})
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	target := filepath.Clean(w.path)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(w.debounce)
			}

		case <-timer.C:
			if err := w.Reload(); err != nil {
				w.logger.Error("Failed to reload thresholds",
					zap.String("path", w.path),
					zap.Error(err))
				continue
			}
			w.logger.Info("Reloaded thresholds", zap.String("path", w.path))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Threshold file watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}
