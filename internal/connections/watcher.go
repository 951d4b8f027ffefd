package connections

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces editor write bursts into one reload.
const debounceDelay = 100 * time.Millisecond

// Watcher reloads a file source whenever its file changes and tells
// subscribers about it.
type Watcher struct {
	src *FileSource
	log *slog.Logger

	mu        sync.RWMutex
	listeners []chan struct{}
}

// NewWatcher wraps a file source. Run must be called for reloads to
// happen.
func NewWatcher(src *FileSource, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Watcher{src: src, log: log}
}

// Subscribe returns a channel that receives after each successful
// reload. The channel is never closed; drop it to unsubscribe.
func (w *Watcher) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	w.mu.Lock()
	w.listeners = append(w.listeners, ch)
	w.mu.Unlock()
	return ch
}

// Run watches the file's directory until ctx is done. The directory is
// watched rather than the file so editors that replace the file keep
// triggering reloads.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(w.src.Path())
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	target := filepath.Clean(w.src.Path())
	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				w.log.Debug("connections file changed, reloading", "file", event.Name)
				if err := w.src.Reload(); err != nil {
					w.log.Error("failed to reload connections", "error", err)
					return
				}
				w.broadcast()
			})

		case err := <-watcher.Errors:
			w.log.Error("connections watcher error", "error", err)
		}
	}
}

// broadcast notifies all listeners without blocking on any of them.
func (w *Watcher) broadcast() {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, ch := range w.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
