package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/contre95/csvinserter/src/features/ingesting"
	"github.com/google/uuid"
)

// Options configures the notification backend
type Options struct {
	Backend string        // auto, inotify or fsnotify
	Settle  time.Duration // quiet period after which fsnotify treats a file as closed
	Buffer  int           // inotify channel capacity
}

// Watcher monitors one directory for completed CSV files and pushes them to the queue
type Watcher struct {
	backend  backend
	queue    ingesting.Queue
	observer ingesting.Observer
	watchDir string
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	done     sync.WaitGroup
}

// NewWatcher creates a new file system watcher. observer may be nil.
func NewWatcher(queue ingesting.Queue, observer ingesting.Observer, opts Options) (*Watcher, error) {
	b, err := newBackend(opts)
	if err != nil {
		return nil, err
	}
	return newWatcher(b, queue, observer), nil
}

func newWatcher(b backend, queue ingesting.Queue, observer ingesting.Observer) *Watcher {
	return &Watcher{
		backend:  b,
		queue:    queue,
		observer: observer,
		stopChan: make(chan struct{}),
	}
}

func newBackend(opts Options) (backend, error) {
	switch opts.Backend {
	case BackendInotify:
		return newNotifyBackend(opts.Buffer)
	case BackendFsnotify:
		return newFsnotifyBackend(opts.Settle)
	case BackendAuto, "":
		if inotifySupported {
			return newNotifyBackend(opts.Buffer)
		}
		return newFsnotifyBackend(opts.Settle)
	}
	return nil, fmt.Errorf("unknown watcher backend %q", opts.Backend)
}

// Start subscribes to watchDir and begins forwarding events. A subscription
// failure is returned to the caller.
func (w *Watcher) Start(ctx context.Context, watchDir string) error {
	w.watchDir = watchDir
	slog.Info("Starting file watcher", "path", watchDir)

	if err := w.backend.subscribe(watchDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", watchDir, err)
	}

	w.running = true

	w.done.Add(1)
	go w.watchLoop(ctx)

	slog.Info("Watching directory", "path", watchDir)
	return nil
}

// Stop stops the file watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	if !w.running {
		return
	}

	w.stopOnce.Do(func() {
		slog.Info("Stopping file watcher")
		close(w.stopChan)
		if err := w.backend.close(); err != nil {
			slog.Warn("Failed to close watcher backend", "error", err)
		}
		w.done.Wait()
	})
}

// watchLoop processes file system events
func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.done.Done()
	for {
		select {
		case n, ok := <-w.backend.notifications():
			if !ok {
				return
			}
			w.handleNotification(n)

		case err, ok := <-w.backend.errors():
			if !ok {
				return
			}
			slog.Error("Watch error", "error", err)

		case <-w.stopChan:
			return

		case <-ctx.Done():
			return
		}
	}
}

// handleNotification forwards every csv path of a close-write notification
func (w *Watcher) handleNotification(n Notification) {
	if n.Kind != KindCloseWrite {
		return
	}
	for _, path := range n.Paths {
		if !ingesting.IsCSV(path) {
			continue
		}
		event := ingesting.FileEvent{
			ID:         uuid.New().String(),
			Path:       path,
			DetectedAt: time.Now(),
		}
		slog.Info("New file detected", "path", path, "event_id", event.ID)
		if w.observer != nil {
			w.observer.FileDetected()
		}
		if err := w.queue.Push(event); err != nil {
			slog.Error("Failed to send file path", "path", path, "error", err)
		}
	}
}
