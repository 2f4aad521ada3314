package ingesting

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrQueueClosed is returned by Pop once the producer side closed and every queued event was consumed.
	ErrQueueClosed = errors.New("event queue closed")
	// ErrReceiverGone is returned by Push after the processing loop released the queue.
	ErrReceiverGone = errors.New("event queue receiver is gone")
)

// FileEvent references a file believed to be a complete, closed CSV file.
type FileEvent struct {
	ID         string
	Path       string
	DetectedAt time.Time
}

// Outcome is the result of reading and loading one file. A nil Err means success.
type Outcome struct {
	Err error
}

// Success reports whether the file was read and loaded.
func (o Outcome) Success() bool { return o.Err == nil }

func (o Outcome) String() string {
	if o.Success() {
		return "success"
	}
	return "failure"
}

// Queue is the ordered hand-off between the watcher and the processing loop.
type Queue interface {
	// Push appends an event. It never blocks.
	Push(event FileEvent) error
	// Pop blocks until an event is available, the queue is closed and drained, or ctx is done.
	Pop(ctx context.Context) (FileEvent, error)
	// Close marks the producer side as finished. Queued events can still be popped.
	Close()
	// Release marks the consumer side as gone and drops queued events.
	Release()
	// Len returns the number of queued events.
	Len() int
}

// Inserter loads the raw bytes of one file into the target table.
type Inserter interface {
	Insert(ctx context.Context, loadID string, content []byte) error
}

// Disposer removes or relocates a processed file. The returned string is the
// destination path for a move, or empty for a removal.
type Disposer interface {
	HandleSuccess(path string) (string, error)
	HandleError(path string) (string, error)
}

// Observer receives per-file measurements.
type Observer interface {
	FileDetected()
	ReadFailed()
	LoadFinished(bytes int, took time.Duration, err error)
	FileProcessed(outcome Outcome)
	DisposalFailed(outcome Outcome)
}

// Record is one processed file as stored by a Recorder.
type Record struct {
	ID          string
	Path        string
	Size        int
	Outcome     string
	Error       string
	Disposition string
	Destination string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Recorder persists a record of each processed file.
type Recorder interface {
	Record(ctx context.Context, record Record) error
}

// Notifier is told about files that failed to load.
type Notifier interface {
	NotifyFailure(event FileEvent, err error)
}

// IsCSV reports whether path has a csv extension, ignoring case. A bare
// dotfile such as ".csv" has no extension.
func IsCSV(path string) bool {
	ext := filepath.Ext(path)
	return len(filepath.Base(path)) > len(ext) && strings.EqualFold(ext, ".csv")
}
