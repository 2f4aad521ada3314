package ingesting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Service is the single consumer of the event queue. It processes one file at
// a time: read, load, dispose.
type Service struct {
	queue    Queue
	inserter Inserter
	disposer Disposer
	observer Observer
	recorder Recorder
	notifier Notifier
	readFile func(string) ([]byte, error)
}

// Option configures optional collaborators of the Service.
type Option func(*Service)

func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithReadFile replaces os.ReadFile.
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(s *Service) { s.readFile = fn }
}

// NewService creates the processing loop.
func NewService(queue Queue, inserter Inserter, disposer Disposer, opts ...Option) *Service {
	s := &Service{
		queue:    queue,
		inserter: inserter,
		disposer: disposer,
		observer: nopObserver{},
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drains the queue until it is closed or ctx is cancelled. Events still
// queued when ctx is cancelled are dropped. A file whose processing already
// started is always finished, including its disposal.
func (s *Service) Run(ctx context.Context) error {
	defer s.queue.Release()
	slog.Info("Ready to process files")
	for {
		if ctx.Err() != nil {
			slog.Info("Processing loop cancelled", "dropped_events", s.queue.Len())
			return nil
		}
		event, err := s.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				slog.Info("Event queue closed, stopping processing loop")
				return nil
			}
			if ctx.Err() != nil {
				continue
			}
			return fmt.Errorf("failed to receive file event: %w", err)
		}
		s.Process(context.WithoutCancel(ctx), event)
	}
}

// Process reads, loads and disposes of a single file. Every call results in
// exactly one disposal attempt.
func (s *Service) Process(ctx context.Context, event FileEvent) {
	started := time.Now()
	logger := slog.With("path", event.Path, "event_id", event.ID)
	logger.Info("Processing file")

	size, outcome := s.load(ctx, logger, event)

	var (
		dest string
		err  error
	)
	if outcome.Success() {
		dest, err = s.disposer.HandleSuccess(event.Path)
		if err != nil {
			logger.Error("Failed to handle successful file", "error", err)
		}
	} else {
		if s.notifier != nil {
			s.notifier.NotifyFailure(event, outcome.Err)
		}
		dest, err = s.disposer.HandleError(event.Path)
		if err != nil {
			logger.Error("Failed to handle failed file", "error", err)
		}
	}
	if err != nil {
		s.observer.DisposalFailed(outcome)
	} else if dest != "" {
		logger.Info("Moved file", "outcome", outcome.String(), "destination", dest)
	} else {
		logger.Info("Removed file", "outcome", outcome.String())
	}
	s.observer.FileProcessed(outcome)

	if s.recorder != nil {
		s.record(ctx, event, outcome, size, dest, err, started)
	}
}

func (s *Service) load(ctx context.Context, logger *slog.Logger, event FileEvent) (int, Outcome) {
	content, err := s.readFile(event.Path)
	if err != nil {
		logger.Error("Failed to read file", "error", err)
		s.observer.ReadFailed()
		return 0, Outcome{Err: fmt.Errorf("read %s: %w", event.Path, err)}
	}
	logger.Info("File read", "bytes", len(content))

	start := time.Now()
	err = s.inserter.Insert(ctx, event.ID, content)
	s.observer.LoadFinished(len(content), time.Since(start), err)
	if err != nil {
		logger.Error("Insert failed", "error", err)
		return len(content), Outcome{Err: err}
	}
	logger.Info("Insert completed", "took", time.Since(start).String())
	return len(content), Outcome{}
}

func (s *Service) record(ctx context.Context, event FileEvent, outcome Outcome, size int, dest string, disposeErr error, started time.Time) {
	rec := Record{
		ID:          event.ID,
		Path:        event.Path,
		Size:        size,
		Outcome:     outcome.String(),
		Destination: dest,
		StartedAt:   started,
		FinishedAt:  time.Now(),
	}
	switch {
	case disposeErr != nil:
		rec.Disposition = "failed"
	case dest != "":
		rec.Disposition = "moved"
	default:
		rec.Disposition = "removed"
	}
	var errs []error
	if outcome.Err != nil {
		errs = append(errs, outcome.Err)
	}
	if disposeErr != nil {
		errs = append(errs, disposeErr)
	}
	if len(errs) > 0 {
		rec.Error = errors.Join(errs...).Error()
	}
	if err := s.recorder.Record(ctx, rec); err != nil {
		slog.Warn("Failed to record ingestion", "path", event.Path, "error", err)
	}
}

type nopObserver struct{}

func (nopObserver) FileDetected() {}
func (nopObserver) ReadFailed() {}
func (nopObserver) LoadFinished(int, time.Duration, error) {}
func (nopObserver) FileProcessed(Outcome) {}
func (nopObserver) DisposalFailed(Outcome) {}
