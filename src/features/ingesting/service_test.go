package ingesting_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/contre95/csvinserter/src/features/ingesting"
	"github.com/contre95/csvinserter/src/infra/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInserter struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeInserter) Insert(ctx context.Context, loadID string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, string(content))
	return f.fail[string(content)]
}

type disposal struct {
	path    string
	success bool
}

type fakeDisposer struct {
	mu        sync.Mutex
	disposals []disposal
	moveTo    string
	err       error
}

func (f *fakeDisposer) HandleSuccess(path string) (string, error) {
	return f.handle(path, true)
}

func (f *fakeDisposer) HandleError(path string) (string, error) {
	return f.handle(path, false)
}

func (f *fakeDisposer) handle(path string, success bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disposals = append(f.disposals, disposal{path: path, success: success})
	if f.err != nil {
		return "", f.err
	}
	return f.moveTo, nil
}

func (f *fakeDisposer) all() []disposal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]disposal(nil), f.disposals...)
}

type fakeObserver struct {
	mu             sync.Mutex
	readFailures   int
	loads          int
	loadFailures   int
	processed      []string
	disposalFailed []string
}

func (o *fakeObserver) FileDetected() {}

func (o *fakeObserver) ReadFailed() {
	o.mu.Lock()
	o.readFailures++
	o.mu.Unlock()
}

func (o *fakeObserver) LoadFinished(bytes int, took time.Duration, err error) {
	o.mu.Lock()
	o.loads++
	if err != nil {
		o.loadFailures++
	}
	o.mu.Unlock()
}

func (o *fakeObserver) FileProcessed(outcome ingesting.Outcome) {
	o.mu.Lock()
	o.processed = append(o.processed, outcome.String())
	o.mu.Unlock()
}

func (o *fakeObserver) DisposalFailed(outcome ingesting.Outcome) {
	o.mu.Lock()
	o.disposalFailed = append(o.disposalFailed, outcome.String())
	o.mu.Unlock()
}

type fakeRecorder struct {
	records []ingesting.Record
}

func (r *fakeRecorder) Record(ctx context.Context, rec ingesting.Record) error {
	r.records = append(r.records, rec)
	return nil
}

type fakeNotifier struct {
	failed []string
}

func (n *fakeNotifier) NotifyFailure(event ingesting.FileEvent, err error) {
	n.failed = append(n.failed, event.Path)
}

// files maps a path to its content. Missing paths fail to read.
func readFrom(files map[string]string) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		content, ok := files[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return []byte(content), nil
	}
}

func event(path string) ingesting.FileEvent {
	return ingesting.FileEvent{ID: "id-" + path, Path: path, DetectedAt: time.Now()}
}

func runClosed(t *testing.T, svc *ingesting.Service, q *queue.InMemoryQueue) {
	t.Helper()
	q.Close()
	require.NoError(t, svc.Run(context.Background()))
}

func TestRun_ProcessesInArrivalOrder(t *testing.T) {
	q := queue.NewInMemoryQueue()
	ins := &fakeInserter{}
	disp := &fakeDisposer{}
	files := map[string]string{"/in/a.csv": "a", "/in/b.csv": "b", "/in/c.csv": "c"}
	svc := ingesting.NewService(q, ins, disp, ingesting.WithReadFile(readFrom(files)))

	for _, p := range []string{"/in/a.csv", "/in/b.csv", "/in/c.csv"} {
		require.NoError(t, q.Push(event(p)))
	}
	runClosed(t, svc, q)

	assert.Equal(t, []string{"a", "b", "c"}, ins.calls)
	assert.Equal(t, []disposal{
		{"/in/a.csv", true},
		{"/in/b.csv", true},
		{"/in/c.csv", true},
	}, disp.all())
}

func TestRun_ReadFailureDisposesAsError(t *testing.T) {
	q := queue.NewInMemoryQueue()
	ins := &fakeInserter{}
	disp := &fakeDisposer{}
	obs := &fakeObserver{}
	notifier := &fakeNotifier{}
	svc := ingesting.NewService(q, ins, disp,
		ingesting.WithReadFile(readFrom(nil)),
		ingesting.WithObserver(obs),
		ingesting.WithNotifier(notifier),
	)

	require.NoError(t, q.Push(event("/in/missing.csv")))
	runClosed(t, svc, q)

	assert.Empty(t, ins.calls, "nothing is loaded when the read fails")
	assert.Equal(t, []disposal{{"/in/missing.csv", false}}, disp.all())
	assert.Equal(t, 1, obs.readFailures)
	assert.Equal(t, []string{"failure"}, obs.processed)
	assert.Equal(t, []string{"/in/missing.csv"}, notifier.failed)
}

func TestRun_LoadFailureDisposesAsError(t *testing.T) {
	q := queue.NewInMemoryQueue()
	ins := &fakeInserter{fail: map[string]error{"bad": errors.New("Code: 27. Cannot parse input")}}
	disp := &fakeDisposer{}
	obs := &fakeObserver{}
	notifier := &fakeNotifier{}
	files := map[string]string{"/in/bad.csv": "bad", "/in/good.csv": "good"}
	svc := ingesting.NewService(q, ins, disp,
		ingesting.WithReadFile(readFrom(files)),
		ingesting.WithObserver(obs),
		ingesting.WithNotifier(notifier),
	)

	require.NoError(t, q.Push(event("/in/bad.csv")))
	require.NoError(t, q.Push(event("/in/good.csv")))
	runClosed(t, svc, q)

	assert.Equal(t, []string{"bad", "good"}, ins.calls, "failed load is not retried")
	assert.Equal(t, []disposal{{"/in/bad.csv", false}, {"/in/good.csv", true}}, disp.all())
	assert.Equal(t, 2, obs.loads)
	assert.Equal(t, 1, obs.loadFailures)
	assert.Equal(t, []string{"failure", "success"}, obs.processed)
	assert.Equal(t, []string{"/in/bad.csv"}, notifier.failed)
}

func TestRun_DisposalFailureDoesNotStopLoop(t *testing.T) {
	q := queue.NewInMemoryQueue()
	ins := &fakeInserter{}
	disp := &fakeDisposer{err: os.ErrPermission}
	obs := &fakeObserver{}
	files := map[string]string{"/in/a.csv": "a", "/in/b.csv": "b"}
	svc := ingesting.NewService(q, ins, disp,
		ingesting.WithReadFile(readFrom(files)),
		ingesting.WithObserver(obs),
	)

	require.NoError(t, q.Push(event("/in/a.csv")))
	require.NoError(t, q.Push(event("/in/b.csv")))
	runClosed(t, svc, q)

	assert.Len(t, disp.all(), 2)
	assert.Equal(t, []string{"success", "success"}, obs.disposalFailed)
	assert.Equal(t, []string{"success", "success"}, obs.processed)
}

func TestRun_ReleasesQueueOnExit(t *testing.T) {
	q := queue.NewInMemoryQueue()
	svc := ingesting.NewService(q, &fakeInserter{}, &fakeDisposer{})

	runClosed(t, svc, q)
	assert.ErrorIs(t, q.Push(event("/in/late.csv")), ingesting.ErrReceiverGone)
}

func TestRun_CancelDropsPendingEvents(t *testing.T) {
	q := queue.NewInMemoryQueue()
	ins := &fakeInserter{}
	disp := &fakeDisposer{}
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	read := func(path string) ([]byte, error) {
		if path == "/in/first.csv" {
			close(started)
			<-release
		}
		return []byte(path), nil
	}
	svc := ingesting.NewService(q, ins, disp, ingesting.WithReadFile(read))

	require.NoError(t, q.Push(event("/in/first.csv")))
	require.NoError(t, q.Push(event("/in/second.csv")))

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	<-started
	cancel()
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	assert.Equal(t, []disposal{{"/in/first.csv", true}}, disp.all(), "in-flight file completes, pending file is dropped")
	assert.Equal(t, []string{"/in/first.csv"}, ins.calls)
}

func TestProcess_RecordsOutcome(t *testing.T) {
	q := queue.NewInMemoryQueue()
	ins := &fakeInserter{fail: map[string]error{"bad": errors.New("rejected")}}
	disp := &fakeDisposer{moveTo: "/done/a.csv"}
	rec := &fakeRecorder{}
	files := map[string]string{"/in/a.csv": "12345", "/in/bad.csv": "bad"}
	svc := ingesting.NewService(q, ins, disp,
		ingesting.WithReadFile(readFrom(files)),
		ingesting.WithRecorder(rec),
	)

	svc.Process(context.Background(), event("/in/a.csv"))
	svc.Process(context.Background(), event("/in/bad.csv"))

	require.Len(t, rec.records, 2)

	ok := rec.records[0]
	assert.Equal(t, "id-/in/a.csv", ok.ID)
	assert.Equal(t, 5, ok.Size)
	assert.Equal(t, "success", ok.Outcome)
	assert.Equal(t, "moved", ok.Disposition)
	assert.Equal(t, "/done/a.csv", ok.Destination)
	assert.Empty(t, ok.Error)
	assert.False(t, ok.FinishedAt.Before(ok.StartedAt))

	failed := rec.records[1]
	assert.Equal(t, "failure", failed.Outcome)
	assert.Equal(t, "rejected", failed.Error)
}

func TestProcess_RecordsRemovalAndDisposalError(t *testing.T) {
	rec := &fakeRecorder{}
	files := map[string]string{"/in/a.csv": "a"}

	removed := ingesting.NewService(queue.NewInMemoryQueue(), &fakeInserter{}, &fakeDisposer{},
		ingesting.WithReadFile(readFrom(files)), ingesting.WithRecorder(rec))
	removed.Process(context.Background(), event("/in/a.csv"))

	failing := ingesting.NewService(queue.NewInMemoryQueue(), &fakeInserter{}, &fakeDisposer{err: os.ErrPermission},
		ingesting.WithReadFile(readFrom(files)), ingesting.WithRecorder(rec))
	failing.Process(context.Background(), event("/in/a.csv"))

	require.Len(t, rec.records, 2)
	assert.Equal(t, "removed", rec.records[0].Disposition)
	assert.Equal(t, "failed", rec.records[1].Disposition)
	assert.Contains(t, rec.records[1].Error, os.ErrPermission.Error())
}

func TestIsCSV(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/in/data.csv", true},
		{"/in/DATA.CSV", true},
		{"/in/data.Csv", true},
		{"data.csv", true},
		{"/in/data.csv.tmp", false},
		{"/in/data.txt", false},
		{"/in/csv", false},
		{"/in/.csv", false},
		{"/in/data", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ingesting.IsCSV(tt.path))
		})
	}
}
