package watcher

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultSettle = 2 * time.Second

// fsnotifyBackend emulates close-write on top of fsnotify: a file counts as
// closed once it saw no Create or Write for the settle period.
type fsnotifyBackend struct {
	watcher *fsnotify.Watcher
	settle  time.Duration
	out     chan Notification
	errs    chan error
	stop    chan struct{}
	once    sync.Once
	group   sync.WaitGroup

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newFsnotifyBackend(settle time.Duration) (backend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = defaultSettle
	}
	return &fsnotifyBackend{
		watcher: w,
		settle:  settle,
		out:     make(chan Notification),
		errs:    make(chan error),
		stop:    make(chan struct{}),
		timers:  make(map[string]*time.Timer),
	}, nil
}

func (b *fsnotifyBackend) subscribe(dir string) error {
	if err := b.watcher.Add(dir); err != nil {
		return err
	}
	b.group.Add(1)
	go b.loop()
	return nil
}

func (b *fsnotifyBackend) loop() {
	defer b.group.Done()
	for {
		select {
		case e, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handle(e)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			select {
			case b.errs <- err:
			case <-b.stop:
				return
			}
		case <-b.stop:
			return
		}
	}
}

func (b *fsnotifyBackend) handle(e fsnotify.Event) {
	switch {
	case e.Has(fsnotify.Create) || e.Has(fsnotify.Write):
		b.resetTimer(e.Name)
		b.emit(Notification{Kind: kindOfFsnotify(e), Paths: []string{e.Name}})
	case e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename):
		b.cancelTimer(e.Name)
		b.emit(Notification{Kind: kindOfFsnotify(e), Paths: []string{e.Name}})
	}
}

func kindOfFsnotify(e fsnotify.Event) Kind {
	switch {
	case e.Has(fsnotify.Create):
		return KindCreate
	case e.Has(fsnotify.Write):
		return KindWrite
	case e.Has(fsnotify.Remove):
		return KindRemove
	case e.Has(fsnotify.Rename):
		return KindRename
	}
	return KindOther
}

// resetTimer restarts the settle period of path
func (b *fsnotifyBackend) resetTimer(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.timers[path]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(b.settle, func() {
		b.mu.Lock()
		// a newer timer replaced this one
		if b.timers[path] != t {
			b.mu.Unlock()
			return
		}
		delete(b.timers, path)
		b.mu.Unlock()
		b.emit(Notification{Kind: KindCloseWrite, Paths: []string{path}})
	})
	b.timers[path] = t
}

func (b *fsnotifyBackend) cancelTimer(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.timers[path]; ok {
		t.Stop()
		delete(b.timers, path)
	}
}

func (b *fsnotifyBackend) emit(n Notification) {
	select {
	case b.out <- n:
	case <-b.stop:
	}
}

func (b *fsnotifyBackend) notifications() <-chan Notification { return b.out }

func (b *fsnotifyBackend) errors() <-chan error { return b.errs }

func (b *fsnotifyBackend) close() error {
	var err error
	b.once.Do(func() {
		close(b.stop)
		err = b.watcher.Close()
		b.group.Wait()

		b.mu.Lock()
		for path, t := range b.timers {
			t.Stop()
			delete(b.timers, path)
		}
		b.mu.Unlock()
	})
	return err
}
