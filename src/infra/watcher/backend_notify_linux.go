//go:build linux

package watcher

import (
	"fmt"
	"sync"

	"github.com/rjeczalik/notify"
)

const inotifySupported = true

// notifyBackend receives IN_CLOSE_WRITE events through rjeczalik/notify.
type notifyBackend struct {
	raw   chan notify.EventInfo
	out   chan Notification
	errs  chan error
	stop  chan struct{}
	once  sync.Once
	group sync.WaitGroup
}

func newNotifyBackend(buffer int) (backend, error) {
	if buffer < 1 {
		buffer = 1
	}
	return &notifyBackend{
		// notify drops events when this channel is full
		raw:  make(chan notify.EventInfo, buffer),
		out:  make(chan Notification),
		errs: make(chan error),
		stop: make(chan struct{}),
	}, nil
}

func (b *notifyBackend) subscribe(dir string) error {
	if err := notify.Watch(dir, b.raw, notify.InCloseWrite); err != nil {
		return fmt.Errorf("inotify: %w", err)
	}
	b.group.Add(1)
	go b.forward()
	return nil
}

func (b *notifyBackend) forward() {
	defer b.group.Done()
	for {
		select {
		case ei := <-b.raw:
			n := Notification{Kind: kindOf(ei.Event()), Paths: []string{ei.Path()}}
			select {
			case b.out <- n:
			case <-b.stop:
				return
			}
		case <-b.stop:
			return
		}
	}
}

func kindOf(e notify.Event) Kind {
	switch {
	case e&notify.InCloseWrite != 0:
		return KindCloseWrite
	case e&notify.Create != 0:
		return KindCreate
	case e&notify.Write != 0:
		return KindWrite
	case e&notify.Remove != 0:
		return KindRemove
	case e&notify.Rename != 0:
		return KindRename
	}
	return KindOther
}

func (b *notifyBackend) notifications() <-chan Notification { return b.out }

// errors never delivers: notify reports failures only from Watch.
func (b *notifyBackend) errors() <-chan error { return b.errs }

func (b *notifyBackend) close() error {
	b.once.Do(func() {
		notify.Stop(b.raw)
		close(b.stop)
		b.group.Wait()
	})
	return nil
}
