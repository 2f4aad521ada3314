//go:build !linux

package watcher

import "errors"

const inotifySupported = false

func newNotifyBackend(int) (backend, error) {
	return nil, errors.New("the inotify watcher backend is only available on linux")
}
