package watcher

// Kind classifies a raw filesystem notification
type Kind string

const (
	KindCloseWrite Kind = "close_write"
	KindCreate     Kind = "create"
	KindWrite      Kind = "write"
	KindRemove     Kind = "remove"
	KindRename     Kind = "rename"
	KindOther      Kind = "other"
)

// Notification is a filesystem change reported by a backend
type Notification struct {
	Kind  Kind
	Paths []string
}

// backend subscribes to one directory and reports its changes.
type backend interface {
	// subscribe starts a non-recursive watch on dir.
	subscribe(dir string) error
	notifications() <-chan Notification
	errors() <-chan error
	close() error
}

const (
	BackendAuto     = "auto"
	BackendInotify  = "inotify"
	BackendFsnotify = "fsnotify"
)
