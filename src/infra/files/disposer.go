package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

var (
	ErrMissingDirectory     = errors.New("move action requires a directory")
	ErrDirectoryNotFound    = errors.New("directory does not exist")
	ErrDirectoryNotWritable = errors.New("directory is not writable")
)

// Action is what happens to a file once it was processed.
type Action string

const (
	ActionRemove Action = "remove"
	ActionMove   Action = "move"
)

// ParseAction parses a configured action name, ignoring case.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(s)) {
	case ActionRemove:
		return ActionRemove, nil
	case ActionMove:
		return ActionMove, nil
	}
	return "", fmt.Errorf("unknown file action %q", s)
}

// Policy pairs an action with its destination directory. Dir is only used by ActionMove.
type Policy struct {
	Action Action
	Dir    string
}

// Disposer removes or relocates processed files according to a policy per outcome.
// It implements ingesting.Disposer.
type Disposer struct {
	success Policy
	failure Policy
}

// NewDisposer validates every move destination once. Destinations are not
// checked again for the lifetime of the Disposer.
func NewDisposer(success, failure Policy) (*Disposer, error) {
	for _, p := range []Policy{success, failure} {
		switch p.Action {
		case ActionRemove:
		case ActionMove:
			if err := validateDirectory(p.Dir); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown file action %q", p.Action)
		}
	}
	return &Disposer{success: success, failure: failure}, nil
}

// HandleSuccess applies the success policy to path.
func (d *Disposer) HandleSuccess(path string) (string, error) {
	return apply(d.success, path)
}

// HandleError applies the error policy to path.
func (d *Disposer) HandleError(path string) (string, error) {
	return apply(d.failure, path)
}

func apply(p Policy, path string) (string, error) {
	if p.Action == ActionMove {
		return moveFile(path, p.Dir)
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("failed to remove file: %w", err)
	}
	return "", nil
}

func validateDirectory(dir string) error {
	if dir == "" {
		return ErrMissingDirectory
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
	}
	if !writable(dir, info) {
		return fmt.Errorf("%w: %s", ErrDirectoryNotWritable, dir)
	}
	return nil
}

// moveFile relocates src into destDir keeping its name. An existing file with
// the same name is overwritten.
func moveFile(src, destDir string) (string, error) {
	dest := filepath.Join(destDir, filepath.Base(src))
	err := os.Rename(src, dest)
	if err == nil {
		return dest, nil
	}
	if !isCrossDeviceError(err) {
		return "", fmt.Errorf("failed to move file: %w", err)
	}

	if err := copyFile(src, dest); err != nil {
		return "", fmt.Errorf("failed to copy file across devices: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return "", fmt.Errorf("failed to remove original file after copy: %w", err)
	}
	return dest, nil
}

// isCrossDeviceError checks if an error is due to cross-device link (moving across filesystems)
func isCrossDeviceError(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return err
	}

	destination, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return err
	}
	return destination.Close()
}
