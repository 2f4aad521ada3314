package files

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("Move")
	require.NoError(t, err)
	assert.Equal(t, ActionMove, a)

	a, err = ParseAction("remove")
	require.NoError(t, err)
	assert.Equal(t, ActionRemove, a)

	_, err = ParseAction("archive")
	assert.Error(t, err)
}

func TestNewDisposer_MoveWithoutDirectory(t *testing.T) {
	_, err := NewDisposer(Policy{Action: ActionMove}, Policy{Action: ActionRemove})
	assert.ErrorIs(t, err, ErrMissingDirectory)

	_, err = NewDisposer(Policy{Action: ActionRemove}, Policy{Action: ActionMove})
	assert.ErrorIs(t, err, ErrMissingDirectory)
}

func TestNewDisposer_MissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	_, err := NewDisposer(Policy{Action: ActionMove, Dir: missing}, Policy{Action: ActionRemove})
	assert.ErrorIs(t, err, ErrDirectoryNotFound)
}

func TestNewDisposer_DirectoryIsAFile(t *testing.T) {
	file := writeFile(t, t.TempDir(), "done", "")
	_, err := NewDisposer(Policy{Action: ActionRemove}, Policy{Action: ActionMove, Dir: file})
	assert.ErrorIs(t, err, ErrDirectoryNotFound)
}

func TestNewDisposer_ReadOnlyDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0755) })

	_, err := NewDisposer(Policy{Action: ActionMove, Dir: dir}, Policy{Action: ActionRemove})
	assert.ErrorIs(t, err, ErrDirectoryNotWritable)
}

func TestNewDisposer_RemoveIgnoresDirectory(t *testing.T) {
	_, err := NewDisposer(Policy{Action: ActionRemove, Dir: "/does/not/matter"}, Policy{Action: ActionRemove})
	assert.NoError(t, err)
}

func TestNewDisposer_UnknownAction(t *testing.T) {
	_, err := NewDisposer(Policy{Action: "archive"}, Policy{Action: ActionRemove})
	assert.Error(t, err)
}

func TestHandleSuccess_Move(t *testing.T) {
	watch, done := t.TempDir(), t.TempDir()
	src := writeFile(t, watch, "a.csv", "id\n1\n")

	d, err := NewDisposer(Policy{Action: ActionMove, Dir: done}, Policy{Action: ActionRemove})
	require.NoError(t, err)

	dest, err := d.HandleSuccess(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(done, "a.csv"), dest)
	assert.NoFileExists(t, src)
	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(content))
}

func TestHandleSuccess_Remove(t *testing.T) {
	src := writeFile(t, t.TempDir(), "a.csv", "x")
	d, err := NewDisposer(Policy{Action: ActionRemove}, Policy{Action: ActionRemove})
	require.NoError(t, err)

	dest, err := d.HandleSuccess(src)
	require.NoError(t, err)
	assert.Empty(t, dest)
	assert.NoFileExists(t, src)
}

func TestHandleError_UsesErrorPolicy(t *testing.T) {
	watch, done, failed := t.TempDir(), t.TempDir(), t.TempDir()
	src := writeFile(t, watch, "b.csv", "broken")

	d, err := NewDisposer(Policy{Action: ActionMove, Dir: done}, Policy{Action: ActionMove, Dir: failed})
	require.NoError(t, err)

	dest, err := d.HandleError(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(failed, "b.csv"), dest)
	assert.FileExists(t, dest)
	assert.NoFileExists(t, filepath.Join(done, "b.csv"))
}

func TestHandleError_RemoveMissingFileReturnsError(t *testing.T) {
	d, err := NewDisposer(Policy{Action: ActionRemove}, Policy{Action: ActionRemove})
	require.NoError(t, err)

	_, err = d.HandleError(filepath.Join(t.TempDir(), "gone.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHandleSuccess_MoveOverwritesExistingFile(t *testing.T) {
	watch, done := t.TempDir(), t.TempDir()
	writeFile(t, done, "a.csv", "old")
	src := writeFile(t, watch, "a.csv", "new")

	d, err := NewDisposer(Policy{Action: ActionMove, Dir: done}, Policy{Action: ActionRemove})
	require.NoError(t, err)

	dest, err := d.HandleSuccess(src)
	require.NoError(t, err)
	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))
}

func TestHandleSuccess_MoveFailsWhenDestinationVanished(t *testing.T) {
	watch := t.TempDir()
	done := filepath.Join(t.TempDir(), "done")
	require.NoError(t, os.Mkdir(done, 0755))
	src := writeFile(t, watch, "a.csv", "x")

	d, err := NewDisposer(Policy{Action: ActionMove, Dir: done}, Policy{Action: ActionRemove})
	require.NoError(t, err)
	require.NoError(t, os.Remove(done))

	_, err = d.HandleSuccess(src)
	assert.Error(t, err)
	assert.FileExists(t, src)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "a.csv", "a,b\n1,2\n")
	dst := filepath.Join(dir, "copy.csv")

	require.NoError(t, copyFile(src, dst))
	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(content))
	assert.FileExists(t, src)
}
