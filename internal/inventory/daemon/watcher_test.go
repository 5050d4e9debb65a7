package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStartedWatcher(t *testing.T, dir string) *FileWatcher {
	t.Helper()
	fw, err := NewFileWatcher()
	require.NoError(t, err)
	require.NoError(t, fw.Start(dir))
	t.Cleanup(func() { _ = fw.Stop() })
	return fw
}

func expectEvent(t *testing.T, fw *FileWatcher) FileEvent {
	t.Helper()
	select {
	case ev := <-fw.Events():
		return ev
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for event")
		return FileEvent{}
	}
}

func expectNoEvent(t *testing.T, fw *FileWatcher) {
	t.Helper()
	select {
	case ev := <-fw.Events():
		require.FailNow(t, "unexpected event", "%+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileWatcher_StartStop(t *testing.T) {
	fw, err := NewFileWatcher()
	require.NoError(t, err)
	assert.False(t, fw.IsRunning(), "newly created watcher should not be running")

	require.NoError(t, fw.Start(t.TempDir()))
	assert.True(t, fw.IsRunning())
	assert.Error(t, fw.Start(t.TempDir()), "second Start() should fail")

	require.NoError(t, fw.Stop())
	assert.False(t, fw.IsRunning())
}

func TestFileWatcher_MissingDir(t *testing.T) {
	fw, err := NewFileWatcher()
	require.NoError(t, err)
	defer fw.Stop()

	assert.Error(t, fw.Start(filepath.Join(t.TempDir(), "missing")))
}

func TestFileWatcher_CreateAndModify(t *testing.T) {
	dir := t.TempDir()
	fw := newStartedWatcher(t, dir)

	path := filepath.Join(dir, "Sheet1.csv")
	writeFile(t, path, "a\n")
	ev := expectEvent(t, fw)
	assert.Equal(t, "Sheet1", ev.Tab)
	assert.Contains(t, []EventOp{OpCreate, OpModify}, ev.Op)

	writeFile(t, path, "b\n")
	ev = expectEvent(t, fw)
	assert.Equal(t, OpModify, ev.Op)
}

func TestFileWatcher_IgnoresUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Sheet1.csv")
	writeFile(t, path, "a\n")
	fw := newStartedWatcher(t, dir)

	// Replacing the file with identical bytes is not a change.
	tmp := filepath.Join(dir, ".Sheet1.csv.tmp")
	writeFile(t, tmp, "a\n")
	require.NoError(t, os.Rename(tmp, path))
	expectNoEvent(t, fw)
}

func TestFileWatcher_SnapshotAbsorbsOwnWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Sheet1.csv")
	writeFile(t, path, "a\n")
	fw := newStartedWatcher(t, dir)

	// Simulate a sync writing back, then re-baselining before the
	// event is processed.
	fw.mu.Lock()
	err := os.WriteFile(path, []byte("b\n"), 0o644)
	fw.snapshotLocked()
	fw.mu.Unlock()
	require.NoError(t, err)

	expectNoEvent(t, fw)
}

func TestFileWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	fw := newStartedWatcher(t, dir)

	for _, name := range []string{"notes.txt", ".Sheet1.csv.123", "Sheet1.csv.bak"} {
		writeFile(t, filepath.Join(dir, name), "x")
	}
	expectNoEvent(t, fw)
}

func TestFileWatcher_Delete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Sheet1.csv")
	writeFile(t, path, "a\n")
	fw := newStartedWatcher(t, dir)

	require.NoError(t, os.Remove(path))
	ev := expectEvent(t, fw)
	assert.Equal(t, OpDelete, ev.Op)
}

func TestEventOp_String(t *testing.T) {
	tests := map[EventOp]string{
		OpCreate:    "create",
		OpModify:    "modify",
		OpDelete:    "delete",
		EventOp(42): "unknown",
	}
	for op, want := range tests {
		assert.Equal(t, want, op.String(), "op %d", op)
	}
}
