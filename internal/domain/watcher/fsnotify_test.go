package watcher

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thecatthatflies/melius/internal/shared/id"
	"github.com/thecatthatflies/melius/internal/shared/paths"
	"go.uber.org/zap/zaptest"
)

func newFSNotify(t *testing.T) *FSNotifyBackend {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("event shapes asserted here are inotify specific")
	}
	backend, err := NewFSNotifyBackend(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestFSNotifyWriteProducesOneChange(t *testing.T) {
	backend := newFSNotify(t)
	root := makeTree(t)
	m, rec := newTestManager(t, backend, testConfig)
	client := id.NewClientID()

	res, err := m.Watch(context.Background(), client, root)
	require.NoError(t, err)
	assert.Equal(t, Result{Watching: true, WorkspacePath: root}, res)

	f, err := os.OpenFile(filepath.Join(root, "a", "b.txt"), os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.WriteString("more")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return len(rec.changed(client)) > 0
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(2 * testConfig.ProbeDelay)

	changed := rec.changed(client)
	require.Len(t, changed, 1)
	assert.True(t, paths.IsWithin(filepath.Join(root, "a"), changed[0]), changed[0])
}

func TestFSNotifyPicksUpNewDirectories(t *testing.T) {
	backend := newFSNotify(t)
	root := makeTree(t)
	m, rec := newTestManager(t, backend, testConfig)
	client := id.NewClientID()

	_, err := m.Watch(context.Background(), client, root)
	require.NoError(t, err)

	fresh := filepath.Join(root, "c", "fresh")
	require.NoError(t, os.Mkdir(fresh, 0o755))

	require.Eventually(t, func() bool {
		for _, dir := range m.WatchedDirectories(client) {
			if dir == fresh {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	// events inside the new directory now flow
	require.NoError(t, os.WriteFile(filepath.Join(fresh, "new.txt"), []byte("x"), 0o644))
	require.Eventually(t, func() bool {
		for _, p := range rec.changed(client) {
			if p == filepath.Join(fresh, "new.txt") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFSNotifyRemovedDirectoryTriggersRebuild(t *testing.T) {
	backend := newFSNotify(t)
	root := makeTree(t)
	m, _ := newTestManager(t, backend, testConfig)
	client := id.NewClientID()

	_, err := m.Watch(context.Background(), client, root)
	require.NoError(t, err)
	require.Len(t, m.WatchedDirectories(client), 4)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "a")))

	require.Eventually(t, func() bool {
		return len(m.WatchedDirectories(client)) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{root, filepath.Join(root, "c")}, m.WatchedDirectories(client))
}

func TestFSNotifySharedDirectoryRefCount(t *testing.T) {
	backend := newFSNotify(t)
	dir := t.TempDir()

	first, err := backend.WatchDir(dir, func(string) {}, func(error) {})
	require.NoError(t, err)
	second, err := backend.WatchDir(dir, func(string) {}, func(error) {})
	require.NoError(t, err)

	require.NoError(t, first.Close())
	require.NoError(t, first.Close())
	assert.Contains(t, backend.w.WatchList(), dir)

	require.NoError(t, second.Close())
	assert.NotContains(t, backend.w.WatchList(), dir)

	_, err = backend.WatchRecursive(dir, func(string) {}, func(error) {})
	assert.ErrorIs(t, err, ErrRecursiveUnsupported)

	require.NoError(t, backend.Close())
	_, err = backend.WatchDir(dir, func(string) {}, func(error) {})
	assert.ErrorIs(t, err, ErrBackendClosed)
}

func TestFSNotifyBlockedSubscriberDoesNotStallOthers(t *testing.T) {
	backend := newFSNotify(t)
	dirA, dirB := t.TempDir(), t.TempDir()

	release := make(chan struct{})
	defer close(release)
	blocked := make(chan struct{}, 1)
	hA, err := backend.WatchDir(dirA, func(string) {
		select {
		case blocked <- struct{}{}:
		default:
		}
		<-release
	}, func(error) {})
	require.NoError(t, err)
	defer hA.Close()

	got := make(chan string, 16)
	hB, err := backend.WatchDir(dirB, func(path string) { got <- path }, func(error) {})
	require.NoError(t, err)
	defer hB.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dirA, "a.txt"), []byte("a"), 0o644))
	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("first subscriber never saw its event")
	}

	require.NoError(t, os.WriteFile(filepath.Join(dirB, "b.txt"), []byte("b"), 0o644))
	select {
	case path := <-got:
		assert.Equal(t, filepath.Join(dirB, "b.txt"), path)
	case <-time.After(2 * time.Second):
		t.Fatal("second subscriber starved by the blocked one")
	}
}
