package watcher

import "errors"

var (
	// ErrRecursiveUnsupported is returned by backends that cannot watch a tree with one handle
	ErrRecursiveUnsupported = errors.New("recursive watch unsupported")

	// ErrDirectoryGone is reported through onError when a watched directory is removed or renamed
	ErrDirectoryGone = errors.New("watched directory removed")

	// ErrBackendClosed is returned once the backend has been shut down
	ErrBackendClosed = errors.New("watch backend closed")
)

// Handle is one native watch registration
type Handle interface {
	Close() error
}

// Backend registers native filesystem watches.
//
// onEvent receives the absolute path of the changed entry. onError receives
// watcher-level failures, including removal of the watched directory itself.
// Callbacks may run concurrently with Close and after it returns; receivers
// must tolerate late calls.
type Backend interface {
	WatchDir(dir string, onEvent func(path string), onError func(err error)) (Handle, error)
	WatchRecursive(root string, onEvent func(path string), onError func(err error)) (Handle, error)
}
