package watcher

import (
	"errors"
	"path/filepath"
	"sort"
	"sync"

	"github.com/thecatthatflies/melius/internal/shared/id"
	"github.com/thecatthatflies/melius/internal/shared/types"
)

type fakeHandle struct {
	b         *fakeBackend
	path      string
	recursive bool
	onEvent   func(string)
	onError   func(error)
	closed    bool
}

func (h *fakeHandle) Close() error {
	h.b.mu.Lock()
	defer h.b.mu.Unlock()
	if !h.closed {
		h.closed = true
		h.b.closedCount++
	}
	return nil
}

// fakeBackend records registrations and lets tests inject events and errors
type fakeBackend struct {
	mu             sync.Mutex
	supportsRec    bool
	failDirs       map[string]bool
	handles        []*fakeHandle
	dirCalls       int
	recursiveCalls int
	closedCount    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{failDirs: make(map[string]bool)}
}

func (b *fakeBackend) WatchDir(dir string, onEvent func(string), onError func(error)) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirCalls++
	if b.failDirs[filepath.Clean(dir)] {
		return nil, errors.New("permission denied")
	}
	h := &fakeHandle{b: b, path: dir, onEvent: onEvent, onError: onError}
	b.handles = append(b.handles, h)
	return h, nil
}

func (b *fakeBackend) WatchRecursive(root string, onEvent func(string), onError func(error)) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recursiveCalls++
	if !b.supportsRec {
		return nil, ErrRecursiveUnsupported
	}
	h := &fakeHandle{b: b, path: root, recursive: true, onEvent: onEvent, onError: onError}
	b.handles = append(b.handles, h)
	return h, nil
}

func (b *fakeBackend) open() []*fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*fakeHandle
	for _, h := range b.handles {
		if !h.closed {
			out = append(out, h)
		}
	}
	return out
}

func (b *fakeBackend) openPaths() []string {
	var out []string
	for _, h := range b.open() {
		out = append(out, h.path)
	}
	sort.Strings(out)
	return out
}

func (b *fakeBackend) handleFor(path string) *fakeHandle {
	for _, h := range b.open() {
		if h.path == path {
			return h
		}
	}
	return nil
}

func (b *fakeBackend) calls() (dir, recursive int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirCalls, b.recursiveCalls
}

// recorder is an in-memory EventSink
type recorder struct {
	mu     sync.Mutex
	events map[id.ClientID][]types.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(map[id.ClientID][]types.Event)}
}

func (r *recorder) Publish(client id.ClientID, event types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[client] = append(r.events[client], event)
}

func (r *recorder) changed(client id.ClientID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events[client] {
		if p, ok := e.Payload.(types.WorkspaceChanged); ok {
			out = append(out, p.Path)
		}
	}
	return out
}
