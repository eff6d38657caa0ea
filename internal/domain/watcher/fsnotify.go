package watcher

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/thecatthatflies/melius/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// FSNotifyBackend multiplexes per-directory subscriptions over a single
// fsnotify watcher. Several subscriptions on one directory share one native
// watch, which is dropped when the last subscription closes. Each
// subscription receives its callbacks in order on its own goroutine, so a
// slow callback never holds up the dispatch loop.
type FSNotifyBackend struct {
	logger *zap.Logger

	mu     sync.Mutex
	w      *fsnotify.Watcher
	subs   map[string]map[uint64]*subscription
	nextID uint64
	closed bool

	done chan struct{}
}

// maxPending bounds a subscription's undelivered callbacks; the oldest are
// dropped beyond it.
const maxPending = 1024

type subscription struct {
	id      uint64
	dir     string
	onEvent func(string)
	onError func(error)

	mu      sync.Mutex
	queue   []delivery
	running bool
	stopped bool
}

type delivery struct {
	path string
	err  error
}

// deliver queues d and starts a drainer when none is running
func (s *subscription) deliver(d delivery) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= maxPending {
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, d)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.drain()
}

func (s *subscription) drain() {
	for {
		s.mu.Lock()
		if s.stopped || len(s.queue) == 0 {
			s.queue = nil
			s.running = false
			s.mu.Unlock()
			return
		}
		d := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if d.err != nil {
			s.onError(d.err)
		} else {
			s.onEvent(d.path)
		}
	}
}

func (s *subscription) stop() {
	s.mu.Lock()
	s.stopped = true
	s.queue = nil
	s.mu.Unlock()
}

// NewFSNotifyBackend starts the shared watcher and its dispatch loop
func NewFSNotifyBackend(logger *zap.Logger) (*FSNotifyBackend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	b := &FSNotifyBackend{
		logger: logging.OrNop(logger),
		w:      w,
		subs:   make(map[string]map[uint64]*subscription),
		done:   make(chan struct{}),
	}
	go b.run()
	return b, nil
}

// WatchDir subscribes to direct children of dir
func (b *FSNotifyBackend) WatchDir(dir string, onEvent func(string), onError func(error)) (Handle, error) {
	dir = filepath.Clean(dir)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBackendClosed
	}

	if _, watched := b.subs[dir]; !watched {
		if err := b.w.Add(dir); err != nil {
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		b.subs[dir] = make(map[uint64]*subscription)
	}

	b.nextID++
	sub := &subscription{id: b.nextID, dir: dir, onEvent: onEvent, onError: onError}
	b.subs[dir][sub.id] = sub

	return &fsnotifyHandle{backend: b, sub: sub}, nil
}

// WatchRecursive is not supported by fsnotify
func (b *FSNotifyBackend) WatchRecursive(string, func(string), func(error)) (Handle, error) {
	return nil, ErrRecursiveUnsupported
}

// Close stops the dispatch loop and releases every native watch
func (b *FSNotifyBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for _, sub := range set {
			sub.stop()
		}
	}
	b.subs = make(map[string]map[uint64]*subscription)
	b.mu.Unlock()

	err := b.w.Close()
	<-b.done
	return err
}

func (b *FSNotifyBackend) unsubscribe(sub *subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	set, ok := b.subs[sub.dir]
	if !ok {
		return nil
	}
	if _, ok := set[sub.id]; !ok {
		return nil
	}
	delete(set, sub.id)
	sub.stop()
	if len(set) > 0 {
		return nil
	}

	delete(b.subs, sub.dir)
	if err := b.w.Remove(sub.dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return err
	}
	return nil
}

func (b *FSNotifyBackend) snapshot(dir string) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[dir]
	out := make([]*subscription, 0, len(set))
	for _, sub := range set {
		out = append(out, sub)
	}
	return out
}

func (b *FSNotifyBackend) snapshotAll() []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*subscription
	for _, set := range b.subs {
		for _, sub := range set {
			out = append(out, sub)
		}
	}
	return out
}

func (b *FSNotifyBackend) run() {
	defer close(b.done)

	for {
		select {
		case event, ok := <-b.w.Events:
			if !ok {
				return
			}
			b.dispatch(event)

		case err, ok := <-b.w.Errors:
			if !ok {
				return
			}
			b.logger.Debug("fsnotify error", zap.Error(err))
			for _, sub := range b.snapshotAll() {
				sub.deliver(delivery{err: err})
			}
		}
	}
}

func (b *FSNotifyBackend) dispatch(event fsnotify.Event) {
	name := filepath.Clean(event.Name)

	// The watched directory itself went away.
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if self := b.snapshot(name); len(self) > 0 {
			for _, sub := range self {
				sub.deliver(delivery{err: fmt.Errorf("%s: %w", name, ErrDirectoryGone)})
			}
		}
	}

	for _, sub := range b.snapshot(filepath.Dir(name)) {
		sub.deliver(delivery{path: name})
	}
}

type fsnotifyHandle struct {
	backend *FSNotifyBackend
	sub     *subscription
	once    sync.Once
	err     error
}

func (h *fsnotifyHandle) Close() error {
	h.once.Do(func() {
		h.err = h.backend.unsubscribe(h.sub)
	})
	return h.err
}
