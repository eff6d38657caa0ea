package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/thecatthatflies/melius/internal/shared/id"
	"github.com/thecatthatflies/melius/internal/shared/paths"
	"github.com/thecatthatflies/melius/internal/shared/types"
	"go.uber.org/zap"
)

// mode is the watch strategy of one state. The only transition is
// modeRecursive -> modeManual.
type mode int

const (
	modeManual mode = iota
	modeRecursive
)

func (m mode) String() string {
	if m == modeRecursive {
		return "recursive"
	}
	return "manual"
}

// watchState tracks one client's workspace root
type watchState struct {
	m      *Manager
	client id.ClientID
	root   string
	logger *zap.Logger

	mu        sync.Mutex
	closed    bool
	mode      mode
	recursive Handle
	watchers  map[string]Handle

	probeTimer   *time.Timer
	pending      map[string]struct{}
	rebuildTimer *time.Timer
	rebuildGen   uint64
}

func newWatchState(m *Manager, client id.ClientID, root string) *watchState {
	return &watchState{
		m:        m,
		client:   client,
		root:     root,
		logger:   m.logger.With(zap.String("client_id", client.String()), zap.String("root", root)),
		watchers: make(map[string]Handle),
		pending:  make(map[string]struct{}),
	}
}

func (s *watchState) emit(path string) {
	s.m.sink.Publish(s.client, types.Event{
		Name:    types.EventWorkspaceChanged,
		Payload: types.WorkspaceChanged{Path: path},
	})
	s.m.metrics.IncWorkspaceChanges()
}

// startRecursive tries a single native watch over the whole tree
func (s *watchState) startRecursive() bool {
	h, err := s.m.backend.WatchRecursive(s.root,
		func(path string) {
			if path == "" {
				path = s.root
			}
			if s.isClosed() {
				return
			}
			s.emit(path)
		},
		func(err error) {
			s.downgrade(err)
		},
	)
	if err != nil {
		s.logger.Debug("recursive watch unavailable", zap.Error(err))
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.closeHandle(h)
		return true
	}
	s.mode = modeRecursive
	s.recursive = h
	s.mu.Unlock()
	return true
}

// downgrade drops the recursive watch and falls back to manual fan-out for
// the rest of this state's life
func (s *watchState) downgrade(cause error) {
	s.mu.Lock()
	if s.closed || s.mode != modeRecursive {
		s.mu.Unlock()
		return
	}
	s.mode = modeManual
	h := s.recursive
	s.recursive = nil
	s.mu.Unlock()

	s.logger.Info("recursive watch failed, switching to manual", zap.Error(cause))
	s.m.metrics.IncWatcherDowngrades()
	s.closeHandle(h)

	go s.m.track(func() { s.scan(s.root) })
}

// scan watches every directory under start, depth-first with an explicit stack
func (s *watchState) scan(start string) int {
	start = paths.Normalize(start)
	if start == "" || !paths.IsWithin(s.root, start) {
		return 0
	}

	added := 0
	stack := []string{start}
	for len(stack) > 0 {
		if !s.manualActive() {
			return added
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !paths.IsWithin(s.root, dir) || s.hasWatcher(dir) {
			continue
		}
		if !s.addWatcher(dir) {
			continue
		}
		added++

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.Type()&fs.ModeSymlink != 0 || !entry.IsDir() {
				continue
			}
			stack = append(stack, filepath.Join(dir, entry.Name()))
		}
	}
	return added
}

func (s *watchState) addWatcher(dir string) bool {
	h, err := s.m.backend.WatchDir(dir,
		func(path string) { s.onDirEvent(dir, path) },
		func(err error) { s.onDirError(dir, err) },
	)
	if err != nil {
		s.logger.Debug("skip directory", zap.String("dir", dir), zap.Error(err))
		return false
	}

	s.mu.Lock()
	if s.closed || s.mode != modeManual {
		s.mu.Unlock()
		s.closeHandle(h)
		return false
	}
	if _, exists := s.watchers[dir]; exists {
		s.mu.Unlock()
		s.closeHandle(h)
		return false
	}
	s.watchers[dir] = h
	s.mu.Unlock()

	s.m.metrics.AddWatchHandles(1)
	return true
}

func (s *watchState) onDirEvent(dir, path string) {
	if path == "" {
		path = dir
	}
	if s.isClosed() {
		return
	}
	s.emit(path)
	s.queueProbe(path)
}

func (s *watchState) onDirError(dir string, err error) {
	s.logger.Debug("directory watch error", zap.String("dir", dir), zap.Error(err))
	s.scheduleRebuild()
}

// queueProbe records path and arms the probe timer if none is pending.
// Later paths join the pending batch without pushing the deadline back.
func (s *watchState) queueProbe(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.mode != modeManual || path == "" {
		return
	}
	s.pending[path] = struct{}{}
	if s.probeTimer != nil {
		return
	}
	s.probeTimer = time.AfterFunc(s.m.cfg.ProbeDelay, func() {
		s.m.track(s.runProbe)
	})
}

func (s *watchState) runProbe() {
	s.mu.Lock()
	s.probeTimer = nil
	if s.closed || s.mode != modeManual {
		clear(s.pending)
		s.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(s.pending))
	for path := range s.pending {
		batch = append(batch, path)
	}
	clear(s.pending)
	s.mu.Unlock()

	merged := 0
	for _, path := range batch {
		if !paths.IsWithin(s.root, path) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			continue
		}
		merged += s.scan(path)
	}
	s.m.metrics.AddWatcherProbeMerges(merged)
}

// scheduleRebuild arms the rebuild timer, replacing any pending one
func (s *watchState) scheduleRebuild() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.mode != modeManual {
		return
	}
	if s.rebuildTimer != nil {
		s.rebuildTimer.Stop()
	}
	s.rebuildGen++
	gen := s.rebuildGen
	s.rebuildTimer = time.AfterFunc(s.m.cfg.RebuildDelay, func() {
		s.m.track(func() { s.runRebuild(gen) })
	})
}

func (s *watchState) runRebuild(gen uint64) {
	s.mu.Lock()
	if gen != s.rebuildGen {
		s.mu.Unlock()
		return
	}
	s.rebuildTimer = nil
	if s.closed || s.mode != modeManual {
		s.mu.Unlock()
		return
	}
	old := s.watchers
	s.watchers = make(map[string]Handle)
	s.mu.Unlock()

	for _, h := range old {
		s.closeHandle(h)
	}
	s.m.metrics.AddWatchHandles(-len(old))
	s.m.metrics.IncWatcherRebuilds()

	s.logger.Debug("rebuilding workspace watch", zap.Int("closed", len(old)))
	s.scan(s.root)
}

// close releases every handle and timer. Safe to call more than once.
func (s *watchState) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.probeTimer != nil {
		s.probeTimer.Stop()
		s.probeTimer = nil
	}
	if s.rebuildTimer != nil {
		s.rebuildTimer.Stop()
		s.rebuildTimer = nil
	}
	clear(s.pending)
	handles := s.watchers
	s.watchers = make(map[string]Handle)
	recursive := s.recursive
	s.recursive = nil
	s.mu.Unlock()

	if recursive != nil {
		s.closeHandle(recursive)
	}
	for _, h := range handles {
		s.closeHandle(h)
	}
	s.m.metrics.AddWatchHandles(-len(handles))
}

func (s *watchState) closeHandle(h Handle) {
	if err := h.Close(); err != nil {
		s.logger.Warn("failed to close watch handle", zap.Error(err))
	}
}

func (s *watchState) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *watchState) manualActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.mode == modeManual
}

func (s *watchState) hasWatcher(dir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watchers[dir]
	return ok
}

// stats is a point-in-time view for tests and diagnostics
type stats struct {
	Mode    mode
	Watched []string
	Pending int
	Timers  int
	Closed  bool
}

func (s *watchState) stats() stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := stats{Mode: s.mode, Pending: len(s.pending), Closed: s.closed}
	for dir := range s.watchers {
		st.Watched = append(st.Watched, dir)
	}
	if s.probeTimer != nil {
		st.Timers++
	}
	if s.rebuildTimer != nil {
		st.Timers++
	}
	return st
}
