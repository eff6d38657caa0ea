package watcher

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/thecatthatflies/melius/internal/infrastructure/config"
	"github.com/thecatthatflies/melius/internal/infrastructure/monitoring"
	"github.com/thecatthatflies/melius/internal/shared/id"
	"github.com/thecatthatflies/melius/internal/shared/paths"
	"github.com/thecatthatflies/melius/internal/shared/types"
	"go.uber.org/zap"
)

// ErrClosed is returned by Watch after Close
var ErrClosed = errors.New("watcher manager closed")

// Config tunes debounce windows and strategy selection
type Config struct {
	ProbeDelay   time.Duration
	RebuildDelay time.Duration
	Recursive    bool
}

// DefaultConfig returns the standard debounce windows
func DefaultConfig() Config {
	return Config{
		ProbeDelay:   140 * time.Millisecond,
		RebuildDelay: 500 * time.Millisecond,
		Recursive:    RecursiveSupported(runtime.GOOS),
	}
}

// ConfigFrom maps application configuration onto watcher settings
func ConfigFrom(cfg config.WatcherConfig) Config {
	c := Config{ProbeDelay: cfg.ProbeDelay, RebuildDelay: cfg.RebuildDelay}
	switch cfg.Recursive {
	case config.RecursiveOn:
		c.Recursive = true
	case config.RecursiveOff:
		c.Recursive = false
	default:
		c.Recursive = RecursiveSupported(runtime.GOOS)
	}
	return c
}

// RecursiveSupported reports whether native recursive watching is worth
// attempting on goos
func RecursiveSupported(goos string) bool {
	return goos == "darwin" || goos == "windows"
}

// Result is returned by Watch
type Result struct {
	Watching      bool   `json:"watching"`
	WorkspacePath string `json:"workspacePath,omitempty"`
}

// Manager owns at most one watch state per client
type Manager struct {
	backend Backend
	sink    types.EventSink
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu     sync.Mutex
	states map[id.ClientID]*watchState
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a watch manager. sink receives workspace:changed events.
func NewManager(backend Backend, sink types.EventSink, cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = types.DiscardSink
	}
	if cfg.ProbeDelay <= 0 {
		cfg.ProbeDelay = DefaultConfig().ProbeDelay
	}
	if cfg.RebuildDelay <= 0 {
		cfg.RebuildDelay = DefaultConfig().RebuildDelay
	}
	return &Manager{
		backend: backend,
		sink:    sink,
		cfg:     cfg,
		logger:  logger.Named("watcher"),
		metrics: metrics,
		states:  make(map[id.ClientID]*watchState),
	}
}

// Watch replaces the client's watch with one rooted at path. An empty path
// only tears down the previous watch. The initial scan completes before
// Watch returns; per-directory failures skip that subtree.
func (m *Manager) Watch(ctx context.Context, client id.ClientID, path string) (Result, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		m.Unwatch(client)
		return Result{Watching: false}, nil
	}

	state := newWatchState(m, client, paths.Normalize(trimmed))

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Result{}, ErrClosed
	}
	previous := m.states[client]
	m.states[client] = state
	count := len(m.states)
	m.mu.Unlock()

	if previous != nil {
		previous.close()
	}
	m.metrics.SetWatchStates(count)

	if !m.cfg.Recursive || !state.startRecursive() {
		m.track(func() { state.scan(state.root) })
	}

	st := state.stats()
	m.logger.Info("watching workspace",
		zap.String("client_id", client.String()),
		zap.String("root", state.root),
		zap.Stringer("mode", st.Mode),
		zap.Int("directories", len(st.Watched)),
	)

	if err := ctx.Err(); err != nil {
		m.Unwatch(client)
		return Result{}, err
	}
	return Result{Watching: true, WorkspacePath: trimmed}, nil
}

// Unwatch tears down the client's watch. Calling it without an active watch is a no-op.
func (m *Manager) Unwatch(client id.ClientID) {
	m.mu.Lock()
	state := m.states[client]
	delete(m.states, client)
	count := len(m.states)
	m.mu.Unlock()

	if state == nil {
		return
	}
	state.close()
	m.metrics.SetWatchStates(count)
	m.logger.Debug("workspace watch stopped", zap.String("client_id", client.String()))
}

// ReleaseClient drops every resource owned by client
func (m *Manager) ReleaseClient(client id.ClientID) {
	m.Unwatch(client)
}

// Close tears down every watch and waits for in-flight probes and rebuilds
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	states := m.states
	m.states = make(map[id.ClientID]*watchState)
	m.mu.Unlock()

	for _, state := range states {
		state.close()
	}
	m.wg.Wait()
	m.metrics.SetWatchStates(0)
}

// track runs fn unless the manager is closed; Close waits for it
func (m *Manager) track(fn func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	defer m.wg.Done()
	fn()
}

func (m *Manager) state(client id.ClientID) *watchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[client]
}

// Active reports whether client has a live watch
func (m *Manager) Active(client id.ClientID) bool {
	return m.state(client) != nil
}

// WatchedDirectories lists the per-directory handles held for client
func (m *Manager) WatchedDirectories(client id.ClientID) []string {
	state := m.state(client)
	if state == nil {
		return nil
	}
	return state.stats().Watched
}
