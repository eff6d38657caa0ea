package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/thecatthatflies/melius/internal/infrastructure/logging"
	"github.com/thecatthatflies/melius/internal/infrastructure/monitoring"
	"github.com/thecatthatflies/melius/internal/shared/id"
	"go.uber.org/zap"
)

// ErrClosed is returned by Open after Shutdown
var ErrClosed = errors.New("session manager closed")

// ReleaseFunc frees everything a component holds for one client
type ReleaseFunc func(client id.ClientID)

// Connection is one open UI connection
type Connection struct {
	ID         id.ClientID `json:"client_id"`
	RemoteAddr string      `json:"remote_addr"`
	OpenedAt   time.Time   `json:"opened_at"`

	seq    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Context is cancelled when the connection closes
func (c *Connection) Context() context.Context {
	return c.ctx
}

type hook struct {
	name    string
	release ReleaseFunc
}

// Manager tracks open connections and runs release hooks when they close
type Manager struct {
	mu      sync.RWMutex
	conns   map[id.ClientID]*Connection
	hooks   []hook
	seq     uint64
	closed  bool
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewManager creates a connection manager
func NewManager(logger *zap.Logger, metrics *monitoring.Metrics) *Manager {
	logger = logging.OrNop(logger)
	return &Manager{
		conns:   make(map[id.ClientID]*Connection),
		logger:  logger,
		metrics: metrics,
	}
}

// OnRelease registers a hook run for every closed connection.
// Hooks run in registration order.
func (m *Manager) OnRelease(name string, release ReleaseFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, release: release})
}

// Open registers a new connection with a fresh ClientID
func (m *Manager) Open(parent context.Context, remoteAddr string) (*Connection, error) {
	ctx, cancel := context.WithCancel(parent)
	conn := &Connection{
		ID:         id.NewClientID(),
		RemoteAddr: remoteAddr,
		OpenedAt:   time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	m.seq++
	conn.seq = m.seq
	m.conns[conn.ID] = conn
	m.mu.Unlock()

	m.metrics.IncBridgeConnections()
	m.logger.Info("Connection opened",
		zap.String("client_id", conn.ID.String()),
		zap.String("remote_addr", remoteAddr))
	return conn, nil
}

// Get returns an open connection
func (m *Manager) Get(client id.ClientID) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[client]
	return conn, ok
}

// List returns open connections, oldest first
func (m *Manager) List() []*Connection {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool {
		return conns[i].seq < conns[j].seq
	})
	return conns
}

// Count returns the number of open connections
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Close forgets the connection and releases its resources.
// Closing an unknown or already closed connection returns false.
func (m *Manager) Close(client id.ClientID) bool {
	m.mu.Lock()
	conn, ok := m.conns[client]
	delete(m.conns, client)
	hooks := append([]hook(nil), m.hooks...)
	m.mu.Unlock()

	if !ok {
		return false
	}

	conn.cancel()
	m.release(client, hooks)
	m.metrics.DecBridgeConnections()
	m.logger.Info("Connection closed",
		zap.String("client_id", client.String()),
		zap.Duration("duration", time.Since(conn.OpenedAt)))
	return true
}

// Shutdown closes every connection. Later Opens fail with ErrClosed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	clients := make([]id.ClientID, 0, len(m.conns))
	for client := range m.conns {
		clients = append(clients, client)
	}
	m.mu.Unlock()

	for _, client := range clients {
		m.Close(client)
	}
}

// release runs every hook; a panicking hook is logged and skipped
func (m *Manager) release(client id.ClientID, hooks []hook) {
	for _, h := range hooks {
		if err := runHook(h, client); err != nil {
			m.logger.Warn("Release hook failed",
				zap.String("hook", h.name),
				zap.String("client_id", client.String()),
				zap.Error(err))
		}
	}
}

func runHook(h hook, client id.ClientID) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	h.release(client)
	return nil
}
