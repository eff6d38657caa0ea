package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/thecatthatflies/melius/internal/domain/session"
	"github.com/thecatthatflies/melius/internal/infrastructure/config"
	"github.com/thecatthatflies/melius/internal/infrastructure/logging"
	"github.com/thecatthatflies/melius/internal/infrastructure/monitoring"
	"github.com/thecatthatflies/melius/internal/infrastructure/tracing"
	"github.com/thecatthatflies/melius/internal/shared/id"
	"github.com/thecatthatflies/melius/internal/shared/types"
	"github.com/thecatthatflies/melius/internal/shared/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrRateLimited is reported for requests over the per-connection limit
var ErrRateLimited = errors.New("rate limit exceeded")

// Executor runs bridge operations
type Executor interface {
	Execute(ctx context.Context, toolID string, params map[string]interface{}, appCtx *types.Context) (*types.Result, error)
	Tool(toolID string) (types.Tool, bool)
}

// Config holds per-connection limits
type Config struct {
	RequestsPerSecond int
	Burst             int
	MaxMessageSize    int
	AllowOrigins      []string
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	SendBuffer        int
}

// DefaultConfig returns the standard bridge limits
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 200,
		Burst:             400,
		MaxMessageSize:    utils.MaxMessageSize,
		AllowOrigins:      []string{"*"},
		WriteTimeout:      10 * time.Second,
		PingInterval:      30 * time.Second,
		SendBuffer:        256,
	}
}

// ConfigFrom maps application configuration onto bridge limits
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg.Bridge.RequestsPerSecond > 0 {
		c.RequestsPerSecond = cfg.Bridge.RequestsPerSecond
	}
	if cfg.Bridge.Burst > 0 {
		c.Burst = cfg.Bridge.Burst
	}
	if cfg.Bridge.MaxMessageSize > 0 {
		c.MaxMessageSize = cfg.Bridge.MaxMessageSize
	}
	if len(cfg.Server.AllowOrigins) > 0 {
		c.AllowOrigins = cfg.Server.AllowOrigins
	}
	return c
}

// Handler accepts bridge connections and routes events to them.
// It implements types.EventSink.
type Handler struct {
	exec     Executor
	sessions *session.Manager
	tracer   *tracing.Tracer
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	cfg      Config
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[id.ClientID]*conn
}

// NewHandler creates a bridge handler. tracer and metrics may be nil.
func NewHandler(exec Executor, sessions *session.Manager, cfg Config, logger *zap.Logger, tracer *tracing.Tracer, metrics *monitoring.Metrics) *Handler {
	logger = logging.OrNop(logger)
	h := &Handler{
		exec:     exec,
		sessions: sessions,
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		conns:    make(map[id.ClientID]*conn),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleConnection serves GET /bridge
func (h *Handler) HandleConnection(c *gin.Context) {
	h.ServeHTTP(c.Writer, c.Request)
}

// ServeHTTP upgrades the request and serves it until the peer goes away
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	sess, err := h.sessions.Open(r.Context(), r.RemoteAddr)
	if err != nil {
		deadline := time.Now().Add(time.Second)
		_ = wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), deadline)
		_ = wsConn.Close()
		return
	}

	c := &conn{
		id:      sess.ID,
		ws:      wsConn,
		send:    make(chan []byte, h.cfg.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.RequestsPerSecond), h.cfg.Burst),
		h:       h,
	}
	h.register(c)
	go c.writePump()

	ctx, cancel := context.WithCancel(sess.Context())
	defer cancel()

	c.enqueue(types.Event{Name: types.EventBridgeHello, Payload: Hello{ClientID: c.id.String()}})
	c.readPump(ctx)

	// In-flight operations see a cancelled context and finish before the
	// release hooks run, so nothing they create outlives the client.
	cancel()
	h.unregister(c)
	c.shutdown()
	c.inflight.Wait()
	h.sessions.Close(c.id)
}

// Publish delivers an event to one connection without blocking. Unknown
// clients are ignored. A connection whose send buffer is full is dropped
// so that shared event sources never wait on one slow peer.
func (h *Handler) Publish(client id.ClientID, event types.Event) {
	h.mu.RLock()
	c := h.conns[client]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	c.publish(event)
}

// Close drops every connection. Their read loops then release resources.
func (h *Handler) Close() {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		_ = c.ws.Close()
	}
}

// Count returns the number of live connections
func (h *Handler) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Handler) register(c *conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

func (h *Handler) unregister(c *conn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
}

// dispatch runs one request and answers it when respond is set
func (h *Handler) dispatch(ctx context.Context, c *conn, req Request, respond bool) {
	var span *tracing.Span
	if h.tracer != nil {
		span, ctx = h.tracer.StartSpan(ctx, req.Op)
		span.ClientID = c.id
	}
	timer := monitoring.NewTimer(h.metrics, req.Op)

	appCtx := &types.Context{ClientID: c.id, RequestID: id.NewRequestID()}
	result, err := h.exec.Execute(ctx, req.Op, paramsMap(req.Params), appCtx)

	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case result != nil && !result.Success:
		status = "failed"
	}
	timer.Stop(status)
	if span != nil {
		span.SetTag("request_id", appCtx.RequestID.String())
		span.SetTag("status", status)
		span.SetError(err)
		span.Finish()
		h.tracer.Submit(span)
	}

	if !respond {
		if err != nil {
			h.logger.Debug("Unanswered operation failed",
				zap.String("client_id", c.id.String()),
				zap.String("op", req.Op),
				zap.Error(err))
		}
		return
	}
	if err != nil {
		c.enqueue(errorFrame(req.ID, err))
		return
	}
	c.enqueue(successFrame(req.ID, result))
}

type conn struct {
	id      id.ClientID
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	h       *Handler

	inflight sync.WaitGroup
}

// enqueue encodes v and queues it for the writer. It blocks while the
// buffer is full and gives up once the connection is shut down.
func (c *conn) enqueue(v interface{}) {
	data, kind, ok := c.encode(v)
	if !ok {
		return
	}

	select {
	case c.send <- data:
		c.h.metrics.RecordBridgeMessage("out", kind)
	case <-c.done:
	}
}

// publish queues an event or, when the buffer is full, shuts the
// connection down. The write pump then closes the socket.
func (c *conn) publish(event types.Event) {
	data, kind, ok := c.encode(event)
	if !ok {
		return
	}

	select {
	case c.send <- data:
		c.h.metrics.RecordBridgeMessage("out", kind)
	case <-c.done:
	default:
		c.h.metrics.RecordBridgeMessage("out", "dropped")
		c.h.logger.Warn("Bridge send buffer full, dropping connection",
			zap.String("client_id", c.id.String()),
			zap.String("event", event.Name))
		c.shutdown()
	}
}

func (c *conn) encode(v interface{}) ([]byte, string, bool) {
	data, err := sonic.Marshal(v)
	if err != nil {
		c.h.logger.Error("Failed to encode bridge frame", zap.String("client_id", c.id.String()), zap.Error(err))
		return nil, "", false
	}

	kind := "response"
	if e, ok := v.(types.Event); ok {
		kind = e.Name
	}
	return data, kind, true
}

func (c *conn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

func (c *conn) readPump(ctx context.Context) {
	if c.h.cfg.MaxMessageSize > 0 {
		c.ws.SetReadLimit(int64(c.h.cfg.MaxMessageSize))
	}
	logger := c.h.logger.With(zap.String("client_id", c.id.String()))

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Bridge read ended", zap.Error(err))
			}
			return
		}

		req, err := decodeRequest(data)
		if err != nil {
			c.h.metrics.RecordBridgeMessage("in", "invalid")
			c.enqueue(ErrorResponse{Error: "invalid frame: " + err.Error()})
			continue
		}
		c.h.metrics.RecordBridgeMessage("in", "request")

		if !c.limiter.Allow() {
			if req.ID != nil {
				c.enqueue(errorFrame(req.ID, ErrRateLimited))
			}
			continue
		}
		if err := utils.ValidateOperation(req.Op); err != nil {
			if req.ID != nil {
				c.enqueue(errorFrame(req.ID, err))
			}
			continue
		}

		tool, known := c.h.exec.Tool(req.Op)
		if known && tool.FireAndForget {
			// Inline so input to one session keeps its order.
			c.h.dispatch(ctx, c, req, false)
			continue
		}

		c.inflight.Add(1)
		go func(req Request) {
			defer c.inflight.Done()
			c.h.dispatch(ctx, c, req, req.ID != nil)
		}(req)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.h.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.h.logger.Debug("Bridge write failed", zap.String("client_id", c.id.String()), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.h.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
