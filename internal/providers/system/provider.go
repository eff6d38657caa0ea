package system

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/thecatthatflies/melius/internal/infrastructure/logging"
	"github.com/thecatthatflies/melius/internal/shared/types"
	"github.com/thecatthatflies/melius/internal/shared/utils"
	"go.uber.org/zap"
)

// Provider implements the "app" operations: process info and UI log relay
type Provider struct {
	startTime time.Time
	logs      *CircularLogBuffer
	getwd     func() (string, error)
	logger    *zap.Logger
}

// CircularLogBuffer is a thread-safe circular buffer for log entries
type CircularLogBuffer struct {
	entries []*LogEntry
	head    int
	size    int
	maxSize int
	mu      sync.RWMutex
}

// LogEntry is one message relayed from the UI
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	ClientID  string    `json:"client_id,omitempty"`
}

// NewProvider creates the app provider. UI log messages are also written to logger.
func NewProvider(logger *zap.Logger) *Provider {
	logger = logging.OrNop(logger)
	return &Provider{
		startTime: time.Now(),
		logs:      NewCircularLogBuffer(1000),
		getwd:     os.Getwd,
		logger:    logger,
	}
}

// NewCircularLogBuffer creates a new circular buffer for logs
func NewCircularLogBuffer(maxSize int) *CircularLogBuffer {
	return &CircularLogBuffer{
		entries: make([]*LogEntry, maxSize),
		maxSize: maxSize,
	}
}

// Add inserts a log entry into the circular buffer
func (cb *CircularLogBuffer) Add(entry *LogEntry) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.entries[cb.head] = entry
	cb.head = (cb.head + 1) % cb.maxSize
	if cb.size < cb.maxSize {
		cb.size++
	}
}

// GetRecent returns up to limit entries, newest first, optionally filtered
// by level and client
func (cb *CircularLogBuffer) GetRecent(limit int, levelFilter, clientFilter string) []LogEntry {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if limit > cb.size {
		limit = cb.size
	}

	result := make([]LogEntry, 0, limit)
	for i := 0; i < cb.size && len(result) < limit; i++ {
		idx := (cb.head - 1 - i + cb.maxSize) % cb.maxSize
		entry := cb.entries[idx]
		if entry == nil {
			continue
		}
		if levelFilter != "" && entry.Level != levelFilter {
			continue
		}
		if clientFilter != "" && entry.ClientID != clientFilter {
			continue
		}
		result = append(result, *entry)
	}
	return result
}

// Definition returns service metadata
func (s *Provider) Definition() types.Service {
	return types.Service{
		ID:           "app",
		Name:         "App Service",
		Description:  "Host process information and UI log relay",
		Category:     types.CategorySystem,
		Capabilities: []string{"cwd", "info", "logging"},
		Tools: []types.Tool{
			{
				ID:          "app.getCwd",
				Name:        "Working Directory",
				Description: "Host process working directory, used as the initial workspace",
				Parameters:  []types.Parameter{},
				Returns:     "string",
			},
			{
				ID:          "app.info",
				Name:        "Host Info",
				Description: "Runtime and platform information",
				Parameters:  []types.Parameter{},
				Returns:     "object",
			},
			{
				ID:          "app.log",
				Name:        "Log Message",
				Description: "Relay a UI log message into the host log",
				Parameters: []types.Parameter{
					{Name: "message", Type: "string", Description: "Log message", Required: true},
					{Name: "level", Type: "string", Description: "debug, info, warn or error", Required: false},
				},
				Returns: "boolean",
			},
			{
				ID:          "app.getLogs",
				Name:        "Get Logs",
				Description: "Recent relayed UI log messages of this connection",
				Parameters: []types.Parameter{
					{Name: "limit", Type: "number", Description: "Number of entries (default 100)", Required: false},
					{Name: "level", Type: "string", Description: "Filter by level", Required: false},
				},
				Returns: "array",
			},
			{
				ID:          "app.ping",
				Name:        "Ping",
				Description: "Test bridge availability",
				Parameters:  []types.Parameter{},
				Returns:     "object",
			},
		},
	}
}

// Execute runs an app operation
func (s *Provider) Execute(_ context.Context, toolID string, params map[string]interface{}, appCtx *types.Context) (*types.Result, error) {
	switch toolID {
	case "app.getCwd":
		return s.getCwd()
	case "app.info":
		return s.info()
	case "app.log":
		return s.log(params, appCtx)
	case "app.getLogs":
		return s.getLogs(params, appCtx)
	case "app.ping":
		return s.ping()
	default:
		return nil, fmt.Errorf("unknown tool: %s", toolID)
	}
}

func (s *Provider) getCwd() (*types.Result, error) {
	cwd, err := s.getwd()
	if err != nil {
		return nil, err
	}
	return types.Success(cwd)
}

func (s *Provider) info() (*types.Result, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return types.Success(map[string]interface{}{
		"go_version":     runtime.Version(),
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
		"cpus":           runtime.NumCPU(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_alloc":   m.Alloc / 1024 / 1024, // MB
		"memory_sys":     m.Sys / 1024 / 1024,   // MB
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	})
}

func (s *Provider) log(params map[string]interface{}, appCtx *types.Context) (*types.Result, error) {
	message, ok := utils.StringArgument(params, "message")
	if !ok || message == "" {
		return types.Failure("message required")
	}

	level := "info"
	if l, ok := utils.StringParam(params, "level"); ok && l != "" {
		level = l
	}

	entry := &LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	}
	if appCtx != nil {
		entry.ClientID = appCtx.ClientID.String()
	}
	s.logs.Add(entry)

	fields := []zap.Field{zap.String("client_id", entry.ClientID), zap.String("source", "ui")}
	switch level {
	case "debug":
		s.logger.Debug(message, fields...)
	case "warn":
		s.logger.Warn(message, fields...)
	case "error":
		s.logger.Error(message, fields...)
	default:
		s.logger.Info(message, fields...)
	}

	return types.Success(true)
}

func (s *Provider) getLogs(params map[string]interface{}, appCtx *types.Context) (*types.Result, error) {
	limit := 100
	if l, ok := utils.IntParam(params, "limit"); ok && l > 0 {
		limit = l
	}
	level, _ := utils.StringParam(params, "level")

	client := ""
	if appCtx != nil {
		client = appCtx.ClientID.String()
	}
	logs := s.logs.GetRecent(limit, level, client)

	return types.Success(map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

func (s *Provider) ping() (*types.Result, error) {
	return types.Success(map[string]interface{}{
		"pong":      true,
		"timestamp": time.Now().Unix(),
	})
}
