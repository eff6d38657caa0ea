// Package http serves the plain HTTP endpoints next to the bridge:
// health, service discovery and connection listing.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thecatthatflies/melius/internal/domain/session"
	"github.com/thecatthatflies/melius/internal/service"
	"github.com/thecatthatflies/melius/internal/shared/types"
)

// Version is reported by the root endpoint
const Version = "0.1.0"

var categories = map[types.Category]bool{
	types.CategoryFilesystem: true,
	types.CategoryWorkspace:  true,
	types.CategoryTerminal:   true,
	types.CategoryExtensions: true,
	types.CategorySystem:     true,
}

// Handlers contains all HTTP handlers
type Handlers struct {
	registry  *service.Registry
	sessions  *session.Manager
	startTime time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(registry *service.Registry, sessions *session.Manager) *Handlers {
	return &Handlers{
		registry:  registry,
		sessions:  sessions,
		startTime: time.Now(),
	}
}

// DiscoverRequest is the body of POST /services/discover
type DiscoverRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

// Root reports the service identity
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "melius-host",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"uptime_seconds":   time.Since(h.startTime).Seconds(),
		"connections":      h.sessions.Count(),
		"service_registry": h.registry.Stats(),
	})
}

// ListServices lists bridge services, optionally filtered by ?category=
func (h *Handlers) ListServices(c *gin.Context) {
	var category *types.Category
	if raw := c.Query("category"); raw != "" {
		cat := types.Category(raw)
		if !categories[cat] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category: " + raw})
			return
		}
		category = &cat
	}

	c.JSON(http.StatusOK, gin.H{
		"services": h.registry.List(category),
		"stats":    h.registry.Stats(),
	})
}

// DiscoverServices ranks services against a free-text query
func (h *Handlers) DiscoverServices(c *gin.Context) {
	var req DiscoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}

	c.JSON(http.StatusOK, gin.H{
		"query":    req.Query,
		"services": h.registry.Discover(req.Query, limit),
	})
}

// ListConnections lists open bridge connections
func (h *Handlers) ListConnections(c *gin.Context) {
	conns := h.sessions.List()
	c.JSON(http.StatusOK, gin.H{
		"connections": conns,
		"count":       len(conns),
	})
}

// Register mounts the handlers on router
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/services", h.ListServices)
	router.POST("/services/discover", h.DiscoverServices)
	router.GET("/connections", h.ListConnections)
}
