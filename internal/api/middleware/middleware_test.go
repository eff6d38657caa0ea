package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return router
}

func TestRateLimitPerIP(t *testing.T) {
	router := newRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitEvictsIdleClients(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newIPLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute}, func() time.Time { return now })

	assert.True(t, l.limiter("10.0.0.1").Allow())
	assert.False(t, l.limiter("10.0.0.1").Allow())
	l.limiter("10.0.0.2")
	assert.Equal(t, 2, l.size())

	now = now.Add(30 * time.Second)
	l.limiter("10.0.0.2")
	assert.Equal(t, 2, l.size(), "nothing idle long enough yet")

	now = now.Add(45 * time.Second)
	l.limiter("10.0.0.3")
	assert.Equal(t, 2, l.size(), "10.0.0.1 evicted, 10.0.0.2 seen recently")

	// an evicted client starts over with a full bucket
	assert.True(t, l.limiter("10.0.0.1").Allow())
}

func TestCORSAllowedOrigin(t *testing.T) {
	router := newRouter(CORS(CORSConfigFor([]string{"http://localhost:5173"})))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	router.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
