package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thecatthatflies/melius/internal/domain/session"
	"github.com/thecatthatflies/melius/internal/providers/system"
	"github.com/thecatthatflies/melius/internal/providers/workspace"
	"github.com/thecatthatflies/melius/internal/service"
)

func newRouter(t *testing.T) (*gin.Engine, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := service.NewRegistry()
	require.NoError(t, registry.Register(system.NewProvider(nil)))
	require.NoError(t, registry.Register(workspace.NewProvider(nil)))

	sessions := session.NewManager(nil, nil)
	router := gin.New()
	NewHandlers(registry, sessions).Register(router)
	return router, sessions
}

func do(t *testing.T, router *gin.Engine, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out))
	return w.Code, out
}

func TestHealth(t *testing.T) {
	router, sessions := newRouter(t)
	_, err := sessions.Open(context.Background(), "test")
	require.NoError(t, err)

	code, body := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["connections"])
}

func TestListServicesByCategory(t *testing.T) {
	router, _ := newRouter(t)

	code, body := do(t, router, http.MethodGet, "/services?category=workspace", "")
	require.Equal(t, http.StatusOK, code)
	services := body["services"].([]interface{})
	require.Len(t, services, 1)
	assert.Equal(t, "workspace", services[0].(map[string]interface{})["id"])

	code, _ = do(t, router, http.MethodGet, "/services?category=kernel", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDiscoverServices(t *testing.T) {
	router, _ := newRouter(t)

	code, body := do(t, router, http.MethodPost, "/services/discover", `{"query": "watch my workspace"}`)
	require.Equal(t, http.StatusOK, code)
	services := body["services"].([]interface{})
	require.NotEmpty(t, services)
	assert.Equal(t, "workspace", services[0].(map[string]interface{})["id"])

	code, _ = do(t, router, http.MethodPost, "/services/discover", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestListConnections(t *testing.T) {
	router, sessions := newRouter(t)
	conn, err := sessions.Open(context.Background(), "127.0.0.1:1")
	require.NoError(t, err)

	_, body := do(t, router, http.MethodGet, "/connections", "")
	assert.EqualValues(t, 1, body["count"])
	first := body["connections"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, conn.ID.String(), first["client_id"])
}
