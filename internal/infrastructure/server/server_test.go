package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thecatthatflies/melius/internal/infrastructure/config"
)

type bridgeClient struct {
	t    *testing.T
	conn *websocket.Conn
	seq  int
}

func (b *bridgeClient) read() map[string]interface{} {
	b.t.Helper()
	require.NoError(b.t, b.conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	_, data, err := b.conn.ReadMessage()
	require.NoError(b.t, err)
	var frame map[string]interface{}
	require.NoError(b.t, sonic.Unmarshal(data, &frame))
	return frame
}

// call sends a request and skips events until its response arrives
func (b *bridgeClient) call(op string, params interface{}) map[string]interface{} {
	b.t.Helper()
	b.seq++
	reqID := float64(b.seq)
	data, err := sonic.Marshal(map[string]interface{}{"id": reqID, "op": op, "params": params})
	require.NoError(b.t, err)
	require.NoError(b.t, b.conn.WriteMessage(websocket.TextMessage, data))

	for {
		frame := b.read()
		if frame["id"] == reqID {
			return frame
		}
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Port = "0"
	cfg.Logging.Level = "error"
	cfg.Terminal.PTY = false

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, ts
}

func dialBridge(t *testing.T, ts *httptest.Server) *bridgeClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/bridge", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := &bridgeClient{t: t, conn: conn}
	hello := client.read()
	require.Equal(t, "bridge:hello", hello["event"])
	return client
}

func TestHTTPEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBridgeRoundTrip(t *testing.T) {
	_, ts := newTestServer(t)
	client := dialBridge(t, ts)
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "notes.txt"), []byte("hello"), 0o644))

	frame := client.call("app.ping", nil)
	assert.Equal(t, true, frame["ok"])

	frame = client.call("fs.readFile", filepath.Join(workspace, "notes.txt"))
	assert.Equal(t, "hello", frame["result"])

	frame = client.call("extensions.createBaseplate", map[string]interface{}{"workspacePath": workspace, "extensionId": "demo"})
	require.Equal(t, true, frame["ok"], frame["error"])
	runtime := frame["result"].(map[string]interface{})["runtime"].(map[string]interface{})
	extensions := runtime["extensions"].([]interface{})
	require.Len(t, extensions, 1)
	assert.Equal(t, "loaded", extensions[0].(map[string]interface{})["status"])

	frame = client.call("workspace.watch", workspace)
	assert.Equal(t, map[string]interface{}{"watching": true, "workspacePath": workspace}, frame["result"])

	frame = client.call("nope.op", nil)
	assert.Equal(t, false, frame["ok"])
}
