package terminal

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domain "github.com/thecatthatflies/melius/internal/domain/terminal"
	"github.com/thecatthatflies/melius/internal/shared/id"
	"github.com/thecatthatflies/melius/internal/shared/types"
	"github.com/thecatthatflies/melius/internal/shell"
	"go.uber.org/zap/zaptest"
)

type outputRecorder struct {
	mu  sync.Mutex
	out strings.Builder
}

func (r *outputRecorder) Publish(_ id.ClientID, event types.Event) {
	if d, ok := event.Payload.(types.TerminalData); ok {
		r.mu.Lock()
		r.out.WriteString(d.Data)
		r.mu.Unlock()
	}
}

func (r *outputRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out.String()
}

func newTestProvider(t *testing.T) (*Provider, *outputRecorder) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}

	detector := shell.NewDetector(
		shell.WithEnv(func(string) string { return "" }),
		shell.WithExists(func(_ context.Context, c string) bool { return c == "/bin/sh" }),
	)
	cfg := domain.DefaultConfig()
	cfg.PTY = false
	cfg.KillGrace = 200 * time.Millisecond

	rec := &outputRecorder{}
	registry := domain.NewRegistry(detector, rec, cfg, zaptest.NewLogger(t))
	t.Cleanup(registry.Close)
	return NewProvider(registry), rec
}

func TestDefinitionMarksFireAndForget(t *testing.T) {
	p, _ := newTestProvider(t)

	fireAndForget := map[string]bool{}
	for _, tool := range p.Definition().Tools {
		fireAndForget[tool.ID] = tool.FireAndForget
	}
	assert.True(t, fireAndForget["terminal.write"])
	assert.True(t, fireAndForget["terminal.resize"])
	assert.False(t, fireAndForget["terminal.create"])
}

func TestCreateWriteKill(t *testing.T) {
	p, rec := newTestProvider(t)
	ctx := context.Background()
	owner := &types.Context{ClientID: id.NewClientID()}
	other := &types.Context{ClientID: id.NewClientID()}

	result, err := p.Execute(ctx, "terminal.create", map[string]interface{}{"cols": 5.0, "rows": 1000.0}, owner)
	require.NoError(t, err)
	created := result.Data.(domain.CreateResult)
	assert.False(t, created.PTYSupported)
	assert.Equal(t, "/bin/sh", created.Profile.Path)

	result, err = p.Execute(ctx, "terminal.sessions", nil, owner)
	require.NoError(t, err)
	sessions := result.Data.([]domain.SessionInfo)
	require.Len(t, sessions, 1)
	assert.Equal(t, 20, sessions[0].Cols)
	assert.Equal(t, 200, sessions[0].Rows)

	sid := float64(created.SessionID)
	_, err = p.Execute(ctx, "terminal.write", map[string]interface{}{"sessionId": sid, "data": "echo melius-$((40+2))\n"}, owner)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(rec.String(), "melius-42") }, 5*time.Second, 20*time.Millisecond)

	result, err = p.Execute(ctx, "terminal.kill", map[string]interface{}{"sessionId": sid}, other)
	require.NoError(t, err)
	assert.Equal(t, false, result.Data)

	result, err = p.Execute(ctx, "terminal.kill", map[string]interface{}{"value": sid}, owner)
	require.NoError(t, err)
	assert.Equal(t, true, result.Data)

	result, err = p.Execute(ctx, "terminal.kill", map[string]interface{}{"value": sid}, owner)
	require.NoError(t, err)
	assert.Equal(t, false, result.Data)
}

func TestKillRejectsNonInteger(t *testing.T) {
	p, _ := newTestProvider(t)
	owner := &types.Context{ClientID: id.NewClientID()}

	result, err := p.Execute(context.Background(), "terminal.kill", map[string]interface{}{"sessionId": "1"}, owner)
	require.NoError(t, err)
	assert.Equal(t, false, result.Data)
}

func TestWriteWithoutSessionIsIgnored(t *testing.T) {
	p, _ := newTestProvider(t)

	result, err := p.Execute(context.Background(), "terminal.write", map[string]interface{}{"data": "x"}, &types.Context{})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestListProfiles(t *testing.T) {
	p, _ := newTestProvider(t)

	result, err := p.Execute(context.Background(), "terminal.listProfiles", map[string]interface{}{"force": true}, nil)
	require.NoError(t, err)
	profiles := result.Data.(domain.ProfilesResult)
	require.NotEmpty(t, profiles.Profiles)
	assert.Equal(t, "/bin/sh", profiles.Profiles[0].Path)
}
