package extensions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thecatthatflies/melius/internal/domain/extension"
	"github.com/thecatthatflies/melius/internal/shared/id"
	"github.com/thecatthatflies/melius/internal/shared/types"
	"go.uber.org/zap/zaptest"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	logger := zaptest.NewLogger(t)
	rt := extension.NewRuntime(extension.NewGojaLoader(logger), extension.DefaultConfig(), logger, nil)
	t.Cleanup(rt.Close)
	return NewProvider(rt)
}

func TestCreateBaseplateThenExecute(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	appCtx := &types.Context{ClientID: id.NewClientID()}
	workspace := t.TempDir()

	result, err := p.Execute(ctx, "extensions.createBaseplate", map[string]interface{}{
		"workspacePath": workspace,
		"extensionId":   "Hello World",
	}, appCtx)
	require.NoError(t, err)

	created := result.Data.(CreateResult)
	assert.Equal(t, "hello-world", created.Created.ExtensionID)
	assert.Equal(t, workspace, created.Runtime.WorkspacePath)
	require.Len(t, created.Runtime.Extensions, 1)
	assert.Equal(t, extension.StatusLoaded, created.Runtime.Extensions[0].Status)

	result, err = p.Execute(ctx, "extensions.snapshot", nil, appCtx)
	require.NoError(t, err)
	assert.Equal(t, created.Runtime, result.Data)

	_, err = p.Execute(ctx, "extensions.executeCommand", map[string]interface{}{"commandId": "missing"}, appCtx)
	assert.ErrorIs(t, err, extension.ErrCommandNotFound)

	_, err = p.Execute(ctx, "extensions.executeCommand", map[string]interface{}{}, appCtx)
	assert.ErrorIs(t, err, extension.ErrCommandRequired)
}

func TestCreateBaseplateRequiresWorkspace(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.Execute(context.Background(), "extensions.createBaseplate", map[string]interface{}{}, &types.Context{ClientID: id.NewClientID()})
	assert.ErrorIs(t, err, extension.ErrWorkspaceRequired)
}

func TestLoadBareValueAndEmptyPath(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	appCtx := &types.Context{ClientID: id.NewClientID()}
	workspace := t.TempDir()

	result, err := p.Execute(ctx, "extensions.load", map[string]interface{}{"value": workspace}, appCtx)
	require.NoError(t, err)
	snap := result.Data.(extension.Snapshot)
	assert.Equal(t, workspace, snap.WorkspacePath)
	assert.Empty(t, snap.Extensions)

	result, err = p.Execute(ctx, "extensions.load", map[string]interface{}{"workspacePath": ""}, appCtx)
	require.NoError(t, err)
	assert.Equal(t, "", result.Data.(extension.Snapshot).WorkspacePath)
}
