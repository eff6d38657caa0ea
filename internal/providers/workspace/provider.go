// Package workspace exposes the workspace watcher over the bridge.
package workspace

import (
	"context"
	"fmt"

	"github.com/thecatthatflies/melius/internal/domain/watcher"
	"github.com/thecatthatflies/melius/internal/shared/types"
	"github.com/thecatthatflies/melius/internal/shared/utils"
)

// Provider implements workspace.watch and workspace.unwatch
type Provider struct {
	watcher *watcher.Manager
}

// NewProvider creates a workspace provider
func NewProvider(manager *watcher.Manager) *Provider {
	return &Provider{watcher: manager}
}

// Definition returns service metadata
func (p *Provider) Definition() types.Service {
	return types.Service{
		ID:           "workspace",
		Name:         "Workspace Service",
		Description:  "Watch a workspace root and relay workspace:changed events",
		Category:     types.CategoryWorkspace,
		Capabilities: []string{"watch"},
		Tools: []types.Tool{
			{
				ID:          "workspace.watch",
				Name:        "Watch Workspace",
				Description: "Replace this connection's watch with one rooted at path; an empty path stops watching",
				Parameters: []types.Parameter{
					{Name: "path", Type: "string", Description: "Workspace root", Required: true},
				},
				Returns: "object",
			},
			{
				ID:          "workspace.unwatch",
				Name:        "Unwatch Workspace",
				Description: "Stop watching",
				Parameters:  []types.Parameter{},
				Returns:     "object",
			},
		},
	}
}

// Execute routes to the operation
func (p *Provider) Execute(ctx context.Context, toolID string, params map[string]interface{}, appCtx *types.Context) (*types.Result, error) {
	if appCtx == nil {
		return nil, fmt.Errorf("%s requires a connection", toolID)
	}

	switch toolID {
	case "workspace.watch":
		path, _ := utils.StringArgument(params, "path")
		result, err := p.watcher.Watch(ctx, appCtx.ClientID, path)
		if err != nil {
			return nil, err
		}
		return types.Success(result)
	case "workspace.unwatch":
		p.watcher.Unwatch(appCtx.ClientID)
		return types.Success(watcher.Result{Watching: false})
	default:
		return nil, fmt.Errorf("unknown tool: %s", toolID)
	}
}
