// Package extensions exposes the per-connection extension runtime over the bridge.
package extensions

import (
	"context"
	"fmt"

	"github.com/thecatthatflies/melius/internal/domain/extension"
	"github.com/thecatthatflies/melius/internal/shared/types"
	"github.com/thecatthatflies/melius/internal/shared/utils"
)

// CreateResult is returned by extensions.createBaseplate
type CreateResult struct {
	Created extension.Baseplate `json:"created"`
	Runtime extension.Snapshot  `json:"runtime"`
}

// Provider implements the extensions.* operations
type Provider struct {
	runtime *extension.Runtime
}

// NewProvider creates an extensions provider
func NewProvider(runtime *extension.Runtime) *Provider {
	return &Provider{runtime: runtime}
}

// Definition returns service metadata
func (p *Provider) Definition() types.Service {
	return types.Service{
		ID:           "extensions",
		Name:         "Extensions Service",
		Description:  "Load workspace extensions, scaffold new ones and run their commands",
		Category:     types.CategoryExtensions,
		Capabilities: []string{"load", "scaffold", "commands"},
		Tools: []types.Tool{
			{
				ID:          "extensions.load",
				Name:        "Load Extensions",
				Description: "Dispose the current runtime and load every extension under <workspace>/.melius/extensions",
				Parameters: []types.Parameter{
					{Name: "workspacePath", Type: "string", Description: "Workspace root; empty clears the runtime", Required: false},
				},
				Returns: "object",
			},
			{
				ID:          "extensions.createBaseplate",
				Name:        "Create Extension Baseplate",
				Description: "Scaffold a new extension and reload the runtime",
				Parameters: []types.Parameter{
					{Name: "workspacePath", Type: "string", Description: "Workspace root", Required: true},
					{Name: "extensionId", Type: "string", Description: "Requested extension id", Required: false},
				},
				Returns: "object",
			},
			{
				ID:          "extensions.executeCommand",
				Name:        "Execute Extension Command",
				Description: "Run a command registered by a loaded extension",
				Parameters: []types.Parameter{
					{Name: "commandId", Type: "string", Description: "Command id", Required: true},
					{Name: "args", Type: "array", Description: "Command arguments", Required: false},
				},
				Returns: "object",
			},
			{
				ID:          "extensions.snapshot",
				Name:        "Extension Runtime Snapshot",
				Description: "Current runtime without reloading",
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
	client := appCtx.ClientID

	switch toolID {
	case "extensions.load":
		workspacePath, _ := utils.StringArgument(params, "workspacePath")
		snap, err := p.runtime.Load(ctx, client, workspacePath)
		if err != nil {
			return nil, err
		}
		return types.Success(snap)

	case "extensions.createBaseplate":
		workspacePath, _ := utils.StringParam(params, "workspacePath")
		extensionID, _ := utils.StringParam(params, "extensionId")
		created, err := extension.CreateBaseplate(workspacePath, extensionID)
		if err != nil {
			return nil, err
		}
		snap, err := p.runtime.Load(ctx, client, workspacePath)
		if err != nil {
			return nil, err
		}
		return types.Success(CreateResult{Created: created, Runtime: snap})

	case "extensions.executeCommand":
		commandID, _ := utils.StringParam(params, "commandId")
		result, err := p.runtime.Execute(ctx, client, commandID, utils.SliceParam(params, "args"))
		if err != nil {
			return nil, err
		}
		return types.Success(result)

	case "extensions.snapshot":
		return types.Success(p.runtime.Snapshot(client))

	default:
		return nil, fmt.Errorf("unknown tool: %s", toolID)
	}
}
