package terminal

import (
	"context"
	"fmt"

	domain "github.com/thecatthatflies/melius/internal/domain/terminal"
	"github.com/thecatthatflies/melius/internal/shared/id"
	"github.com/thecatthatflies/melius/internal/shared/types"
	"github.com/thecatthatflies/melius/internal/shared/utils"
)

// Provider implements terminal operations on top of a session registry
type Provider struct {
	registry *domain.Registry
}

// NewProvider creates a terminal provider
func NewProvider(registry *domain.Registry) *Provider {
	return &Provider{registry: registry}
}

// Definition returns service metadata
func (p *Provider) Definition() types.Service {
	return types.Service{
		ID:           "terminal",
		Name:         "Terminal Service",
		Description:  "Interactive shell sessions over a PTY or piped child process",
		Category:     types.CategoryTerminal,
		Capabilities: []string{"pty", "shell", "profiles", "resize", "sessions"},
		Tools:        p.getTools(),
	}
}

// Execute routes to the operation
func (p *Provider) Execute(ctx context.Context, toolID string, params map[string]interface{}, appCtx *types.Context) (*types.Result, error) {
	client := clientOf(appCtx)

	switch toolID {
	case "terminal.listProfiles":
		return p.listProfiles(ctx, params)
	case "terminal.create":
		return p.create(ctx, client, params)
	case "terminal.write":
		return p.write(client, params)
	case "terminal.resize":
		return p.resize(client, params)
	case "terminal.kill":
		return p.kill(client, params)
	case "terminal.sessions":
		return types.Success(p.registry.Sessions(client))
	default:
		return nil, fmt.Errorf("unknown tool: %s", toolID)
	}
}

func (p *Provider) getTools() []types.Tool {
	sessionID := types.Parameter{Name: "sessionId", Type: "number", Description: "Terminal session id", Required: true}

	return []types.Tool{
		{
			ID:          "terminal.listProfiles",
			Name:        "List Shell Profiles",
			Description: "Shells available on this host",
			Parameters: []types.Parameter{
				{Name: "force", Type: "boolean", Description: "Re-detect instead of using the cache", Required: false},
			},
			Returns: "object",
		},
		{
			ID:          "terminal.create",
			Name:        "Create Terminal Session",
			Description: "Start a shell session; output arrives as terminal:data events",
			Parameters: []types.Parameter{
				{Name: "cwd", Type: "string", Description: "Working directory, defaults to the host's", Required: false},
				{Name: "cols", Type: "number", Description: "Width in columns (20-500)", Required: false},
				{Name: "rows", Type: "number", Description: "Height in rows (5-200)", Required: false},
				{Name: "profileId", Type: "string", Description: "Shell profile id", Required: false},
				{Name: "shellPath", Type: "string", Description: "Shell executable path", Required: false},
			},
			Returns: "object",
		},
		{
			ID:          "terminal.write",
			Name:        "Write to Terminal",
			Description: "Send input to a session",
			Parameters: []types.Parameter{
				sessionID,
				{Name: "data", Type: "string", Description: "Input text", Required: true},
			},
			FireAndForget: true,
		},
		{
			ID:          "terminal.resize",
			Name:        "Resize Terminal",
			Description: "Change the size of a PTY session",
			Parameters: []types.Parameter{
				sessionID,
				{Name: "cols", Type: "number", Description: "Width in columns", Required: false},
				{Name: "rows", Type: "number", Description: "Height in rows", Required: false},
			},
			FireAndForget: true,
		},
		{
			ID:          "terminal.kill",
			Name:        "Kill Terminal Session",
			Description: "Terminate a session",
			Parameters:  []types.Parameter{sessionID},
			Returns:     "boolean",
		},
		{
			ID:          "terminal.sessions",
			Name:        "List Terminal Sessions",
			Description: "Live sessions owned by this connection",
			Parameters:  []types.Parameter{},
			Returns:     "array",
		},
	}
}

func (p *Provider) listProfiles(ctx context.Context, params map[string]interface{}) (*types.Result, error) {
	result, err := p.registry.ListProfiles(ctx, utils.BoolParam(params, "force"))
	if err != nil {
		return nil, err
	}
	return types.Success(result)
}

func (p *Provider) create(ctx context.Context, client id.ClientID, params map[string]interface{}) (*types.Result, error) {
	req := domain.CreateRequest{
		Cols: intPointer(params, "cols"),
		Rows: intPointer(params, "rows"),
	}
	req.Cwd, _ = utils.StringParam(params, "cwd")
	req.ProfileID, _ = utils.StringParam(params, "profileId")
	req.ShellPath, _ = utils.StringParam(params, "shellPath")

	result, err := p.registry.Create(ctx, client, req)
	if err != nil {
		return nil, err
	}
	return types.Success(result)
}

func (p *Provider) write(client id.ClientID, params map[string]interface{}) (*types.Result, error) {
	sessionID, ok := utils.IntegerParam(params, "sessionId")
	if !ok {
		return types.Success(nil)
	}
	data, _ := utils.StringParam(params, "data")
	p.registry.Write(client, sessionID, data)
	return types.Success(nil)
}

func (p *Provider) resize(client id.ClientID, params map[string]interface{}) (*types.Result, error) {
	sessionID, ok := utils.IntegerParam(params, "sessionId")
	if !ok {
		return types.Success(nil)
	}
	p.registry.Resize(client, sessionID, intPointer(params, "cols"), intPointer(params, "rows"))
	return types.Success(nil)
}

func (p *Provider) kill(client id.ClientID, params map[string]interface{}) (*types.Result, error) {
	sessionID, ok := utils.IntegerArgument(params, "sessionId")
	if !ok {
		return types.Success(false)
	}
	return types.Success(p.registry.Kill(client, sessionID))
}

// intPointer returns nil when params[key] does not coerce to an int
func intPointer(params map[string]interface{}, key string) *int {
	v, ok := utils.IntParam(params, key)
	if !ok {
		return nil
	}
	return &v
}

func clientOf(appCtx *types.Context) id.ClientID {
	if appCtx == nil {
		return ""
	}
	return appCtx.ClientID
}
