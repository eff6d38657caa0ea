package filesystem

import (
	"context"
	"fmt"

	"github.com/thecatthatflies/melius/internal/shared/types"
	"github.com/thecatthatflies/melius/internal/shared/utils"
)

// Provider exposes filesystem operations on the bridge under "fs"
type Provider struct {
	ops *Ops
}

// NewProvider creates the filesystem provider
func NewProvider() *Provider {
	return &Provider{ops: NewOps()}
}

// Definition returns service metadata
func (p *Provider) Definition() types.Service {
	return types.Service{
		ID:           "fs",
		Name:         "Filesystem Service",
		Description:  "Directory listing, text file access and workspace search",
		Category:     types.CategoryFilesystem,
		Capabilities: []string{"list", "read", "write", "search"},
		Tools: []types.Tool{
			{
				ID:          "fs.listDirectory",
				Name:        "List Directory",
				Description: "List a directory, directories first, natural name order, symlinks excluded",
				Parameters: []types.Parameter{
					{Name: "path", Type: "string", Description: "Absolute directory path", Required: true},
				},
				Returns: "array",
			},
			{
				ID:          "fs.readFile",
				Name:        "Read File",
				Description: "Read a UTF-8 text file",
				Parameters: []types.Parameter{
					{Name: "path", Type: "string", Description: "File path", Required: true},
				},
				Returns: "string",
			},
			{
				ID:          "fs.writeFile",
				Name:        "Write File",
				Description: "Write UTF-8 text, replacing the file",
				Parameters: []types.Parameter{
					{Name: "path", Type: "string", Description: "File path", Required: true},
					{Name: "content", Type: "string", Description: "File content", Required: false},
				},
				Returns: "boolean",
			},
			{
				ID:          "fs.search",
				Name:        "Search Files",
				Description: "Find files under a root by ** glob, skipping .git and node_modules",
				Parameters: []types.Parameter{
					{Name: "root", Type: "string", Description: "Root directory", Required: true},
					{Name: "pattern", Type: "string", Description: "Glob pattern, e.g. **/*.go", Required: true},
					{Name: "limit", Type: "number", Description: "Maximum matches (default 500)", Required: false},
				},
				Returns: "object",
			},
		},
	}
}

// Execute routes to the requested operation
func (p *Provider) Execute(ctx context.Context, toolID string, params map[string]interface{}, _ *types.Context) (*types.Result, error) {
	switch toolID {
	case "fs.listDirectory":
		dir, _ := utils.StringArgument(params, "path")
		entries, err := p.ops.ListDirectory(dir)
		if err != nil {
			return nil, err
		}
		return Success(entries)

	case "fs.readFile":
		path, _ := utils.StringArgument(params, "path")
		text, err := p.ops.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return Success(text)

	case "fs.writeFile":
		path, _ := utils.StringParam(params, "path")
		content, _ := utils.StringParam(params, "content")
		if err := p.ops.WriteFile(path, content); err != nil {
			return nil, err
		}
		return Success(true)

	case "fs.search":
		root, _ := utils.StringParam(params, "root")
		pattern, _ := utils.StringParam(params, "pattern")
		limit, _ := utils.IntParam(params, "limit")
		result, err := p.ops.Search(ctx, root, pattern, limit)
		if err != nil {
			return nil, err
		}
		return Success(result)

	default:
		return nil, fmt.Errorf("unknown tool: %s", toolID)
	}
}
