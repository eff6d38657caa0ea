package types

import "github.com/thecatthatflies/melius/internal/shared/id"

// Category groups bridge services
type Category string

const (
	CategoryFilesystem Category = "filesystem"
	CategoryWorkspace  Category = "workspace"
	CategoryTerminal   Category = "terminal"
	CategoryExtensions Category = "extensions"
	CategorySystem     Category = "system"
)

// Service represents a service definition
type Service struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Category     Category `json:"category"`
	Capabilities []string `json:"capabilities"`
	Tools        []Tool   `json:"tools"`
}

// Tool represents one bridge operation, e.g. "terminal.create"
type Tool struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Returns     string      `json:"returns"`
	// FireAndForget operations never produce a response frame
	FireAndForget bool `json:"fire_and_forget,omitempty"`
}

// Parameter represents a tool parameter
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Context identifies the UI connection an operation runs on behalf of.
// Every per-client table is keyed by ClientID.
type Context struct {
	ClientID  id.ClientID  `json:"client_id"`
	RequestID id.RequestID `json:"request_id,omitempty"`
}

// Result represents a service execution result
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *string     `json:"error,omitempty"`
}

// Success wraps data in a successful result
func Success(data interface{}) (*Result, error) {
	return &Result{Success: true, Data: data}, nil
}

// Failure wraps a message in a failed result
func Failure(message string) (*Result, error) {
	msg := message
	return &Result{Success: false, Error: &msg}, nil
}
