package extension

import (
	"context"

	"go.uber.org/zap"
)

// Disposable releases one resource acquired by an extension
type Disposable interface {
	Dispose() error
}

// DisposeFunc adapts a function to Disposable
type DisposeFunc func() error

// Dispose calls f
func (f DisposeFunc) Dispose() error {
	if f == nil {
		return nil
	}
	return f()
}

// Handler runs an extension command
type Handler func(ctx context.Context, args []interface{}) (interface{}, error)

// API is the capability object handed to Module.Activate
type API interface {
	WorkspacePath() string
	ExtensionPath() string
	ExtensionID() string

	// Register stores handler under commandID in the client's command table,
	// replacing any previous owner. An empty title resolves to the manifest
	// title, then to the id. The returned handle removes the entry.
	Register(commandID string, handler Handler, title string) (Disposable, error)

	// RegisterCommand is Register followed by Subscribe on the returned handle
	RegisterCommand(commandID string, handler Handler, title string) (Disposable, error)

	// Subscribe appends d to the subscriptions released at teardown
	Subscribe(d Disposable)

	// Log writes to the extension's scoped logger
	Log(msg string, fields ...zap.Field)
}

// Activation is what a module hands back after a successful activate call.
// Both fields may be nil.
type Activation struct {
	Result     Disposable
	Deactivate Disposable
}

// Module is one loaded extension entry point
type Module interface {
	Activate(ctx context.Context, api API) (Activation, error)
}

// LoadRequest locates an extension's entry point
type LoadRequest struct {
	ExtensionID string
	Dir         string
	Main        string
}

// Loader turns an extension directory into a Module
type Loader interface {
	Load(ctx context.Context, req LoadRequest) (Module, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context, req LoadRequest) (Module, error)

// Load calls f
func (f LoaderFunc) Load(ctx context.Context, req LoadRequest) (Module, error) {
	return f(ctx, req)
}

// ModuleFunc adapts a function to Module
type ModuleFunc func(ctx context.Context, api API) (Activation, error)

// Activate calls f
func (f ModuleFunc) Activate(ctx context.Context, api API) (Activation, error) {
	return f(ctx, api)
}
