// Package service provides the operation registry behind the host bridge.
//
// Providers group related operations under a service id. An operation id
// is "<service>.<operation>", e.g. "terminal.create", and the registry
// routes it to the provider registered under the prefix.
//
// Example Usage:
//
//	registry := service.NewRegistry()
//	registry.Register(terminalProvider)
//	result, err := registry.Execute(ctx, "terminal.kill", params, appCtx)
package service
