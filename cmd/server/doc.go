// Package main runs the Melius host process.
//
// The host serves the UI bridge on GET /bridge (WebSocket) plus /health,
// /services and /metrics. It owns workspace watching, terminal sessions
// and the extension runtime for every connected UI.
//
// Configuration is layered: defaults, then the -config file (or
// MELIUS_CONFIG), then environment variables, then flags.
//
// Usage:
//
//	./server -port 8000
//	./server -dev
//	./server -config melius.toml
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown
package main
