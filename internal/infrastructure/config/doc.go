// Package config provides layered configuration for the host runtime.
//
// Layers, lowest precedence first:
//  1. Default()
//  2. optional TOML or YAML file named by MELIUS_CONFIG (or the -config flag)
//  3. environment variables
//  4. CLI flags applied by cmd/server
//
// Environment Variables:
//   - PORT, HOST, ALLOW_ORIGINS
//   - LOG_LEVEL, LOG_DEV
//   - WATCH_PROBE_DELAY, WATCH_REBUILD_DELAY, WATCH_RECURSIVE
//   - TERMINAL_PTY, TERMINAL_DEFAULT_COLS, TERMINAL_DEFAULT_ROWS
//   - EXTENSIONS_ACTIVATION_TIMEOUT, EXTENSIONS_COMMAND_TIMEOUT
//   - BRIDGE_RATE_RPS, BRIDGE_RATE_BURST, BRIDGE_MAX_MESSAGE
package config
