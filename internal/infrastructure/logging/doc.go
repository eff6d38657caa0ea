// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output
//
// Logs go to stderr by default; stdout is left to the UI process that
// launched the host.
//
// Components take a *zap.Logger and name it after themselves:
//
//	logger := logging.NewDefault()
//	watcher.NewManager(backend, sink, cfg, logger.Named("watcher"), metrics)
package logging
