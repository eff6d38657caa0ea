/*
Package monitoring provides Prometheus metrics for the host runtime.

# Overview

Metrics live on a private registry so several hosts (or tests) can coexist in
one process. All recording methods accept a nil receiver.

# Features

- HTTP request metrics (latency, status)
- Bridge connection and frame metrics
- Watcher states, handles, rebuilds and downgrades
- Terminal sessions by backing mode and spawn failures
- Extension reloads, failures and command executions

# Usage

	metrics := monitoring.NewMetrics()
	defer metrics.Close()

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(monitoring.Handler(metrics)))

	timer := monitoring.NewTimer(metrics, "terminal.create")
	// ... perform operation ...
	timer.Stop("success")
*/
package monitoring
