package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
// Every method is safe to call on a nil *Metrics so components can run
// without instrumentation (tests, embedded use).
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Bridge metrics
	BridgeConnections prometheus.Gauge
	BridgeMessages    *prometheus.CounterVec
	OperationCalls    *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Watcher metrics
	WatchStates        prometheus.Gauge
	WatchHandles       prometheus.Gauge
	WorkspaceChanges   prometheus.Counter
	WatcherRebuilds    prometheus.Counter
	WatcherDowngrades  prometheus.Counter
	WatcherProbeMerges prometheus.Counter

	// Terminal metrics
	TerminalSessions    prometheus.Gauge
	TerminalCreated     *prometheus.CounterVec
	TerminalSpawnErrors prometheus.Counter

	// Extension metrics
	ExtensionLoads      prometheus.Counter
	ExtensionFailures   *prometheus.CounterVec
	ExtensionCommands   *prometheus.CounterVec
	ExtensionDisposeErr prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMetrics creates a metrics collector on a private registry.
// Call Close to stop the uptime updater.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),
		stop:      make(chan struct{}),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "melius_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "melius_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		BridgeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "melius_bridge_connections",
			Help: "Number of connected UI clients",
		}),
		BridgeMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "melius_bridge_messages_total",
				Help: "Total number of bridge frames",
			},
			[]string{"direction", "type"},
		),
		OperationCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "melius_operation_calls_total",
				Help: "Total number of bridge operations executed",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "melius_operation_duration_seconds",
				Help:    "Bridge operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 30},
			},
			[]string{"operation"},
		),

		WatchStates: factory.NewGauge(prometheus.GaugeOpts{
			Name: "melius_watch_states",
			Help: "Number of clients with an active workspace watch",
		}),
		WatchHandles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "melius_watch_handles",
			Help: "Number of open per-directory watch handles",
		}),
		WorkspaceChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "melius_workspace_changes_total",
			Help: "Total number of workspace change events emitted",
		}),
		WatcherRebuilds: factory.NewCounter(prometheus.CounterOpts{
			Name: "melius_watcher_rebuilds_total",
			Help: "Total number of full watch rescans",
		}),
		WatcherDowngrades: factory.NewCounter(prometheus.CounterOpts{
			Name: "melius_watcher_downgrades_total",
			Help: "Total number of recursive to manual watch downgrades",
		}),
		WatcherProbeMerges: factory.NewCounter(prometheus.CounterOpts{
			Name: "melius_watcher_probe_merges_total",
			Help: "Total number of directories added by change probes",
		}),

		TerminalSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "melius_terminal_sessions",
			Help: "Number of live terminal sessions",
		}),
		TerminalCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "melius_terminal_sessions_created_total",
				Help: "Total number of terminal sessions created",
			},
			[]string{"mode"},
		),
		TerminalSpawnErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "melius_terminal_spawn_errors_total",
			Help: "Total number of terminal spawn failures",
		}),

		ExtensionLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "melius_extension_loads_total",
			Help: "Total number of extension runtime reloads",
		}),
		ExtensionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "melius_extension_failures_total",
				Help: "Total number of extensions that failed to load",
			},
			[]string{"stage"},
		),
		ExtensionCommands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "melius_extension_commands_total",
				Help: "Total number of extension command executions",
			},
			[]string{"status"},
		),
		ExtensionDisposeErr: factory.NewCounter(prometheus.CounterOpts{
			Name: "melius_extension_dispose_errors_total",
			Help: "Total number of failed disposables",
		}),

		Uptime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "melius_uptime_seconds",
			Help: "Host uptime in seconds",
		}),
	}

	go m.updateUptime()

	return m
}

// Registry returns the registry backing these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Close stops background updates
func (m *Metrics) Close() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		case <-m.stop:
			return
		}
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBridgeMessage records one bridge frame
func (m *Metrics) RecordBridgeMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.BridgeMessages.WithLabelValues(direction, msgType).Inc()
}

// RecordOperation records one executed bridge operation
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationCalls.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncBridgeConnections increments connected clients
func (m *Metrics) IncBridgeConnections() {
	if m == nil {
		return
	}
	m.BridgeConnections.Inc()
}

// DecBridgeConnections decrements connected clients
func (m *Metrics) DecBridgeConnections() {
	if m == nil {
		return
	}
	m.BridgeConnections.Dec()
}

// SetWatchStates sets the number of active watch states
func (m *Metrics) SetWatchStates(count int) {
	if m == nil {
		return
	}
	m.WatchStates.Set(float64(count))
}

// AddWatchHandles adjusts the open handle gauge by delta
func (m *Metrics) AddWatchHandles(delta int) {
	if m == nil {
		return
	}
	m.WatchHandles.Add(float64(delta))
}

// IncWorkspaceChanges counts one emitted change event
func (m *Metrics) IncWorkspaceChanges() {
	if m == nil {
		return
	}
	m.WorkspaceChanges.Inc()
}

// IncWatcherRebuilds counts one full rescan
func (m *Metrics) IncWatcherRebuilds() {
	if m == nil {
		return
	}
	m.WatcherRebuilds.Inc()
}

// IncWatcherDowngrades counts one recursive to manual fallback
func (m *Metrics) IncWatcherDowngrades() {
	if m == nil {
		return
	}
	m.WatcherDowngrades.Inc()
}

// AddWatcherProbeMerges counts directories folded in by a probe
func (m *Metrics) AddWatcherProbeMerges(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.WatcherProbeMerges.Add(float64(n))
}

// SetTerminalSessions sets the number of live sessions
func (m *Metrics) SetTerminalSessions(count int) {
	if m == nil {
		return
	}
	m.TerminalSessions.Set(float64(count))
}

// IncTerminalCreated counts a session by backing mode
func (m *Metrics) IncTerminalCreated(mode string) {
	if m == nil {
		return
	}
	m.TerminalCreated.WithLabelValues(mode).Inc()
}

// IncTerminalSpawnErrors counts a spawn failure
func (m *Metrics) IncTerminalSpawnErrors() {
	if m == nil {
		return
	}
	m.TerminalSpawnErrors.Inc()
}

// IncExtensionLoads counts one runtime reload
func (m *Metrics) IncExtensionLoads() {
	if m == nil {
		return
	}
	m.ExtensionLoads.Inc()
}

// IncExtensionFailures counts a failed extension by stage (manifest, activation)
func (m *Metrics) IncExtensionFailures(stage string) {
	if m == nil {
		return
	}
	m.ExtensionFailures.WithLabelValues(stage).Inc()
}

// IncExtensionCommands counts a command execution by outcome
func (m *Metrics) IncExtensionCommands(status string) {
	if m == nil {
		return
	}
	m.ExtensionCommands.WithLabelValues(status).Inc()
}

// IncExtensionDisposeErrors counts a failed disposable
func (m *Metrics) IncExtensionDisposeErrors() {
	if m == nil {
		return
	}
	m.ExtensionDisposeErr.Inc()
}
