// Package telemetry provides Prometheus metrics for the bridge relay.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	AuthSuccesses   prometheus.Counter
	AuthFailures    *prometheus.CounterVec
	FramesPublished prometheus.Counter
	FramesDropped   prometheus.Counter
	DuplicateLines  prometheus.Counter
	DirectoryCalls  prometheus.Counter
	SyncPasses      prometheus.Counter
	SyncErrors      prometheus.Counter

	// Gauges
	ActiveConnections prometheus.Gauge
	KnownMembers      prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		AuthSuccesses = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_auth_success_total", Help: "Handshakes that authenticated successfully"})
		AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bridge_auth_failure_total", Help: "Handshakes rejected, by reason"}, []string{"reason"})
		FramesPublished = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_frames_published_total", Help: "Frames delivered to relay connections"})
		FramesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_frames_dropped_total", Help: "Frames skipped because a connection was not writable"})
		DuplicateLines = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_duplicate_lines_total", Help: "Chat lines rejected by the deduplication window"})
		DirectoryCalls = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_directory_calls_total", Help: "Outbound membership directory API calls"})
		SyncPasses = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_sync_passes_total", Help: "Membership synchronization passes completed"})
		SyncErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_sync_errors_total", Help: "Per-guild synchronization failures"})
		ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{Name: "bridge_active_connections", Help: "Currently authenticated relay connections"})
		KnownMembers = promauto.NewGauge(prometheus.GaugeOpts{Name: "bridge_known_members", Help: "Members in the current snapshot"})
	})
}

// CountAuthFailure records a rejected handshake if metrics are initialized.
func CountAuthFailure(reason string) {
	if AuthFailures != nil {
		AuthFailures.WithLabelValues(reason).Inc()
	}
}

// SetActiveConnections updates the connection gauge if initialized.
func SetActiveConnections(n int) {
	if ActiveConnections != nil {
		ActiveConnections.Set(float64(n))
	}
}

// SetKnownMembers updates the member gauge if initialized.
func SetKnownMembers(n int) {
	if KnownMembers != nil {
		KnownMembers.Set(float64(n))
	}
}

// Inc increments a counter if metrics are initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}
