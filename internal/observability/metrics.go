package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "noise_monitor"

// Metrics holds the Prometheus collectors for acquisition and replication.
type Metrics struct {
	// Acquisition.
	ReadingsAppended   prometheus.Counter
	AppendErrors       prometheus.Counter
	DecodeErrors       *prometheus.CounterVec // labels: reason={malformed_frame,unsupported_device,unsupported_units}
	NotificationsDrop  prometheus.Counter
	ConnectionAttempts prometheus.Counter
	ConnectionFailures *prometheus.CounterVec // labels: stage={connect,subscribe,write,reply}
	ConnectionState    prometheus.Gauge
	LastLevel          prometheus.Gauge

	// Replication.
	SyncCycles   *prometheus.CounterVec // labels: op={create,update,skip}, outcome={success,error}
	SyncDuration prometheus.Histogram
	SyncBytes    prometheus.Gauge

	// Gatherer exposes the registry the collectors were registered with.
	Gatherer prometheus.Gatherer
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_appended_total",
			Help:      "Readings written to the local partition log.",
		}),
		AppendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_errors_total",
			Help:      "Readings lost because the partition write failed.",
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Notification frames rejected by the decoder.",
		}, []string{"reason"}),
		NotificationsDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications discarded because the acquisition loop was busy.",
		}),
		ConnectionAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_attempts_total",
			Help:      "Device connection attempts.",
		}),
		ConnectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_failures_total",
			Help:      "Device sessions ended by a transport failure, by stage.",
		}, []string{"stage"}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "0 disconnected, 1 connecting, 2 connected, 3 streaming.",
		}),
		LastLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_level_dba",
			Help:      "Most recent decoded sound level in dB(A).",
		}),
		SyncCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cycles_total",
			Help:      "Replica sync attempts by operation and outcome.",
		}, []string{"op", "outcome"}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of one upload of the current partition including the name lookup.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SyncBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_bytes",
			Help:      "Size of the current partition at its last upload.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReadingsAppended,
		m.AppendErrors,
		m.DecodeErrors,
		m.NotificationsDrop,
		m.ConnectionAttempts,
		m.ConnectionFailures,
		m.ConnectionState,
		m.LastLevel,
		m.SyncCycles,
		m.SyncDuration,
		m.SyncBytes,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	m.Gatherer = prometheus.DefaultGatherer
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.collectors()...)
	m.Gatherer = reg
	return m
}
