package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricEntriesIngested      = "cloudlog_entries_ingested_total"
	MetricNotificationsIgnored = "cloudlog_notifications_ignored_total"
	MetricConnectAttempts      = "cloudlog_connect_attempts_total"
	MetricConnectFailures      = "cloudlog_connect_failures_total"
	MetricIngestorState        = "cloudlog_ingestor_state"
	MetricBufferEntries        = "cloudlog_buffer_entries"
	MetricSinkErrors           = "cloudlog_sink_errors_total"
)

// Metrics contains Prometheus metrics for the ingestor.
// All operations are thread-safe.
type Metrics struct {
	entriesIngested      *prometheus.CounterVec
	notificationsIgnored prometheus.Counter
	connectAttempts      prometheus.Counter
	connectFailures      prometheus.Counter
	state                prometheus.Gauge
	bufferEntries        prometheus.Gauge
	sinkErrors           *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		entriesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEntriesIngested,
			Help: "Total number of cloud variable changes appended to the log",
		}, []string{"action"}),
		notificationsIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricNotificationsIgnored,
			Help: "Total number of notifications with a method that is not recorded",
		}),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricConnectAttempts,
			Help: "Total number of connection attempts to the cloud service",
		}),
		connectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricConnectFailures,
			Help: "Total number of failed connection attempts to the cloud service",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricIngestorState,
			Help: "Current ingestor state (0=disconnected, 1=connecting, 2=listening)",
		}),
		bufferEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricBufferEntries,
			Help: "Number of entries currently held in the log buffer",
		}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSinkErrors,
			Help: "Total number of entries a sink failed to publish",
		}, []string{"sink"}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncEntriesIngested increments the ingested counter for action.
func (m *Metrics) IncEntriesIngested(action string) {
	m.entriesIngested.WithLabelValues(action).Inc()
}

// IncNotificationsIgnored increments the ignored notification counter.
func (m *Metrics) IncNotificationsIgnored() {
	m.notificationsIgnored.Inc()
}

// IncConnectAttempts increments the connection attempt counter.
func (m *Metrics) IncConnectAttempts() {
	m.connectAttempts.Inc()
}

// IncConnectFailures increments the connection failure counter.
func (m *Metrics) IncConnectFailures() {
	m.connectFailures.Inc()
}

// SetState records the current ingestor state.
func (m *Metrics) SetState(s State) {
	m.state.Set(float64(s))
}

// SetBufferEntries records the current buffer length.
func (m *Metrics) SetBufferEntries(n int) {
	m.bufferEntries.Set(float64(n))
}

// IncSinkErrors increments the error counter for the named sink.
func (m *Metrics) IncSinkErrors(sink string) {
	m.sinkErrors.WithLabelValues(sink).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.entriesIngested,
		m.notificationsIgnored,
		m.connectAttempts,
		m.connectFailures,
		m.state,
		m.bufferEntries,
		m.sinkErrors,
	}
}
