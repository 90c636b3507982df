package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15}

// Metrics groups the monitor's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	probeDuration *prometheus.HistogramVec
	writes        *prometheus.CounterVec
	sites         *prometheus.GaugeVec
	incidents     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	heartbeats    prometheus.Counter
}

// New creates the collectors and registers them with reg. Collectors that
// are already registered are reused.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitewatch",
			Name:      "cycles_total",
			Help:      "Monitoring cycles by result",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sitewatch",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a monitoring cycle",
			Buckets:   histogramBuckets,
		}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sitewatch",
			Name:      "probe_duration_seconds",
			Help:      "Latency of individual probes",
			Buckets:   histogramBuckets,
		}, []string{"type", "status"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitewatch",
			Name:      "state_writes_total",
			Help:      "Persisted state writes by reason",
		}, []string{"reason"}),
		sites: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sitewatch",
			Name:      "sites",
			Help:      "Sites by confirmed status",
		}, []string{"status"}),
		incidents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitewatch",
			Name:      "incidents_total",
			Help:      "Recorded incidents by type",
		}, []string{"type"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitewatch",
			Name:      "notifications_total",
			Help:      "Notification sends by channel and result",
		}, []string{"channel", "result"}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitewatch",
			Name:      "push_heartbeats_total",
			Help:      "Accepted push heartbeats",
		}),
	}
	if reg == nil {
		return m
	}
	m.cycles = register(reg, m.cycles)
	m.cycleDuration = register(reg, m.cycleDuration)
	m.probeDuration = register(reg, m.probeDuration)
	m.writes = register(reg, m.writes)
	m.sites = register(reg, m.sites)
	m.incidents = register(reg, m.incidents)
	m.notifications = register(reg, m.notifications)
	m.heartbeats = register(reg, m.heartbeats)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveProbe(monitorType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.probeDuration.WithLabelValues(monitorType, status).Observe(d.Seconds())
}

func (m *Metrics) IncWrite(reason string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(reason).Inc()
}

// SetSites replaces the per-status site gauges.
func (m *Metrics) SetSites(counts map[string]int) {
	if m == nil {
		return
	}
	m.sites.Reset()
	for status, n := range counts {
		m.sites.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) IncIncident(incidentType string) {
	if m == nil {
		return
	}
	m.incidents.WithLabelValues(incidentType).Inc()
}

func (m *Metrics) IncNotification(channel, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) IncHeartbeat() {
	if m == nil {
		return
	}
	m.heartbeats.Inc()
}
