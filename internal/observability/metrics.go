package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the aggregation pipeline.
// All helper methods are safe to call on a nil *Metrics.
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec   // labels: outcome={success,failure}
	CycleDuration prometheus.Histogram
	TrailStatus   *prometheus.CounterVec   // labels: trail, status
	FetchRetries  *prometheus.CounterVec   // labels: reason={rate_limited,transport}
	Predictions   *prometheus.CounterVec   // labels: outcome={predicted,omitted,rate_limited,error}
	Notifications *prometheus.CounterVec   // labels: outcome={sent,failed,skipped}
	StoreConflict prometheus.Counter
	FetchDuration *prometheus.HistogramVec // labels: host
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.TrailStatus,
		m.FetchRetries,
		m.Predictions,
		m.Notifications,
		m.StoreConflict,
		m.FetchDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so tests
// can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trail_status",
			Name:      "cycles_total",
			Help:      "Aggregation cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trail_status",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete aggregation cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40},
		}),
		TrailStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trail_status",
			Name:      "trail_status_total",
			Help:      "Extracted trail statuses by trail and status.",
		}, []string{"trail", "status"}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trail_status",
			Name:      "fetch_retries_total",
			Help:      "Outbound fetch retries by reason.",
		}, []string{"reason"}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trail_status",
			Name:      "predictions_total",
			Help:      "Weather predictions by outcome.",
		}, []string{"outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trail_status",
			Name:      "notifications_total",
			Help:      "Status change notifications by outcome.",
		}, []string{"outcome"}),
		StoreConflict: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trail_status",
			Name:      "store_conflicts_total",
			Help:      "Persisted status writes rejected because another cycle won the swap.",
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trail_status",
			Name:      "fetch_duration_seconds",
			Help:      "Outbound fetch duration including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"host"}),
	}
}

func (m *Metrics) ObserveRetry(reason string) {
	if m == nil {
		return
	}
	m.FetchRetries.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveFetch(host string, seconds float64) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(host).Observe(seconds)
}

func (m *Metrics) ObserveCycle(success bool, seconds float64) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(seconds)
}

func (m *Metrics) ObserveTrailStatus(trailID, status string) {
	if m == nil {
		return
	}
	m.TrailStatus.WithLabelValues(trailID, status).Inc()
}

func (m *Metrics) ObservePrediction(outcome string) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveNotification(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.StoreConflict.Inc()
}
