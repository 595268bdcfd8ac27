package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// API Metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Upstream Metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	// Session Metrics
	ActiveSessions    prometheus.GaugeFunc
	SessionsEvicted   prometheus.Counter
	QuestionsAnswered *prometheus.CounterVec

	// Speech Metrics
	TranscriptionConnections prometheus.Gauge

	namespace string
	factory   promauto.Factory
}

// NewCollector creates a new metrics collector registered on reg.
// A nil reg uses the default Prometheus registry.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		namespace: namespace,
		factory:   factory,

		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by route, method, and status",
			},
			[]string{"route", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"route"},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type",
			},
			[]string{"error_type", "route"},
		),

		UpstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Outbound provider requests by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		UpstreamRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Outbound provider request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
			},
			[]string{"provider"},
		),

		SessionsEvicted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_evicted_total",
				Help:      "Total number of sessions removed by the idle sweep",
			},
		),

		QuestionsAnswered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "questions_answered_total",
				Help:      "Answers generated by mode",
			},
			[]string{"mode"},
		),

		TranscriptionConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transcription_connections",
				Help:      "Number of open real-time transcription relays",
			},
		),
	}
}

// RecordAPIRequest increments the request counter and observes its duration.
func (c *Collector) RecordAPIRequest(route, method, status string, elapsed time.Duration) {
	c.APIRequestsTotal.WithLabelValues(route, method, status).Inc()
	c.APIRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorType, route string) {
	c.APIErrorsTotal.WithLabelValues(errorType, route).Inc()
}

// ObserveUpstream records one outbound provider call.
func (c *Collector) ObserveUpstream(provider, outcome string, elapsed time.Duration) {
	c.UpstreamRequestsTotal.WithLabelValues(provider, outcome).Inc()
	c.UpstreamRequestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordAnswer counts one generated answer.
func (c *Collector) RecordAnswer(mode string) {
	c.QuestionsAnswered.WithLabelValues(mode).Inc()
}

// RecordSweep counts sessions removed by an idle sweep.
func (c *Collector) RecordSweep(evicted int) {
	c.SessionsEvicted.Add(float64(evicted))
}

// TrackSessions exposes the number of sessions held in memory, read from count at scrape
// time. Call it once per collector.
func (c *Collector) TrackSessions(count func() int) {
	c.ActiveSessions = c.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "active_sessions",
			Help:      "Number of chat sessions currently held in memory",
		},
		func() float64 { return float64(count()) },
	)
}
