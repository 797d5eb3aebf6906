package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for footprint, recommendation and HTTP activity.
// All methods are safe on a nil receiver.
type Metrics struct {
	// Footprint calculations by outcome (ok, invalid)
	Calculations *prometheus.CounterVec

	// Recommendation fetches by outcome (success, fallback, stale)
	Fetches *prometheus.CounterVec

	FetchLatency prometheus.Histogram

	// Reaction toggles by kind (like, dislike, save) and resulting state
	Reactions *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// New registers all collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Calculations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "greenprint_footprint_calculations_total",
			Help: "Footprint calculations by outcome",
		}, []string{"outcome"}),

		Fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "greenprint_recommendation_fetches_total",
			Help: "Recommendation fetches by outcome",
		}, []string{"outcome"}),

		FetchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "greenprint_recommendation_fetch_duration_seconds",
			Help:    "Duration of recommendation fetches including fallback",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		Reactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "greenprint_insight_reactions_total",
			Help: "Insight reaction toggles by kind and resulting state",
		}, []string{"kind", "state"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "greenprint_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "greenprint_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) IncCalculation(outcome string) {
	if m != nil {
		m.Calculations.WithLabelValues(outcome).Inc()
	}
}

// ObserveFetch records one recommendation fetch.
func (m *Metrics) ObserveFetch(outcome string, d time.Duration) {
	if m != nil {
		m.Fetches.WithLabelValues(outcome).Inc()
		m.FetchLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncReaction(kind string, on bool) {
	if m != nil {
		state := "off"
		if on {
			state = "on"
		}
		m.Reactions.WithLabelValues(kind, state).Inc()
	}
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(method, route, status).Inc()
		m.HTTPLatency.WithLabelValues(route).Observe(d.Seconds())
	}
}
