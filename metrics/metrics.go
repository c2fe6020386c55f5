// Package metrics 定义推荐服务的 Prometheus 指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hybridrec_recommendations_total",
			Help: "Total number of recommendation requests by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hybridrec_recommendation_duration_seconds",
			Help:    "Latency of recommendation requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hybridrec_source_failures_total",
			Help: "Signal sources that failed or timed out during fan-out",
		},
		[]string{"source"},
	)

	SourceCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hybridrec_source_candidates",
			Help:    "Number of candidates returned per signal source",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100, 200},
		},
		[]string{"source"},
	)

	InteractionsCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hybridrec_interactions_captured_total",
			Help: "Interactions captured by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hybridrec_cache_hits_total",
		Help: "Recommendation result cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hybridrec_cache_misses_total",
		Help: "Recommendation result cache misses",
	})

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hybridrec_api_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hybridrec_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hybridrec_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hybridrec_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"},
	)

	FeedbackEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hybridrec_feedback_events_total",
			Help: "Feedback events handed to the collector by outcome",
		},
		[]string{"outcome"},
	)

	TrendingSnapshotAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hybridrec_trending_snapshot_timestamp_seconds",
		Help: "Unix time of the last successful trending snapshot",
	})
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordRecommendation 记录一次推荐请求。
func RecordRecommendation(strategy string, duration time.Duration, err error) {
	if strategy == "" {
		strategy = "none"
	}
	RecommendationsTotal.WithLabelValues(strategy, outcome(err)).Inc()
	RecommendationDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordSource 记录单个召回源的结果。
func RecordSource(source string, count int, err error) {
	if err != nil {
		SourceFailures.WithLabelValues(source).Inc()
		return
	}
	SourceCandidates.WithLabelValues(source).Observe(float64(count))
}

func RecordCapture(typ string, err error) {
	InteractionsCaptured.WithLabelValues(typ, outcome(err)).Inc()
}

func RecordCache(hit bool) {
	if hit {
		CacheHits.Inc()
	} else {
		CacheMisses.Inc()
	}
}

func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordFeedback(err error) {
	FeedbackEvents.WithLabelValues(outcome(err)).Inc()
}
