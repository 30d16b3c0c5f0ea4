// Package telemetry exposes sync counters as Prometheus metrics.
// Metrics are only served by the local control API; nothing is transmitted.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	namespace = "tijara"
	subsystem = "sync"

	operationsPushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_pushed_total",
			Help:      "Operations confirmed pushed, by entity",
		},
		[]string{"entity"},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Push requests by outcome (created, resumed, short_circuited, finalized, failed)",
		},
		[]string{"entity", "outcome"},
	)

	recordsPulled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "records_pulled_total",
			Help:      "Records upserted from pulls, by entity",
		},
		[]string{"entity"},
	)

	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_total",
			Help:      "Queue items dispatched, by item and outcome",
		},
		[]string{"item", "outcome"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of dispatched queue items",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"item"},
	)

	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Errors by error code",
		},
		[]string{"code"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Items waiting in the dispatch queue",
		},
	)

	online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "online",
			Help:      "1 when the central API was reachable on the last check",
		},
	)
)

// Request outcomes.
const (
	OutcomeCreated        = "created"
	OutcomeResumed        = "resumed"
	OutcomeShortCircuited = "short_circuited"
	OutcomeFinalized      = "finalized"
	OutcomeFailed         = "failed"
)

// OperationsPushed adds n confirmed operations for entity.
func OperationsPushed(entity string, n int64) {
	operationsPushed.WithLabelValues(entity).Add(float64(n))
}

// RequestOutcome counts a push request transition.
func RequestOutcome(entity, outcome string) {
	requestsTotal.WithLabelValues(entity, outcome).Inc()
}

// RecordsPulled adds n upserted records for entity.
func RecordsPulled(entity string, n int) {
	recordsPulled.WithLabelValues(entity).Add(float64(n))
}

// Dispatched records one dispatched queue item.
func Dispatched(item, outcome string, d time.Duration) {
	dispatchTotal.WithLabelValues(item, outcome).Inc()
	dispatchDuration.WithLabelValues(item).Observe(d.Seconds())
}

// TrackError counts an error by code.
func TrackError(code string) {
	errorsTotal.WithLabelValues(code).Inc()
}

// SetQueueDepth sets the queue depth gauge.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// SetOnline sets the connectivity gauge.
func SetOnline(isOnline bool) {
	if isOnline {
		online.Set(1)
		return
	}
	online.Set(0)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
