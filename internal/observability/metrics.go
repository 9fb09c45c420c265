// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Feed metrics
	TicksReceived *prometheus.CounterVec
	TicksInvalid  prometheus.Counter

	// Strategy metrics
	SignalsEmitted *prometheus.CounterVec
	StrategyErrors *prometheus.CounterVec

	// Execution metrics
	OrdersSubmitted prometheus.Counter
	OrderOutcomes   *prometheus.CounterVec
	OrderRoundtrip  prometheus.Histogram

	// Event store metrics
	EventsAppended prometheus.Counter
	AppendRetries  prometheus.Counter
	AppendFailures prometheus.Counter
	AppendDuration prometheus.Histogram

	// Pipeline metrics
	PipelineRunning  prometheus.Gauge
	SymbolsActive    prometheus.Gauge
	SymbolsSuspended prometheus.Gauge
	TickQueueDepth   *prometheus.GaugeVec

	// Snapshot metrics
	SnapshotsTaken   prometheus.Counter
	TimeseriesPoints prometheus.Counter

	// Health metrics
	LastAppendTimestamp prometheus.Gauge
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "rx_trader"
	}

	return &Metrics{
		// Feed metrics
		TicksReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ticks_received_total",
			Help:      "Total number of ticks received by symbol",
		}, []string{"symbol"}),
		TicksInvalid: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ticks_invalid_total",
			Help:      "Total number of ticks rejected at the boundary",
		}),

		// Strategy metrics
		SignalsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "signals_emitted_total",
			Help:      "Total number of signals emitted by strategy and side",
		}, []string{"strategy", "side"}),
		StrategyErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "errors_total",
			Help:      "Total number of strategy errors by strategy",
		}, []string{"strategy"}),

		// Execution metrics
		OrdersSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_submitted_total",
			Help:      "Total number of orders submitted to venues",
		}),
		OrderOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "order_outcomes_total",
			Help:      "Total number of terminal order outcomes by kind",
		}, []string{"outcome"}),
		OrderRoundtrip: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "order_roundtrip_seconds",
			Help:      "Time from order submission to terminal event",
			Buckets:   prometheus.DefBuckets,
		}),

		// Event store metrics
		EventsAppended: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "events_appended_total",
			Help:      "Total number of events appended to the store",
		}),
		AppendRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "append_retries_total",
			Help:      "Total number of append retries on retryable errors",
		}),
		AppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "append_failures_total",
			Help:      "Total number of appends that exhausted retries",
		}),
		AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "append_duration_seconds",
			Help:      "Event store append duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Pipeline metrics
		PipelineRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "running",
			Help:      "1 while the pipeline controller is running",
		}),
		SymbolsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "symbols_active",
			Help:      "Number of symbol pipelines currently running",
		}),
		SymbolsSuspended: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "symbols_suspended",
			Help:      "Number of symbol pipelines suspended after errors",
		}),
		TickQueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "tick_queue_depth",
			Help:      "Queued ticks per symbol awaiting processing",
		}, []string{"symbol"}),

		// Snapshot metrics
		SnapshotsTaken: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "taken_total",
			Help:      "Total number of portfolio snapshots appended",
		}),
		TimeseriesPoints: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "timeseries_points_total",
			Help:      "Total number of portfolio points written to timeseries storage",
		}),

		// Health metrics
		LastAppendTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_append_timestamp",
			Help:      "Unix timestamp of the last successful append",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTick counts a received tick.
func (m *Metrics) RecordTick(symbol string) {
	if m == nil {
		return
	}
	m.TicksReceived.WithLabelValues(symbol).Inc()
}

// RecordInvalidTick counts a tick rejected at the boundary.
func (m *Metrics) RecordInvalidTick() {
	if m == nil {
		return
	}
	m.TicksInvalid.Inc()
}

// RecordSignal counts an emitted signal.
func (m *Metrics) RecordSignal(strategy, side string) {
	if m == nil {
		return
	}
	m.SignalsEmitted.WithLabelValues(strategy, side).Inc()
}

// RecordStrategyError counts a strategy error.
func (m *Metrics) RecordStrategyError(strategy string) {
	if m == nil {
		return
	}
	m.StrategyErrors.WithLabelValues(strategy).Inc()
}

// RecordOrderSubmitted counts a submitted order.
func (m *Metrics) RecordOrderSubmitted() {
	if m == nil {
		return
	}
	m.OrdersSubmitted.Inc()
}

// RecordOrderOutcome counts a terminal order outcome and its roundtrip.
func (m *Metrics) RecordOrderOutcome(outcome string, roundtripSeconds float64) {
	if m == nil {
		return
	}
	m.OrderOutcomes.WithLabelValues(outcome).Inc()
	m.OrderRoundtrip.Observe(roundtripSeconds)
}

// RecordAppend records a successful append of n events.
func (m *Metrics) RecordAppend(n int, seconds float64, unixNow int64) {
	if m == nil {
		return
	}
	m.EventsAppended.Add(float64(n))
	m.AppendDuration.Observe(seconds)
	m.LastAppendTimestamp.Set(float64(unixNow))
}

// RecordAppendRetry counts an append retry.
func (m *Metrics) RecordAppendRetry() {
	if m == nil {
		return
	}
	m.AppendRetries.Inc()
}

// RecordAppendFailure counts an append that exhausted its retries.
func (m *Metrics) RecordAppendFailure() {
	if m == nil {
		return
	}
	m.AppendFailures.Inc()
}

// SetRunning flips the pipeline running gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.PipelineRunning.Set(1)
	} else {
		m.PipelineRunning.Set(0)
	}
}

// SetSymbolCounts updates the active and suspended symbol gauges.
func (m *Metrics) SetSymbolCounts(active, suspended int) {
	if m == nil {
		return
	}
	m.SymbolsActive.Set(float64(active))
	m.SymbolsSuspended.Set(float64(suspended))
}

// SetTickQueueDepth updates the queue depth gauge for a symbol.
func (m *Metrics) SetTickQueueDepth(symbol string, depth int) {
	if m == nil {
		return
	}
	m.TickQueueDepth.WithLabelValues(symbol).Set(float64(depth))
}

// RecordSnapshot counts an appended portfolio snapshot.
func (m *Metrics) RecordSnapshot() {
	if m == nil {
		return
	}
	m.SnapshotsTaken.Inc()
}

// RecordTimeseriesPoint counts a portfolio point written to storage.
func (m *Metrics) RecordTimeseriesPoint() {
	if m == nil {
		return
	}
	m.TimeseriesPoints.Inc()
}
