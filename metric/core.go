package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all engine-level metrics (not table-specific)
type Metrics struct {
	// Table operation metrics
	TableOperations     *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	ChunksWritten       *prometheus.CounterVec
	ChainLength         *prometheus.HistogramVec
	ReconstructFailures *prometheus.CounterVec
	DeleteFallbacks     *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec

	// Substrate metrics
	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all engine metrics
func NewMetrics() *Metrics {
	return &Metrics{
		TableOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "daad",
				Subsystem: "table",
				Name:      "operations_total",
				Help:      "Total number of table operations",
			},
			[]string{"table", "operation", "status"},
		),

		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "daad",
				Subsystem: "table",
				Name:      "operation_duration_seconds",
				Help:      "Table operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"table", "operation"},
		),

		ChunksWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "daad",
				Subsystem: "record",
				Name:      "chunks_written_total",
				Help:      "Total number of chunk messages written",
			},
			[]string{"table"},
		),

		ChainLength: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "daad",
				Subsystem: "record",
				Name:      "chain_length",
				Help:      "Number of chunk messages per record chain",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
			},
			[]string{"table"},
		),

		ReconstructFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "daad",
				Subsystem: "record",
				Name:      "reconstruct_failures_total",
				Help:      "Total number of broken or undecodable record chains",
			},
			[]string{"table", "reason"},
		),

		DeleteFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "daad",
				Subsystem: "table",
				Name:      "delete_fallbacks_total",
				Help:      "Total number of bulk deletions that fell back to per-message deletes",
			},
			[]string{"table"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "daad",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),

		// Substrate metrics
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "daad",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "daad",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "daad",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "daad",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open)",
			},
		),
	}
}

// RecordTableOperation increments the operation counter
func (c *Metrics) RecordTableOperation(table, operation, status string) {
	c.TableOperations.WithLabelValues(table, operation, status).Inc()
}

// RecordOperationDuration records table operation time
func (c *Metrics) RecordOperationDuration(table, operation string, duration time.Duration) {
	c.OperationDuration.WithLabelValues(table, operation).Observe(duration.Seconds())
}

// RecordChunksWritten adds to the chunk counter for a table
func (c *Metrics) RecordChunksWritten(table string, count int) {
	c.ChunksWritten.WithLabelValues(table).Add(float64(count))
}

// RecordChainLength records the chunk count of a written or read chain
func (c *Metrics) RecordChainLength(table string, length int) {
	c.ChainLength.WithLabelValues(table).Observe(float64(length))
}

// RecordReconstructFailure increments the broken-chain counter
func (c *Metrics) RecordReconstructFailure(table, reason string) {
	c.ReconstructFailures.WithLabelValues(table, reason).Inc()
}

// RecordDeleteFallback increments the bulk-delete fallback counter
func (c *Metrics) RecordDeleteFallback(table string) {
	c.DeleteFallbacks.WithLabelValues(table).Inc()
}

// RecordError increments error counter
func (c *Metrics) RecordError(component, errorType string) {
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(open bool) {
	value := 0.0
	if open {
		value = 1.0
	}
	c.NATSCircuitBreaker.Set(value)
}
