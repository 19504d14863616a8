package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/s3lite/s3lite/pkg/metrics"
)

// s3Metrics is the Prometheus implementation of metrics.S3Metrics.
type s3Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	poolSubmitWait    *prometheus.HistogramVec
	poolQueueDepth    *prometheus.GaugeVec
	maintainerTicks   *prometheus.CounterVec
	maintainerDur     *prometheus.HistogramVec
	tokenStoreSize    prometheus.Gauge
	bucketCount       prometheus.Gauge
}

func init() {
	metrics.RegisterS3MetricsConstructor(NewS3Metrics)
}

// NewS3Metrics creates a new Prometheus-backed metrics.S3Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewS3Metrics() metrics.S3Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &s3Metrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3lite_operations_total",
				Help: "Total number of S3 operations by operation type and outcome",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "s3lite_operation_duration_milliseconds",
				Help: "Duration of S3 operations in milliseconds",
				Buckets: []float64{
					1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000,
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3lite_bytes_transferred_total",
				Help: "Total bytes transferred via S3 operations",
			},
			[]string{"operation"},
		),
		poolSubmitWait: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "s3lite_pool_submit_wait_milliseconds",
				Help: "Time spent waiting for a pool worker to accept a submitted closure",
				Buckets: []float64{
					0.1, 1, 5, 10, 50, 100, 500, 1000,
				},
			},
			[]string{"bucket", "role"},
		),
		poolQueueDepth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "s3lite_pool_queue_depth",
				Help: "Current depth of a connection pool's work queue",
			},
			[]string{"bucket", "role"},
		),
		maintainerTicks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3lite_maintainer_ticks_total",
				Help: "Total number of background maintenance passes by bucket and outcome",
			},
			[]string{"bucket", "status"},
		),
		maintainerDur: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "s3lite_maintainer_tick_duration_milliseconds",
				Help: "Duration of one background maintenance pass over a bucket",
				Buckets: []float64{
					1, 5, 10, 50, 100, 500, 1000, 5000,
				},
			},
			[]string{"bucket"},
		),
		tokenStoreSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "s3lite_continuation_tokens",
				Help: "Current number of live ListObjectsV2 continuation tokens",
			},
		),
		bucketCount: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "s3lite_buckets",
				Help: "Current number of registered buckets",
			},
		),
	}
}

func (m *s3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *s3Metrics) RecordBytes(operation string, bytes int64) {
	m.bytesTransferred.WithLabelValues(operation).Add(float64(bytes))
}

func (m *s3Metrics) ObservePoolSubmit(bucket, role string, wait time.Duration) {
	m.poolSubmitWait.WithLabelValues(bucket, role).Observe(float64(wait.Microseconds()) / 1000.0)
}

func (m *s3Metrics) RecordQueueDepth(bucket, role string, depth int) {
	m.poolQueueDepth.WithLabelValues(bucket, role).Set(float64(depth))
}

func (m *s3Metrics) RecordMaintainerTick(bucket string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.maintainerTicks.WithLabelValues(bucket, status).Inc()
	m.maintainerDur.WithLabelValues(bucket).Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *s3Metrics) RecordTokenStoreSize(n int) {
	m.tokenStoreSize.Set(float64(n))
}

func (m *s3Metrics) RecordBucketCount(n int) {
	m.bucketCount.Set(float64(n))
}
