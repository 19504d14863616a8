package metrics

import "time"

// S3Metrics is the consumer-side interface for gateway metrics. Handlers
// and the pool/maintainer packages take an S3Metrics and must treat a nil
// value as "metrics disabled" (zero overhead) rather than special-casing
// it at every call site — the free functions below do that for them.
type S3Metrics interface {
	// ObserveOperation records an S3 REST operation's outcome and duration.
	ObserveOperation(operation string, duration time.Duration, err error)
	// RecordBytes records bytes transferred by a PutObject/GetObject/UploadPart call.
	RecordBytes(operation string, bytes int64)
	// ObservePoolSubmit records time spent waiting for a pool worker to
	// accept a submitted closure, broken down by bucket and worker role.
	ObservePoolSubmit(bucket, role string, wait time.Duration)
	// RecordQueueDepth reports the current depth of a pool's work queue.
	RecordQueueDepth(bucket, role string, depth int)
	// RecordMaintainerTick records one background maintenance pass over a bucket.
	RecordMaintainerTick(bucket string, duration time.Duration, err error)
	// RecordTokenStoreSize reports the number of live continuation tokens.
	RecordTokenStoreSize(n int)
	// RecordBucketCount reports the number of registered buckets.
	RecordBucketCount(n int)
}

// NewS3Metrics creates a new Prometheus-backed S3Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). When
// nil is returned, callers should pass nil through to handlers/pools,
// which results in zero overhead.
func NewS3Metrics() S3Metrics {
	if !IsEnabled() {
		return nil
	}
	if newPrometheusS3Metrics == nil {
		return nil
	}
	return newPrometheusS3Metrics()
}

// newPrometheusS3Metrics is implemented in pkg/metrics/prometheus/s3.go.
// This indirection avoids an import cycle (prometheus imports metrics for
// IsEnabled/GetRegistry) while keeping this package's API dependency-free.
var newPrometheusS3Metrics func() S3Metrics

// RegisterS3MetricsConstructor registers the Prometheus S3 metrics constructor.
// Called by pkg/metrics/prometheus/s3.go during package initialization.
func RegisterS3MetricsConstructor(constructor func() S3Metrics) {
	newPrometheusS3Metrics = constructor
}

// ObserveOperation records an S3 operation with its duration and outcome.
func ObserveOperation(m S3Metrics, operation string, duration time.Duration, err error) {
	if m != nil {
		m.ObserveOperation(operation, duration, err)
	}
}

// RecordBytes records bytes transferred for put/get/upload-part operations.
func RecordBytes(m S3Metrics, operation string, bytes int64) {
	if m != nil && bytes > 0 {
		m.RecordBytes(operation, bytes)
	}
}

// ObservePoolSubmit records submission wait time for a pool worker.
func ObservePoolSubmit(m S3Metrics, bucket, role string, wait time.Duration) {
	if m != nil {
		m.ObservePoolSubmit(bucket, role, wait)
	}
}

// RecordQueueDepth reports a pool's current queue depth.
func RecordQueueDepth(m S3Metrics, bucket, role string, depth int) {
	if m != nil {
		m.RecordQueueDepth(bucket, role, depth)
	}
}

// RecordMaintainerTick records one background maintenance pass.
func RecordMaintainerTick(m S3Metrics, bucket string, duration time.Duration, err error) {
	if m != nil {
		m.RecordMaintainerTick(bucket, duration, err)
	}
}

// RecordTokenStoreSize reports the number of live continuation tokens.
func RecordTokenStoreSize(m S3Metrics, n int) {
	if m != nil {
		m.RecordTokenStoreSize(n)
	}
}

// RecordBucketCount reports the number of registered buckets.
func RecordBucketCount(m S3Metrics, n int) {
	if m != nil {
		m.RecordBucketCount(n)
	}
}
