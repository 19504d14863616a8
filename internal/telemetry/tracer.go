package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for S3 gateway operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrClientPort = "client.port"

	// ========================================================================
	// S3 operation attributes
	// ========================================================================
	AttrOperation     = "s3.operation"      // PutObject, GetObject, ListObjectsV2, ...
	AttrBucket        = "s3.bucket"
	AttrSourceBucket  = "s3.source_bucket"
	AttrKey           = "s3.key"
	AttrSourceKey     = "s3.source_key"
	AttrPrefix        = "s3.prefix"
	AttrUploadID      = "s3.upload_id"
	AttrPartNumber    = "s3.part_number"
	AttrSize          = "s3.size"
	AttrRangeStart    = "s3.range_start"
	AttrRangeEnd      = "s3.range_end"
	AttrMD5           = "s3.md5"
	AttrStatus        = "s3.status"
	AttrStatusMsg     = "s3.status_msg"
	AttrMaxKeys       = "s3.max_keys"
	AttrKeyCount      = "s3.key_count"
	AttrIsTruncated   = "s3.is_truncated"
	AttrErrorCode     = "s3.error_code"

	// ========================================================================
	// Auth attributes
	// ========================================================================
	AttrAccessKey = "s3.access_key"

	// ========================================================================
	// Pool / engine attributes
	// ========================================================================
	AttrWorkerRole  = "pool.worker_role" // writer, reader
	AttrQueueDepth  = "pool.queue_depth"
	AttrToken       = "pool.continuation_token"
)

// Span names.
const (
	SpanRequest = "s3.request"

	SpanPoolWrite  = "pool.write"
	SpanPoolRead   = "pool.read"
	SpanMaintainer = "maintainer.tick"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// S3Operation returns an attribute for the S3 operation name
func S3Operation(name string) attribute.KeyValue {
	return attribute.String(AttrOperation, name)
}

// S3Bucket returns an attribute for a bucket name
func S3Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// S3SourceBucket returns an attribute for a CopyObject source bucket
func S3SourceBucket(name string) attribute.KeyValue {
	return attribute.String(AttrSourceBucket, name)
}

// S3ObjectKey returns an attribute for an object key
func S3ObjectKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// S3SourceKey returns an attribute for a CopyObject source key
func S3SourceKey(key string) attribute.KeyValue {
	return attribute.String(AttrSourceKey, key)
}

// S3Prefix returns an attribute for a list-objects prefix
func S3Prefix(prefix string) attribute.KeyValue {
	return attribute.String(AttrPrefix, prefix)
}

// S3UploadID returns an attribute for a multipart upload id
func S3UploadID(id string) attribute.KeyValue {
	return attribute.String(AttrUploadID, id)
}

// S3PartNumber returns an attribute for a multipart part number
func S3PartNumber(n int) attribute.KeyValue {
	return attribute.Int(AttrPartNumber, n)
}

// S3Size returns an attribute for an object or range size
func S3Size(size int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, size)
}

// S3Range returns attributes for a byte-range request
func S3Range(start, end int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(AttrRangeStart, start),
		attribute.Int64(AttrRangeEnd, end),
	}
}

// S3MD5 returns an attribute for a hex-lowercase MD5/ETag
func S3MD5(hex string) attribute.KeyValue {
	return attribute.String(AttrMD5, hex)
}

// S3Status returns an attribute for HTTP status code
func S3Status(status int) attribute.KeyValue {
	return attribute.Int(AttrStatus, status)
}

// S3ErrorCode returns an attribute for the S3 error code
func S3ErrorCode(code string) attribute.KeyValue {
	return attribute.String(AttrErrorCode, code)
}

// S3MaxKeys returns an attribute for a ListObjects max-keys parameter
func S3MaxKeys(n int) attribute.KeyValue {
	return attribute.Int(AttrMaxKeys, n)
}

// S3KeyCount returns an attribute for a ListObjects returned key count
func S3KeyCount(n int) attribute.KeyValue {
	return attribute.Int(AttrKeyCount, n)
}

// S3IsTruncated returns an attribute for ListObjects truncation
func S3IsTruncated(truncated bool) attribute.KeyValue {
	return attribute.Bool(AttrIsTruncated, truncated)
}

// S3AccessKey returns an attribute for the caller's SigV4 access key
func S3AccessKey(key string) attribute.KeyValue {
	return attribute.String(AttrAccessKey, key)
}

// PoolWorkerRole returns an attribute identifying a pool worker (writer/reader)
func PoolWorkerRole(role string) attribute.KeyValue {
	return attribute.String(AttrWorkerRole, role)
}

// PoolQueueDepth returns an attribute for a pool's current queue depth
func PoolQueueDepth(n int) attribute.KeyValue {
	return attribute.Int(AttrQueueDepth, n)
}

// ContinuationToken returns an attribute for a continuation token id
func ContinuationToken(token string) attribute.KeyValue {
	return attribute.String(AttrToken, token)
}

// StartS3Span starts a span for an inbound S3 REST operation.
func StartS3Span(ctx context.Context, operation, bucket, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{S3Operation(operation)}
	if bucket != "" {
		allAttrs = append(allAttrs, S3Bucket(bucket))
	}
	if key != "" {
		allAttrs = append(allAttrs, S3ObjectKey(key))
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "s3."+operation, trace.WithAttributes(allAttrs...))
}

// StartMaintainerSpan starts a span for one background maintenance pass
// over a single bucket.
func StartMaintainerSpan(ctx context.Context, bucket string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanMaintainer, trace.WithAttributes(S3Bucket(bucket)))
}

// StartPoolSpan starts a span for a connection pool submission.
func StartPoolSpan(ctx context.Context, role, bucket string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	name := SpanPoolRead
	if role == "writer" {
		name = SpanPoolWrite
	}
	allAttrs := []attribute.KeyValue{PoolWorkerRole(role), S3Bucket(bucket)}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}
