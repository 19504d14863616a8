package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the S3 gateway.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// S3 Operation
	// ========================================================================
	KeyOperation = "operation"  // S3 operation name: PutObject, ListObjectsV2, etc.
	KeyRequestID = "request_id" // x-amz-request-id style correlation id
	KeyStatus    = "status"     // HTTP status code
	KeyStatusMsg = "status_msg" // Human-readable status message

	// ========================================================================
	// Bucket / Object Identity
	// ========================================================================
	KeyBucket       = "bucket"        // Bucket name
	KeyObjectKey    = "object_key"    // Object key within a bucket
	KeySourceBucket = "source_bucket" // CopyObject source bucket
	KeySourceKey    = "source_key"    // CopyObject source key
	KeyPrefix       = "prefix"        // ListObjects prefix filter
	KeyUploadID     = "upload_id"     // Multipart upload id
	KeyPartNumber   = "part_number"   // Multipart part number

	// ========================================================================
	// I/O / Range
	// ========================================================================
	KeySize       = "size"        // Object or slice size in bytes
	KeyRangeStart = "range_start" // Range request first byte
	KeyRangeEnd   = "range_end"   // Range request last byte (inclusive)
	KeyMD5        = "md5"         // Hex-lowercase MD5 / ETag

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP   = "client_ip"   // Client IP address
	KeyClientPort = "client_port" // Client source port
	KeyAccessKey  = "access_key"  // SigV4 access key of the caller

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // S3 error code (NoSuchKey, ...)
	KeyBytes      = "bytes"       // Bytes transferred

	// ========================================================================
	// Pool / Registry
	// ========================================================================
	KeyWorker       = "worker"        // "writer" or "reader"
	KeyQueueDepth   = "queue_depth"   // Pool submission queue depth
	KeyToken        = "token"         // Continuation token id
	KeyTokenRemain  = "token_remain"  // Rows remaining under a continuation token
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Operation returns a slog.Attr for the S3 operation name
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// RequestID returns a slog.Attr for the request correlation id
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Status returns a slog.Attr for HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for human-readable status message
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// Bucket returns a slog.Attr for bucket name
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// ObjectKey returns a slog.Attr for an object key
func ObjectKey(key string) slog.Attr {
	return slog.String(KeyObjectKey, key)
}

// SourceBucket returns a slog.Attr for a CopyObject source bucket
func SourceBucket(name string) slog.Attr {
	return slog.String(KeySourceBucket, name)
}

// SourceKey returns a slog.Attr for a CopyObject source key
func SourceKey(key string) slog.Attr {
	return slog.String(KeySourceKey, key)
}

// Prefix returns a slog.Attr for a list-objects prefix filter
func Prefix(p string) slog.Attr {
	return slog.String(KeyPrefix, p)
}

// UploadID returns a slog.Attr for a multipart upload id
func UploadID(id string) slog.Attr {
	return slog.String(KeyUploadID, id)
}

// PartNumber returns a slog.Attr for a multipart part number
func PartNumber(n int) slog.Attr {
	return slog.Int(KeyPartNumber, n)
}

// Size returns a slog.Attr for object size
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// RangeStart returns a slog.Attr for a Range request's first byte
func RangeStart(n int64) slog.Attr {
	return slog.Int64(KeyRangeStart, n)
}

// RangeEnd returns a slog.Attr for a Range request's last byte
func RangeEnd(n int64) slog.Attr {
	return slog.Int64(KeyRangeEnd, n)
}

// MD5 returns a slog.Attr for a hex-lowercase MD5/ETag
func MD5(hex string) slog.Attr {
	return slog.String(KeyMD5, hex)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ClientPort returns a slog.Attr for client source port
func ClientPort(port int) slog.Attr {
	return slog.Int(KeyClientPort, port)
}

// AccessKey returns a slog.Attr for the caller's SigV4 access key
func AccessKey(key string) slog.Attr {
	return slog.String(KeyAccessKey, key)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for the S3 error code
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Bytes returns a slog.Attr for a byte count transferred
func Bytes(n int64) slog.Attr {
	return slog.Int64(KeyBytes, n)
}

// Worker returns a slog.Attr identifying a pool worker role
func Worker(role string) slog.Attr {
	return slog.String(KeyWorker, role)
}

// QueueDepth returns a slog.Attr for the pool submission queue depth
func QueueDepth(n int) slog.Attr {
	return slog.Int(KeyQueueDepth, n)
}

// Token returns a slog.Attr for a continuation token id
func Token(id string) slog.Attr {
	return slog.String(KeyToken, id)
}

// TokenRemaining returns a slog.Attr for rows remaining under a token
func TokenRemaining(n int) slog.Attr {
	return slog.Int(KeyTokenRemain, n)
}
