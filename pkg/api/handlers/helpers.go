// Package handlers implements the S3 REST operation handlers: bucket
// listing/lifecycle, object CRUD, listing, copy, and multipart upload.
package handlers

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"io"
	"net/http"
	"regexp"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"

	"github.com/s3lite/s3lite/internal/logger"
	"github.com/s3lite/s3lite/internal/telemetry"
	"github.com/s3lite/s3lite/pkg/contoken"
	"github.com/s3lite/s3lite/pkg/metrics"
	"github.com/s3lite/s3lite/pkg/registry"
	"github.com/s3lite/s3lite/pkg/s3err"
	"github.com/s3lite/s3lite/pkg/sqlpool"
)

// S3Handler holds the dependencies shared by every S3 operation handler.
type S3Handler struct {
	Registry *registry.Registry
	Tokens   *contoken.Store
	Metrics  metrics.S3Metrics
}

// New creates an S3Handler. tokens and m may both be nil in tests.
func New(reg *registry.Registry, tokens *contoken.Store, m metrics.S3Metrics) *S3Handler {
	return &S3Handler{Registry: reg, Tokens: tokens, Metrics: m}
}

// iso8601 is the S3 LastModified/CreationDate wire format.
const iso8601 = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(iso8601)
}

func nowUTC() time.Time {
	return time.Now()
}

// requestID returns the chi request id used in the S3 error document's
// RequestId field.
func requestID(r *http.Request) string {
	return chimiddleware.GetReqID(r.Context())
}

// writeS3Error writes err as the S3 error XML document and logs it once at
// the handler boundary.
func writeS3Error(w http.ResponseWriter, r *http.Request, resource string, err error) {
	se := s3err.Wrap(err)
	logger.WarnCtx(r.Context(), "s3 operation failed",
		"path", r.URL.Path,
		logger.ErrorCode(se.Code),
		logger.Err(se),
	)
	se.Write(w, resource, requestID(r))
}

// writeXML renders body as an XML document with the given status code.
func writeXML(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(body)
}

// bucketPool resolves name to its pool, writing NoSuchBucket on failure.
func (h *S3Handler) bucketPool(w http.ResponseWriter, r *http.Request, name string) (*sqlpool.Pool, bool) {
	pool, err := h.Registry.Get(name)
	if err != nil {
		writeS3Error(w, r, name, s3err.NoSuchBucket())
		return nil, false
	}
	return pool, true
}

// readBody drains the request body into memory. Objects are handled whole
// in one pass; there is no streaming write path to SQLite.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// verifyContentMD5 decodes the base64 Content-MD5 header (if present) and
// compares it against the already-computed raw digest.
func verifyContentMD5(r *http.Request, digest [16]byte) error {
	header := r.Header.Get("Content-MD5")
	if header == "" {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil || len(decoded) != len(digest) {
		return s3err.BadDigest()
	}
	for i := range decoded {
		if decoded[i] != digest[i] {
			return s3err.BadDigest()
		}
	}
	return nil
}

// callerAccessKeyPattern extracts the SigV4 access key from an Authorization
// header so multipart upload ownership can be checked even outside SigV4
// enforcement.
var callerAccessKeyPattern = regexp.MustCompile(`Credential=([^/]+)/`)

// callerAccessKey returns the caller's SigV4 access key, or "" if the
// request carries no recognizable Authorization header.
func callerAccessKey(r *http.Request) string {
	m := callerAccessKeyPattern.FindStringSubmatch(r.Header.Get("Authorization"))
	if m == nil {
		return ""
	}
	return m[1]
}

// startOperation starts the tracing span for operation and returns a
// finish func that records the outcome in metrics and ends the span.
func (h *S3Handler) startOperation(r *http.Request, operation, bucket, key string) (context.Context, func(err error)) {
	ctx, span := telemetry.StartS3Span(r.Context(), operation, bucket, key)
	start := time.Now()
	return ctx, func(err error) {
		metrics.ObserveOperation(h.Metrics, operation, time.Since(start), err)
		if err != nil {
			span.SetStatus(codes.Error, s3err.Wrap(err).Code)
		}
		span.End()
	}
}
