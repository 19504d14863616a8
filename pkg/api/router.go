package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/s3lite/s3lite/internal/logger"
	"github.com/s3lite/s3lite/pkg/api/handlers"
	apiMiddleware "github.com/s3lite/s3lite/pkg/api/middleware"
	"github.com/s3lite/s3lite/pkg/config"
	"github.com/s3lite/s3lite/pkg/contoken"
	"github.com/s3lite/s3lite/pkg/metrics"
	"github.com/s3lite/s3lite/pkg/registry"
	"github.com/s3lite/s3lite/pkg/s3err"
)

// NewRouter builds the chi router exposing the S3 REST surface plus the
// unauthenticated health probes.
//
// Routes:
//   - GET /health, /health/ready - liveness and readiness probes
//   - GET / - ListBuckets
//   - PUT/DELETE/HEAD /{bucket} - bucket lifecycle
//   - GET /{bucket}?location - GetBucketLocation
//   - GET /{bucket}?list-type=2 - ListObjectsV2
//   - GET /{bucket} - ListObjects (v1)
//   - POST /{bucket}?delete - DeleteObjects
//   - PUT /{bucket}/{key...} - PutObject, CopyObject (X-Amz-Copy-Source),
//     or UploadPart (?partNumber&uploadId)
//   - GET /{bucket}/{key...} - GetObject, or ListParts (?uploadId)
//   - HEAD /{bucket}/{key...} - HeadObject
//   - DELETE /{bucket}/{key...} - DeleteObject
//   - POST /{bucket}/{key...}?uploads - CreateMultipartUpload
//   - POST /{bucket}/{key...}?uploadId - CompleteMultipartUpload
func NewRouter(cfg *config.Config, reg *registry.Registry, tokens *contoken.Store, m metrics.S3Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	if cfg.DomainName != "" {
		r.Use(virtualHostedStyle(cfg.DomainName))
	}

	if cfg.PermissiveCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodHead},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"ETag", "X-Amz-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		r.Use(apiMiddleware.SigV4(cfg.AccessKey, cfg.SecretKey))
	}

	r.Use(apiMiddleware.ConcurrencyLimit(cfg.ConcurrencyLimit))

	health := handlers.NewHealthHandler(reg)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
	})

	h := handlers.New(reg, tokens, m)

	r.Get("/", h.ListBuckets)

	r.Route("/{bucket}", func(r chi.Router) {
		r.Put("/", h.CreateBucket)
		r.Delete("/", h.DeleteBucket)
		r.Head("/", h.HeadBucket)
		r.Get("/", dispatchBucketGet(h))
		r.Post("/", dispatchBucketPost(h))

		r.Put("/*", dispatchObjectPut(h))
		r.Get("/*", dispatchObjectGet(h))
		r.Head("/*", h.HeadObject)
		r.Delete("/*", h.DeleteObject)
		r.Post("/*", dispatchObjectPost(h))
	})

	return r
}

// dispatchBucketGet distinguishes GetBucketLocation, ListObjectsV2, and
// ListObjects (v1) on the GET /{bucket} path by query string.
func dispatchBucketGet(h *handlers.S3Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Has("location"):
			h.GetBucketLocation(w, r)
		case q.Get("list-type") == "2":
			h.ListObjectsV2(w, r)
		default:
			h.ListObjects(w, r)
		}
	}
}

// dispatchBucketPost distinguishes the batch DeleteObjects operation
// (?delete) from everything else on POST /{bucket}.
func dispatchBucketPost(h *handlers.S3Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("delete") {
			h.DeleteObjects(w, r)
			return
		}
		writeNotImplemented(w, r)
	}
}

// dispatchObjectPut distinguishes PutObject, CopyObject (carried via the
// X-Amz-Copy-Source header rather than the query string), and UploadPart.
func dispatchObjectPut(h *handlers.S3Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Has("partNumber") && q.Has("uploadId"):
			h.UploadPart(w, r)
		case r.Header.Get("X-Amz-Copy-Source") != "":
			h.CopyObject(w, r)
		default:
			h.PutObject(w, r)
		}
	}
}

// dispatchObjectGet distinguishes GetObject from ListParts (?uploadId).
func dispatchObjectGet(h *handlers.S3Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("uploadId") {
			h.ListParts(w, r)
			return
		}
		h.GetObject(w, r)
	}
}

// dispatchObjectPost distinguishes CreateMultipartUpload (?uploads) from
// CompleteMultipartUpload (?uploadId).
func dispatchObjectPost(h *handlers.S3Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Has("uploads"):
			h.CreateMultipartUpload(w, r)
		case q.Has("uploadId"):
			h.CompleteMultipartUpload(w, r)
		default:
			writeNotImplemented(w, r)
		}
	}
}

func writeNotImplemented(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	s3err.NotImplemented().Write(w, r.URL.Path, requestID)
}

// virtualHostedStyle rewrites {bucket}.{domainName} Host headers into the
// equivalent /{bucket}/... path-style request before routing, so a single
// route tree serves both styles.
func virtualHostedStyle(domainName string) func(http.Handler) http.Handler {
	suffix := "." + domainName
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := r.Host
			if i := strings.IndexByte(host, ':'); i != -1 {
				host = host[:i]
			}
			if strings.HasSuffix(host, suffix) {
				bucket := strings.TrimSuffix(host, suffix)
				if bucket != "" {
					r.URL.Path = "/" + bucket + r.URL.Path
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs request start at debug and completion at info, the
// way every handler-bearing server in this codebase does.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
