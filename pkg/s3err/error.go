// Package s3err defines the S3 error taxonomy returned by gateway handlers.
//
// Every handler-facing error is an *Error, shaped to satisfy
// smithy.APIError so it slots into the same error-inspection idiom already
// used against outbound AWS SDK clients elsewhere in this codebase. Errors
// that originate below the handler layer (engine failures, I/O, context
// cancellation, JSON decode failures, …) are never constructed directly;
// they are funneled through Wrap, which maps what it recognizes and falls
// back to InternalError for everything else — the same blanket-fallback
// discipline a sum-type error enum enforces at compile time.
package s3err

import (
	"context"
	"database/sql"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/smithy-go"
	"github.com/s3lite/s3lite/pkg/bucket"
	"github.com/s3lite/s3lite/pkg/s3xml"
	"github.com/s3lite/s3lite/pkg/sqlpool"
)

// Error is the gateway's S3-shaped error type. It implements
// smithy.APIError and additionally carries the HTTP status code the
// handler layer should write.
type Error struct {
	Code       string
	Message    string
	StatusCode int
	Fault      smithy.ErrorFault
	Resource   string
	cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (resource=%s)", e.Code, e.Message, e.Resource)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any, for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// ErrorCode implements smithy.APIError.
func (e *Error) ErrorCode() string { return e.Code }

// ErrorMessage implements smithy.APIError.
func (e *Error) ErrorMessage() string { return e.Message }

// ErrorFault implements smithy.APIError.
func (e *Error) ErrorFault() smithy.ErrorFault { return e.Fault }

// WithResource returns a copy of e annotated with the S3 resource path
// (bucket, or bucket/key) the error pertains to.
func (e *Error) WithResource(resource string) *Error {
	cp := *e
	cp.Resource = resource
	return &cp
}

func newError(code, message string, status int, fault smithy.ErrorFault) *Error {
	return &Error{Code: code, Message: message, StatusCode: status, Fault: fault}
}

// Named constructors for every code in the gateway's error taxonomy.

func NoSuchBucket() *Error {
	return newError("NoSuchBucket", "The specified bucket does not exist", http.StatusNotFound, smithy.FaultClient)
}

func NoSuchKey() *Error {
	return newError("NoSuchKey", "The specified key does not exist", http.StatusNotFound, smithy.FaultClient)
}

func NoSuchUpload() *Error {
	return newError("NoSuchUpload", "The specified multipart upload does not exist", http.StatusNotFound, smithy.FaultClient)
}

func InvalidToken() *Error {
	return newError("InvalidToken", "The continuation token supplied is invalid or has expired", http.StatusBadRequest, smithy.FaultClient)
}

func BucketAlreadyExists() *Error {
	return newError("BucketAlreadyExists", "The requested bucket name is not available", http.StatusConflict, smithy.FaultClient)
}

func BucketNotEmpty() *Error {
	return newError("BucketNotEmpty", "The bucket you tried to delete is not empty", http.StatusConflict, smithy.FaultClient)
}

func IncompleteBody() *Error {
	return newError("IncompleteBody", "You did not provide the number of bytes specified by the Content-Length HTTP header", http.StatusBadRequest, smithy.FaultClient)
}

func UnexpectedContent() *Error {
	return newError("UnexpectedContent", "This request does not support content", http.StatusBadRequest, smithy.FaultClient)
}

func InvalidRequest(message string) *Error {
	return newError("InvalidRequest", message, http.StatusBadRequest, smithy.FaultClient)
}

func InvalidArgument(message string) *Error {
	return newError("InvalidArgument", message, http.StatusBadRequest, smithy.FaultClient)
}

func InvalidStorageClass() *Error {
	return newError("InvalidStorageClass", "The storage class you specified is not valid", http.StatusBadRequest, smithy.FaultClient)
}

func BadDigest() *Error {
	return newError("BadDigest", "The Content-MD5 you specified did not match what we received", http.StatusBadRequest, smithy.FaultClient)
}

func InvalidRange() *Error {
	return newError("InvalidRange", "The requested range is not satisfiable", http.StatusRequestedRangeNotSatisfiable, smithy.FaultClient)
}

func AccessDenied() *Error {
	return newError("AccessDenied", "Access Denied", http.StatusForbidden, smithy.FaultClient)
}

func SignatureDoesNotMatch() *Error {
	return newError("SignatureDoesNotMatch", "The request signature we calculated does not match the signature you provided", http.StatusForbidden, smithy.FaultClient)
}

func MethodNotAllowed() *Error {
	return newError("MethodNotAllowed", "database is in read-only mode", http.StatusMethodNotAllowed, smithy.FaultClient)
}

func NotImplemented() *Error {
	return newError("NotImplemented", "A header or query you provided requires functionality that is not implemented", http.StatusNotImplemented, smithy.FaultServer)
}

func InternalError() *Error {
	return newError("InternalError", "We encountered an internal error. Please try again.", http.StatusInternalServerError, smithy.FaultServer)
}

// Wrap maps a lower-layer error into the gateway's taxonomy. It is the
// single place non-handler errors become wire-visible S3 errors: every
// unmapped case falls back to InternalError rather than leaking internals.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return InternalError().withCause(err)
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, bucket.ErrNotFound):
		return NoSuchKey().withCause(err)
	case errors.Is(err, sqlpool.ErrReadOnly):
		return MethodNotAllowed().withCause(err)
	case errors.Is(err, sqlpool.ErrClosed):
		return InternalError().withCause(err)
	default:
		return InternalError().withCause(err)
	}
}

func (e *Error) withCause(err error) *Error {
	cp := *e
	cp.cause = err
	return &cp
}

// Write renders e as the S3 error XML document to w, setting the status
// code and Content-Type header. resource and requestID are echoed into the
// document when non-empty; resource overrides any resource e already
// carries via WithResource.
func (e *Error) Write(w http.ResponseWriter, resource, requestID string) {
	if resource == "" {
		resource = e.Resource
	}
	doc := s3xml.Error{
		Code:      e.Code,
		Message:   e.Message,
		Resource:  resource,
		RequestID: requestID,
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(e.StatusCode)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(doc)
}
