// Package middleware holds chi middleware shared across the S3 router:
// SigV4 request verification and the inbound concurrency limiter.
package middleware

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/s3lite/s3lite/internal/logger"
	"github.com/s3lite/s3lite/pkg/s3err"
)

// credentialPattern extracts access key, date, region and service from the
// Credential= field of an AWS4-HMAC-SHA256 Authorization header.
var credentialPattern = regexp.MustCompile(`Credential=([^/]+)/(\d{8})/([^/]+)/([^/]+)/aws4_request`)

const authScheme = "AWS4-HMAC-SHA256"

// SigV4 verifies every request's Authorization header by re-signing the
// request with the configured access/secret key pair and comparing the
// result byte-for-byte against what the client sent ("sign and compare").
// Requests with no Authorization header are rejected; this middleware is
// only installed when both accessKey and secretKey are configured.
func SigV4(accessKey, secretKey string) func(http.Handler) http.Handler {
	signer := v4.NewSigner()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, authScheme) {
				writeAuthError(w, r, s3err.AccessDenied())
				return
			}

			m := credentialPattern.FindStringSubmatch(authHeader)
			if m == nil {
				writeAuthError(w, r, s3err.SignatureDoesNotMatch())
				return
			}
			reqAccessKey, region, service := m[1], m[3], m[4]
			if subtle.ConstantTimeCompare([]byte(reqAccessKey), []byte(accessKey)) != 1 {
				writeAuthError(w, r, s3err.AccessDenied())
				return
			}

			signTime, err := signingTime(r)
			if err != nil {
				writeAuthError(w, r, s3err.SignatureDoesNotMatch())
				return
			}

			payloadHash, body, err := payloadHashAndBody(r)
			if errors.Is(err, errBodyHashMismatch) {
				writeAuthError(w, r, s3err.InvalidArgument("x-amz-content-sha256 does not match the request body"))
				return
			} else if err != nil {
				writeAuthError(w, r, s3err.InvalidRequest("unable to read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			clone := r.Clone(r.Context())
			clone.Header = r.Header.Clone()
			clone.Header.Del("Authorization")

			creds := aws.Credentials{AccessKeyID: accessKey, SecretAccessKey: secretKey}
			if err := signer.SignHTTP(r.Context(), creds, clone, payloadHash, service, region, signTime); err != nil {
				logger.WarnCtx(r.Context(), "sigv4 signing failed", logger.Err(err))
				writeAuthError(w, r, s3err.InternalError())
				return
			}

			if subtle.ConstantTimeCompare([]byte(clone.Header.Get("Authorization")), []byte(authHeader)) != 1 {
				writeAuthError(w, r, s3err.SignatureDoesNotMatch())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func signingTime(r *http.Request) (time.Time, error) {
	if v := r.Header.Get("X-Amz-Date"); v != "" {
		return time.Parse("20060102T150405Z", v)
	}
	return time.Parse(time.RFC1123, r.Header.Get("Date"))
}

// errBodyHashMismatch is returned by payloadHashAndBody when the caller's
// X-Amz-Content-Sha256 header does not match the actual body received,
// which the Authorization signature alone would not catch since it only
// binds to the header value, not the bytes themselves.
var errBodyHashMismatch = fmt.Errorf("sigv4: body does not match X-Amz-Content-Sha256")

// payloadHashAndBody drains r.Body and returns its sha256 hex digest
// alongside the drained bytes, so the caller can restore r.Body for the
// handler that runs after verification. It honors an UNSIGNED-PAYLOAD
// sentinel the client may have sent instead of signing the body.
func payloadHashAndBody(r *http.Request) (string, []byte, error) {
	declared := r.Header.Get("X-Amz-Content-Sha256")
	if declared == "UNSIGNED-PAYLOAD" {
		body, err := io.ReadAll(r.Body)
		return declared, body, err
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(body)
	actual := hex.EncodeToString(sum[:])

	if declared == "" {
		return actual, body, nil
	}
	if declared != actual {
		return "", nil, errBodyHashMismatch
	}
	return declared, body, nil
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err *s3err.Error) {
	logger.WarnCtx(r.Context(), "sigv4 verification rejected request", "path", r.URL.Path, logger.Err(err))
	err.Write(w, r.URL.Path, chimiddleware.GetReqID(r.Context()))
}
