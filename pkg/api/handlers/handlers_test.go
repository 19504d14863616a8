package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/s3lite/s3lite/pkg/contoken"
	"github.com/s3lite/s3lite/pkg/pragma"
	"github.com/s3lite/s3lite/pkg/registry"
)

// newTestHandler opens a fresh registry under a temp root, pre-creates the
// named buckets, and wires them into an S3Handler with no metrics sink.
func newTestHandler(t *testing.T, buckets ...string) *S3Handler {
	t.Helper()
	reg, err := registry.Open(context.Background(), registry.Options{
		Root:          t.TempDir(),
		GlobalProfile: pragma.Default(),
		Readers:       2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	for _, b := range buckets {
		require.NoError(t, reg.CreateBucket(context.Background(), b))
	}

	return New(reg, nil, nil)
}

// newObjectRequest builds a request carrying chi's "bucket" and "*" (key)
// URL params the way the real router would populate them.
func newObjectRequest(method, bucket, key string, body []byte) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	r := httptest.NewRequest(method, "/"+bucket+"/"+key, reader)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("bucket", bucket)
	rctx.URLParams.Add("*", key)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func newBucketRequest(method, bucket string) *http.Request {
	r := httptest.NewRequest(method, "/"+bucket, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("bucket", bucket)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func newTestTokenStore() *contoken.Store {
	return contoken.New(nil)
}

func httptestBody(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}
