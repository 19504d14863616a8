package s3err

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/s3lite/s3lite/pkg/bucket"
	"github.com/s3lite/s3lite/pkg/sqlpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsSetCodeAndStatus(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		code string
		stat int
	}{
		{"NoSuchBucket", NoSuchBucket(), "NoSuchBucket", http.StatusNotFound},
		{"NoSuchKey", NoSuchKey(), "NoSuchKey", http.StatusNotFound},
		{"BucketAlreadyExists", BucketAlreadyExists(), "BucketAlreadyExists", http.StatusConflict},
		{"BucketNotEmpty", BucketNotEmpty(), "BucketNotEmpty", http.StatusConflict},
		{"AccessDenied", AccessDenied(), "AccessDenied", http.StatusForbidden},
		{"MethodNotAllowed", MethodNotAllowed(), "MethodNotAllowed", http.StatusMethodNotAllowed},
		{"NotImplemented", NotImplemented(), "NotImplemented", http.StatusNotImplemented},
		{"InternalError", InternalError(), "InternalError", http.StatusInternalServerError},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.code, c.err.ErrorCode())
			assert.Equal(t, c.stat, c.err.StatusCode)
			var apiErr smithy.APIError
			assert.True(t, errors.As(c.err, &apiErr))
		})
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil))
}

func TestWrapPassesThroughExistingError(t *testing.T) {
	original := NoSuchKey()
	wrapped := Wrap(original)
	assert.Same(t, original, wrapped)
}

func TestWrapMapsBucketNotFound(t *testing.T) {
	wrapped := Wrap(bucket.ErrNotFound)
	assert.Equal(t, "NoSuchKey", wrapped.ErrorCode())
}

func TestWrapMapsSQLNoRows(t *testing.T) {
	wrapped := Wrap(fmt.Errorf("lookup: %w", sql.ErrNoRows))
	assert.Equal(t, "NoSuchKey", wrapped.ErrorCode())
}

func TestWrapMapsPoolReadOnly(t *testing.T) {
	wrapped := Wrap(fmt.Errorf("%w: mybucket", sqlpool.ErrReadOnly))
	assert.Equal(t, "MethodNotAllowed", wrapped.ErrorCode())
}

func TestWrapFallsBackToInternalError(t *testing.T) {
	wrapped := Wrap(errors.New("something unrecognized"))
	assert.Equal(t, "InternalError", wrapped.ErrorCode())
	require.Error(t, wrapped.Unwrap())
}

func TestWithResourceCopiesAndAnnotates(t *testing.T) {
	base := NoSuchKey()
	annotated := base.WithResource("my-bucket/my-key")
	assert.Equal(t, "", base.Resource)
	assert.Equal(t, "my-bucket/my-key", annotated.Resource)
	assert.Contains(t, annotated.Error(), "my-bucket/my-key")
}
