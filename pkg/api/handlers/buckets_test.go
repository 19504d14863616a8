package handlers

import (
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3lite/s3lite/pkg/s3xml"
)

func TestListBuckets_ReturnsCreatedBuckets(t *testing.T) {
	h := newTestHandler(t, "alpha", "beta")
	w := httptest.NewRecorder()

	h.ListBuckets(w, newBucketRequest(http.MethodGet, ""))

	assert.Equal(t, http.StatusOK, w.Code)
	var result s3xml.ListAllMyBucketsResult
	require.NoError(t, xml.Unmarshal(w.Body.Bytes(), &result))
	names := []string{result.Buckets[0].Name, result.Buckets[1].Name}
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
}

func TestCreateBucket_ThenHeadSucceeds(t *testing.T) {
	h := newTestHandler(t)
	w := httptest.NewRecorder()
	h.CreateBucket(w, newBucketRequest(http.MethodPut, "new-bucket"))
	assert.Equal(t, http.StatusOK, w.Code)

	w2 := httptest.NewRecorder()
	h.HeadBucket(w2, newBucketRequest(http.MethodHead, "new-bucket"))
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestCreateBucket_Duplicate_ReturnsBucketAlreadyExists(t *testing.T) {
	h := newTestHandler(t, "dup")
	w := httptest.NewRecorder()

	h.CreateBucket(w, newBucketRequest(http.MethodPut, "dup"))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "BucketAlreadyExists")
}

func TestHeadBucket_Missing_Returns404(t *testing.T) {
	h := newTestHandler(t)
	w := httptest.NewRecorder()

	h.HeadBucket(w, newBucketRequest(http.MethodHead, "missing"))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteBucket_RemovesIt(t *testing.T) {
	h := newTestHandler(t, "gone")
	w := httptest.NewRecorder()

	h.DeleteBucket(w, newBucketRequest(http.MethodDelete, "gone"))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, h.Registry.Has("gone"))
}

func TestGetBucketLocation_UnknownBucket_ReturnsNoSuchBucket(t *testing.T) {
	h := newTestHandler(t)
	w := httptest.NewRecorder()

	h.GetBucketLocation(w, newBucketRequest(http.MethodGet, "missing"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NoSuchBucket")
}
