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

func createTestUpload(t *testing.T, h *S3Handler, bucket, key string) string {
	t.Helper()
	w := httptest.NewRecorder()
	h.CreateMultipartUpload(w, newObjectRequest(http.MethodPost, bucket, key, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var result s3xml.InitiateMultipartUploadResult
	require.NoError(t, xml.Unmarshal(w.Body.Bytes(), &result))
	require.NotEmpty(t, result.UploadID)
	return result.UploadID
}

func uploadTestPart(t *testing.T, h *S3Handler, bucket, key, uploadID string, partNumber int, data []byte) string {
	t.Helper()
	req := newObjectRequest(http.MethodPut, bucket, key, data)
	req.URL.RawQuery = "partNumber=" + itoa(partNumber) + "&uploadId=" + uploadID
	w := httptest.NewRecorder()
	h.UploadPart(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Header().Get("ETag")
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var out []byte
	for n > 0 {
		out = append([]byte{digits[n%10]}, out...)
		n /= 10
	}
	return string(out)
}

func TestMultipartUpload_FullLifecycle(t *testing.T) {
	h := newTestHandler(t, "b")
	uploadID := createTestUpload(t, h, "b", "big.bin")

	uploadTestPart(t, h, "b", "big.bin", uploadID, 1, []byte("part-one-"))
	uploadTestPart(t, h, "b", "big.bin", uploadID, 2, []byte("part-two"))

	listReq := newObjectRequest(http.MethodGet, "b", "big.bin", nil)
	listReq.URL.RawQuery = "uploadId=" + uploadID
	listW := httptest.NewRecorder()
	h.ListParts(listW, listReq)
	assert.Equal(t, http.StatusOK, listW.Code)
	var parts s3xml.ListPartsResult
	require.NoError(t, xml.Unmarshal(listW.Body.Bytes(), &parts))
	assert.Len(t, parts.Parts, 2)

	body := []byte(`<CompleteMultipartUpload>` +
		`<Part><PartNumber>1</PartNumber></Part>` +
		`<Part><PartNumber>2</PartNumber></Part>` +
		`</CompleteMultipartUpload>`)
	completeReq := newObjectRequest(http.MethodPost, "b", "big.bin", body)
	completeReq.URL.RawQuery = "uploadId=" + uploadID
	completeW := httptest.NewRecorder()
	h.CompleteMultipartUpload(completeW, completeReq)
	assert.Equal(t, http.StatusOK, completeW.Code)

	getW := httptest.NewRecorder()
	h.GetObject(getW, newObjectRequest(http.MethodGet, "b", "big.bin", nil))
	assert.Equal(t, http.StatusOK, getW.Code)
	assert.Equal(t, "part-one-part-two", getW.Body.String())
}

func TestCompleteMultipartUpload_OutOfOrderParts_Rejected(t *testing.T) {
	h := newTestHandler(t, "b")
	uploadID := createTestUpload(t, h, "b", "k")
	uploadTestPart(t, h, "b", "k", uploadID, 1, []byte("x"))

	body := []byte(`<CompleteMultipartUpload><Part><PartNumber>2</PartNumber></Part></CompleteMultipartUpload>`)
	req := newObjectRequest(http.MethodPost, "b", "k", body)
	req.URL.RawQuery = "uploadId=" + uploadID
	w := httptest.NewRecorder()
	h.CompleteMultipartUpload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadPart_InvalidPartNumber_ReturnsInvalidArgument(t *testing.T) {
	h := newTestHandler(t, "b")
	uploadID := createTestUpload(t, h, "b", "k")

	req := newObjectRequest(http.MethodPut, "b", "k", []byte("x"))
	req.URL.RawQuery = "partNumber=0&uploadId=" + uploadID
	w := httptest.NewRecorder()
	h.UploadPart(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
