package handlers

import (
	"crypto/md5"
	"database/sql"
	"encoding/xml"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/s3lite/s3lite/pkg/bucket"
	"github.com/s3lite/s3lite/pkg/s3err"
	"github.com/s3lite/s3lite/pkg/s3xml"
)

// CreateMultipartUpload handles POST /{bucket}/{key}?uploads.
func (h *S3Handler) CreateMultipartUpload(w http.ResponseWriter, r *http.Request) {
	bkt := chi.URLParam(r, "bucket")
	key := objectKey(r)
	_, finish := h.startOperation(r, "CreateMultipartUpload", bkt, key)

	pool, ok := h.bucketPool(w, r, bkt)
	if !ok {
		finish(s3err.NoSuchBucket())
		return
	}

	uploadID := uuid.NewString()
	accessKey := strPtr(callerAccessKey(r))
	lastModified := formatTime(nowUTC())

	err := pool.Write(r.Context(), func(conn *sql.Conn) error {
		return bucket.CreateMultipartUpload(r.Context(), conn, uploadID, bkt, key, accessKey, lastModified)
	})
	finish(err)
	if err != nil {
		writeS3Error(w, r, bkt+"/"+key, err)
		return
	}

	writeXML(w, http.StatusOK, s3xml.InitiateMultipartUploadResult{
		Bucket:   bkt,
		Key:      key,
		UploadID: uploadID,
	})
}

// UploadPart handles PUT /{bucket}/{key}?partNumber=N&uploadId=ID.
func (h *S3Handler) UploadPart(w http.ResponseWriter, r *http.Request) {
	bkt := chi.URLParam(r, "bucket")
	key := objectKey(r)
	_, finish := h.startOperation(r, "UploadPart", bkt, key)

	uploadID := r.URL.Query().Get("uploadId")
	partNumber, err := strconv.Atoi(r.URL.Query().Get("partNumber"))
	if err != nil || partNumber < 1 {
		aerr := s3err.InvalidArgument("partNumber must be a positive integer")
		finish(aerr)
		writeS3Error(w, r, bkt+"/"+key, aerr)
		return
	}

	pool, ok := h.bucketPool(w, r, bkt)
	if !ok {
		finish(s3err.NoSuchBucket())
		return
	}

	accessKey := strPtr(callerAccessKey(r))
	var owned bool
	err = pool.Read(r.Context(), func(conn *sql.Conn) error {
		var verr error
		owned, verr = bucket.VerifyUploadID(r.Context(), conn, uploadID, bkt, key, accessKey)
		return verr
	})
	if err != nil {
		finish(err)
		writeS3Error(w, r, bkt+"/"+key, err)
		return
	}
	if !owned {
		aerr := s3err.AccessDenied()
		finish(aerr)
		writeS3Error(w, r, bkt+"/"+key, aerr)
		return
	}

	body, err := readBody(r)
	if err != nil {
		finish(err)
		writeS3Error(w, r, bkt+"/"+key, s3err.IncompleteBody())
		return
	}

	digest := md5.Sum(body)
	if err := verifyContentMD5(r, digest); err != nil {
		finish(err)
		writeS3Error(w, r, bkt+"/"+key, err)
		return
	}
	md5Hex := bucket.HexMD5(body)
	lastModified := formatTime(nowUTC())

	err = pool.Write(r.Context(), func(conn *sql.Conn) error {
		return bucket.PutMultipartPart(r.Context(), conn, uploadID, partNumber, body, int64(len(body)), &md5Hex, lastModified)
	})
	finish(err)
	if err != nil {
		writeS3Error(w, r, bkt+"/"+key, err)
		return
	}

	w.Header().Set("ETag", quoteETag(md5Hex))
	w.WriteHeader(http.StatusOK)
}

// ListParts handles GET /{bucket}/{key}?uploadId=ID.
func (h *S3Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	bkt := chi.URLParam(r, "bucket")
	key := objectKey(r)
	_, finish := h.startOperation(r, "ListParts", bkt, key)

	uploadID := r.URL.Query().Get("uploadId")

	pool, ok := h.bucketPool(w, r, bkt)
	if !ok {
		finish(s3err.NoSuchBucket())
		return
	}

	accessKey := strPtr(callerAccessKey(r))
	var (
		owned bool
		parts []bucket.PartMeta
	)
	err := pool.Read(r.Context(), func(conn *sql.Conn) error {
		var verr error
		owned, verr = bucket.VerifyUploadID(r.Context(), conn, uploadID, bkt, key, accessKey)
		if verr != nil || !owned {
			return verr
		}
		var lerr error
		parts, lerr = bucket.ListMultipartMetadata(r.Context(), conn, uploadID)
		return lerr
	})
	if err != nil {
		finish(err)
		writeS3Error(w, r, bkt+"/"+key, err)
		return
	}
	if !owned {
		aerr := s3err.AccessDenied()
		finish(aerr)
		writeS3Error(w, r, bkt+"/"+key, aerr)
		return
	}

	finish(nil)
	out := make([]s3xml.Part, 0, len(parts))
	for _, p := range parts {
		part := s3xml.Part{
			PartNumber:   p.PartNumber,
			LastModified: p.LastModified,
			Size:         p.Size,
		}
		if p.MD5 != nil {
			part.ETag = quoteETag(*p.MD5)
		}
		out = append(out, part)
	}

	writeXML(w, http.StatusOK, s3xml.ListPartsResult{
		Bucket:   bkt,
		Key:      key,
		UploadID: uploadID,
		Parts:    out,
	})
}

// CompleteMultipartUpload handles POST /{bucket}/{key}?uploadId=ID.
func (h *S3Handler) CompleteMultipartUpload(w http.ResponseWriter, r *http.Request) {
	bkt := chi.URLParam(r, "bucket")
	key := objectKey(r)
	_, finish := h.startOperation(r, "CompleteMultipartUpload", bkt, key)

	uploadID := r.URL.Query().Get("uploadId")

	pool, ok := h.bucketPool(w, r, bkt)
	if !ok {
		finish(s3err.NoSuchBucket())
		return
	}

	body, err := readBody(r)
	if err != nil {
		finish(err)
		writeS3Error(w, r, bkt+"/"+key, s3err.IncompleteBody())
		return
	}
	var req s3xml.CompleteMultipartUpload
	if err := xml.Unmarshal(body, &req); err != nil {
		aerr := s3err.InvalidArgument("malformed CompleteMultipartUpload request body")
		finish(aerr)
		writeS3Error(w, r, bkt+"/"+key, aerr)
		return
	}

	for i, p := range req.Parts {
		if p.PartNumber != i+1 {
			ierr := s3err.InvalidRequest("invalid part order")
			finish(ierr)
			writeS3Error(w, r, bkt+"/"+key, ierr)
			return
		}
	}

	accessKey := strPtr(callerAccessKey(r))
	var (
		owned   bool
		finalMD5 string
	)
	err = pool.Write(r.Context(), func(conn *sql.Conn) error {
		var verr error
		owned, verr = bucket.VerifyUploadID(r.Context(), conn, uploadID, bkt, key, accessKey)
		if verr != nil {
			return verr
		}
		if !owned {
			return nil
		}

		allParts, gerr := bucket.GetMultipartValues(r.Context(), conn, uploadID)
		if gerr != nil {
			return gerr
		}

		concatenated := make([]byte, 0, totalSize(allParts))
		for _, p := range allParts {
			concatenated = append(concatenated, p.Value...)
		}
		finalMD5 = bucket.HexMD5(concatenated)
		lastModified := formatTime(nowUTC())

		if perr := bucket.PutObject(r.Context(), conn, key, concatenated, int64(len(concatenated)), nil, lastModified, &finalMD5); perr != nil {
			return perr
		}
		return bucket.DeleteMultipartUpload(r.Context(), conn, uploadID)
	})
	finish(err)
	if err != nil {
		writeS3Error(w, r, bkt+"/"+key, err)
		return
	}
	if !owned {
		aerr := s3err.AccessDenied()
		writeS3Error(w, r, bkt+"/"+key, aerr)
		return
	}

	writeXML(w, http.StatusOK, s3xml.CompleteMultipartUploadResult{
		Bucket: bkt,
		Key:    key,
		ETag:   quoteETag(finalMD5),
	})
}

func totalSize(parts []bucket.Part) int64 {
	var n int64
	for _, p := range parts {
		n += p.Size
	}
	return n
}
