package handlers

import (
	"crypto/md5"
	"database/sql"
	"encoding/xml"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/s3lite/s3lite/pkg/bucket"
	"github.com/s3lite/s3lite/pkg/copier"
	"github.com/s3lite/s3lite/pkg/metrics"
	"github.com/s3lite/s3lite/pkg/s3err"
	"github.com/s3lite/s3lite/pkg/s3xml"
)

const (
	metaHeaderPrefix  = "X-Amz-Meta-"
	contentTypeMetaKey = "content-type"
	defaultContentType = "application/octet-stream"
)

func objectKey(r *http.Request) string {
	return chi.URLParam(r, "*")
}

func quoteETag(hexDigest string) string {
	return `"` + hexDigest + `"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func extractUserMetadata(r *http.Request) map[string]string {
	meta := make(map[string]string)
	for name, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		if !strings.HasPrefix(http.CanonicalHeaderKey(name), metaHeaderPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(http.CanonicalHeaderKey(name), metaHeaderPrefix))
		meta[key] = values[0]
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		meta[contentTypeMetaKey] = ct
	}
	return meta
}

func applyResponseMetadata(w http.ResponseWriter, meta map[string]string) {
	ct := defaultContentType
	for k, v := range meta {
		if k == contentTypeMetaKey {
			ct = v
			continue
		}
		w.Header().Set(metaHeaderPrefix+k, v)
	}
	w.Header().Set("Content-Type", ct)
}

// validStorageClasses is the set accepted by PutObject.
var validStorageClasses = map[string]bool{
	"":                   true,
	"STANDARD":           true,
	"REDUCED_REDUNDANCY": true,
}

// PutObject handles PUT /{bucket}/{key}.
func (h *S3Handler) PutObject(w http.ResponseWriter, r *http.Request) {
	bkt := chi.URLParam(r, "bucket")
	key := objectKey(r)
	_, finish := h.startOperation(r, "PutObject", bkt, key)

	storageClass := r.Header.Get("X-Amz-Storage-Class")
	if !validStorageClasses[strings.ToUpper(storageClass)] {
		err := s3err.InvalidStorageClass()
		finish(err)
		writeS3Error(w, r, bkt+"/"+key, err)
		return
	}

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

	isDirectoryMarker := strings.HasSuffix(key, "/")
	if isDirectoryMarker && len(body) > 0 {
		err := s3err.UnexpectedContent()
		finish(err)
		writeS3Error(w, r, bkt+"/"+key, err)
		return
	}
	var md5Hex *string
	var value []byte
	size := int64(0)
	if !isDirectoryMarker {
		digest := md5.Sum(body)
		if err := verifyContentMD5(r, digest); err != nil {
			finish(err)
			writeS3Error(w, r, bkt+"/"+key, err)
			return
		}
		value = body
		size = int64(len(body))
		md5Hex = strPtr(bucket.HexMD5(body))
	}

	meta := extractUserMetadata(r)
	lastModified := formatTime(nowUTC())

	err = pool.Write(r.Context(), func(conn *sql.Conn) error {
		return bucket.PutObject(r.Context(), conn, key, value, size, meta, lastModified, md5Hex)
	})
	finish(err)
	if err != nil {
		writeS3Error(w, r, bkt+"/"+key, err)
		return
	}

	if md5Hex != nil {
		w.Header().Set("ETag", quoteETag(*md5Hex))
	}
	metrics.RecordBytes(h.Metrics, "PutObject", size)
	w.WriteHeader(http.StatusOK)
}

// rangePattern matches "bytes=first-last" or "bytes=-N".
var rangePattern = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

// parseRange resolves a Range header against size, returning the half-open
// [start, end) byte interval to serve, or an error if the header is present
// but not satisfiable.
func parseRange(header string, size int64) (start, end int64, applied bool, err error) {
	if header == "" {
		return 0, size, false, nil
	}
	m := rangePattern.FindStringSubmatch(header)
	if m == nil {
		return 0, size, false, nil
	}

	firstStr, lastStr := m[1], m[2]
	if firstStr == "" {
		// Suffix range: bytes=-N, last N bytes clamped to size.
		n, _ := strconv.ParseInt(lastStr, 10, 64)
		if n <= 0 {
			return 0, 0, true, nil
		}
		if n > size {
			n = size
		}
		return size - n, size, true, nil
	}

	first, _ := strconv.ParseInt(firstStr, 10, 64)
	if first >= size {
		return 0, 0, true, s3err.InvalidRange()
	}
	last := size - 1
	if lastStr != "" {
		last, _ = strconv.ParseInt(lastStr, 10, 64)
	}
	if last >= size {
		last = size - 1
	}
	if last < first {
		return 0, 0, true, s3err.InvalidRange()
	}
	return first, last + 1, true, nil
}

// GetObject handles GET /{bucket}/{key}.
func (h *S3Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	bkt := chi.URLParam(r, "bucket")
	key := objectKey(r)
	_, finish := h.startOperation(r, "GetObject", bkt, key)

	pool, ok := h.bucketPool(w, r, bkt)
	if !ok {
		finish(s3err.NoSuchBucket())
		return
	}

	var obj *bucket.Object
	err := pool.Read(r.Context(), func(conn *sql.Conn) error {
		var gerr error
		obj, gerr = bucket.GetObject(r.Context(), conn, key)
		return gerr
	})
	if err != nil {
		finish(err)
		writeS3Error(w, r, bkt+"/"+key, err)
		return
	}

	start, end, ranged, rerr := parseRange(r.Header.Get("Range"), obj.Size)
	if rerr != nil {
		finish(rerr)
		writeS3Error(w, r, bkt+"/"+key, rerr)
		return
	}

	applyResponseMetadata(w, obj.Metadata)
	if obj.MD5 != nil {
		w.Header().Set("ETag", quoteETag(*obj.MD5))
	}
	w.Header().Set("Last-Modified", obj.LastModified)
	w.Header().Set("Content-Length", strconv.FormatInt(end-start, 10))
	w.Header().Set("Accept-Ranges", "bytes")

	finish(nil)
	metrics.RecordBytes(h.Metrics, "GetObject", end-start)

	if ranged {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, obj.Size))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if start < end {
		_, _ = w.Write(obj.Value[start:end])
	}
}

// HeadObject handles HEAD /{bucket}/{key}.
func (h *S3Handler) HeadObject(w http.ResponseWriter, r *http.Request) {
	bkt := chi.URLParam(r, "bucket")
	key := objectKey(r)
	_, finish := h.startOperation(r, "HeadObject", bkt, key)

	pool, ok := h.bucketPool(w, r, bkt)
	if !ok {
		finish(s3err.NoSuchBucket())
		return
	}

	var meta *bucket.ObjectMeta
	err := pool.Read(r.Context(), func(conn *sql.Conn) error {
		var gerr error
		meta, gerr = bucket.GetMetadata(r.Context(), conn, key)
		return gerr
	})
	finish(err)
	if err != nil {
		writeS3Error(w, r, bkt+"/"+key, err)
		return
	}

	applyResponseMetadata(w, meta.Metadata)
	if meta.MD5 != nil {
		w.Header().Set("ETag", quoteETag(*meta.MD5))
	}
	w.Header().Set("Last-Modified", meta.LastModified)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
}

// DeleteObject handles DELETE /{bucket}/{key}. A key ending in "/" deletes
// every row sharing that prefix, but only when exactly one would be
// removed; this mirrors S3's rule that a directory-marker delete must
// never implicitly remove real objects.
func (h *S3Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bkt := chi.URLParam(r, "bucket")
	key := objectKey(r)
	_, finish := h.startOperation(r, "DeleteObject", bkt, key)

	pool, ok := h.bucketPool(w, r, bkt)
	if !ok {
		finish(s3err.NoSuchBucket())
		return
	}

	err := pool.Write(r.Context(), func(conn *sql.Conn) error {
		if strings.HasSuffix(key, "/") {
			n, derr := bucket.DeleteObjectsLike(r.Context(), conn, key)
			if derr != nil {
				return derr
			}
			if n > 1 {
				return s3err.BucketNotEmpty()
			}
			if n == 0 {
				return s3err.NoSuchKey()
			}
			return nil
		}
		n, derr := bucket.DeleteObject(r.Context(), conn, key)
		if derr != nil {
			return derr
		}
		if n == 0 {
			return s3err.NoSuchKey()
		}
		return nil
	})
	finish(err)
	if err != nil {
		writeS3Error(w, r, bkt+"/"+key, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteObjects handles POST /{bucket}?delete (bulk delete).
func (h *S3Handler) DeleteObjects(w http.ResponseWriter, r *http.Request) {
	bkt := chi.URLParam(r, "bucket")
	_, finish := h.startOperation(r, "DeleteObjects", bkt, "")

	pool, ok := h.bucketPool(w, r, bkt)
	if !ok {
		finish(s3err.NoSuchBucket())
		return
	}

	body, err := readBody(r)
	if err != nil {
		finish(err)
		writeS3Error(w, r, bkt, s3err.IncompleteBody())
		return
	}
	var req s3xml.Delete
	if err := xml.Unmarshal(body, &req); err != nil {
		err := s3err.InvalidArgument("malformed Delete request body")
		finish(err)
		writeS3Error(w, r, bkt, err)
		return
	}

	keys := make([]string, 0, len(req.Objects))
	for _, o := range req.Objects {
		keys = append(keys, o.Key)
	}

	var deleted []string
	err = pool.Write(r.Context(), func(conn *sql.Conn) error {
		var derr error
		deleted, derr = bucket.DeleteObjects(r.Context(), conn, keys)
		return derr
	})
	finish(err)
	if err != nil {
		writeS3Error(w, r, bkt, err)
		return
	}

	result := s3xml.DeleteResult{}
	if !req.Quiet {
		for _, k := range deleted {
			result.Deleted = append(result.Deleted, s3xml.Deleted{Key: k})
		}
	}
	writeXML(w, http.StatusOK, result)
}

// CopyObject handles PUT /{bucket}/{key} with an x-amz-copy-source header.
func (h *S3Handler) CopyObject(w http.ResponseWriter, r *http.Request) {
	dstBucket := chi.URLParam(r, "bucket")
	dstKey := objectKey(r)
	_, finish := h.startOperation(r, "CopyObject", dstBucket, dstKey)

	src, err := copier.Parse(r.Header.Get("X-Amz-Copy-Source"))
	if err != nil {
		if err == copier.ErrAccessPoint {
			nerr := s3err.NotImplemented()
			finish(nerr)
			writeS3Error(w, r, dstBucket+"/"+dstKey, nerr)
			return
		}
		aerr := s3err.InvalidArgument(err.Error())
		finish(aerr)
		writeS3Error(w, r, dstBucket+"/"+dstKey, aerr)
		return
	}

	srcPool, ok := h.bucketPool(w, r, src.Bucket)
	if !ok {
		finish(s3err.NoSuchBucket())
		return
	}

	var obj *bucket.Object
	err = srcPool.Read(r.Context(), func(conn *sql.Conn) error {
		var gerr error
		obj, gerr = bucket.GetObject(r.Context(), conn, src.Key)
		return gerr
	})
	if err != nil {
		finish(err)
		writeS3Error(w, r, src.Bucket+"/"+src.Key, err)
		return
	}

	dstPool, ok := h.bucketPool(w, r, dstBucket)
	if !ok {
		finish(s3err.NoSuchBucket())
		return
	}

	err = dstPool.Write(r.Context(), func(conn *sql.Conn) error {
		return bucket.PutObject(r.Context(), conn, dstKey, obj.Value, obj.Size, obj.Metadata, obj.LastModified, obj.MD5)
	})
	finish(err)
	if err != nil {
		writeS3Error(w, r, dstBucket+"/"+dstKey, err)
		return
	}

	result := s3xml.CopyObjectResult{LastModified: obj.LastModified}
	if obj.MD5 != nil {
		result.ETag = quoteETag(*obj.MD5)
	}
	writeXML(w, http.StatusOK, result)
}

const (
	defaultMaxKeys = 1000
	maxAllowedKeys = 1000
)

func clampMaxKeys(raw string) int {
	if raw == "" {
		return defaultMaxKeys
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return defaultMaxKeys
	}
	if n > maxAllowedKeys {
		return maxAllowedKeys
	}
	return n
}

func entriesToObjects(entries []bucket.ListEntry) []s3xml.Object {
	objs := make([]s3xml.Object, 0, len(entries))
	for _, e := range entries {
		o := s3xml.Object{
			Key:          e.Key,
			LastModified: e.LastModified,
			Size:         e.Size,
			StorageClass: "STANDARD",
		}
		if e.MD5 != nil {
			o.ETag = quoteETag(*e.MD5)
		}
		objs = append(objs, o)
	}
	return objs
}

// ListObjectsV2 handles GET /{bucket}?list-type=2.
func (h *S3Handler) ListObjectsV2(w http.ResponseWriter, r *http.Request) {
	bkt := chi.URLParam(r, "bucket")
	_, finish := h.startOperation(r, "ListObjectsV2", bkt, "")

	pool, ok := h.bucketPool(w, r, bkt)
	if !ok {
		finish(s3err.NoSuchBucket())
		return
	}

	q := r.URL.Query()
	prefix := q.Get("prefix")
	startAfter := q.Get("start-after")
	token := q.Get("continuation-token")
	maxKeys := clampMaxKeys(q.Get("max-keys"))

	var (
		page        []bucket.ListEntry
		truncated   bool
		nextToken   string
	)

	if token == "" {
		var snapshot []bucket.ListEntry
		err := pool.Read(r.Context(), func(conn *sql.Conn) error {
			var lerr error
			snapshot, lerr = bucket.ListObjects(r.Context(), conn, strPtr(prefix), strPtr(startAfter))
			return lerr
		})
		if err != nil {
			finish(err)
			writeS3Error(w, r, bkt, err)
			return
		}
		if maxKeys >= len(snapshot) {
			page = snapshot
		} else {
			page = snapshot[:maxKeys]
			remainder := snapshot[maxKeys:]
			truncated = true
			nextToken = h.Tokens.Put(remainder)
		}
	} else {
		var found bool
		page, truncated, found = h.Tokens.Take(token, maxKeys)
		if !found {
			err := s3err.InvalidToken()
			finish(err)
			writeS3Error(w, r, bkt, err)
			return
		}
		if truncated {
			nextToken = token
		}
	}

	finish(nil)
	writeXML(w, http.StatusOK, s3xml.ListBucketResultV2{
		Name:                  bkt,
		Prefix:                prefix,
		StartAfter:            startAfter,
		KeyCount:              len(page),
		MaxKeys:               maxKeys,
		IsTruncated:           truncated,
		ContinuationToken:     token,
		NextContinuationToken: nextToken,
		Contents:              entriesToObjects(page),
	})
}

// ListObjects handles GET /{bucket} (v1). It performs a single snapshot
// read and pages by real key via Marker/NextMarker rather than the
// opaque-token engine that backs ListObjectsV2.
func (h *S3Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	bkt := chi.URLParam(r, "bucket")
	_, finish := h.startOperation(r, "ListObjects", bkt, "")

	pool, ok := h.bucketPool(w, r, bkt)
	if !ok {
		finish(s3err.NoSuchBucket())
		return
	}

	q := r.URL.Query()
	prefix := q.Get("prefix")
	marker := q.Get("marker")
	maxKeys := clampMaxKeys(q.Get("max-keys"))

	var snapshot []bucket.ListEntry
	err := pool.Read(r.Context(), func(conn *sql.Conn) error {
		var lerr error
		snapshot, lerr = bucket.ListObjects(r.Context(), conn, strPtr(prefix), strPtr(marker))
		return lerr
	})
	if err != nil {
		finish(err)
		writeS3Error(w, r, bkt, err)
		return
	}

	page := snapshot
	truncated := false
	var nextMarker string
	if maxKeys < len(snapshot) {
		page = snapshot[:maxKeys]
		truncated = true
		if len(page) > 0 {
			nextMarker = page[len(page)-1].Key
		}
	}

	finish(nil)
	writeXML(w, http.StatusOK, s3xml.ListBucketResult{
		Name:        bkt,
		Prefix:      prefix,
		Marker:      marker,
		NextMarker:  nextMarker,
		MaxKeys:     maxKeys,
		IsTruncated: truncated,
		Contents:    entriesToObjects(page),
	})
}
