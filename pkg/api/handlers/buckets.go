package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/s3lite/s3lite/pkg/registry"
	"github.com/s3lite/s3lite/pkg/s3err"
	"github.com/s3lite/s3lite/pkg/s3xml"
)

// ListBuckets handles GET / : returns every registered bucket.
func (h *S3Handler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	_, finish := h.startOperation(r, "ListBuckets", "", "")
	defer finish(nil)

	names := h.Registry.List()
	buckets := make([]s3xml.Bucket, 0, len(names))
	for _, name := range names {
		buckets = append(buckets, s3xml.Bucket{
			Name:         name,
			CreationDate: formatTime(bucketCreationTime(h.Registry.Root(), name)),
		})
	}

	writeXML(w, http.StatusOK, s3xml.ListAllMyBucketsResult{
		Owner:   s3xml.DefaultOwner,
		Buckets: buckets,
	})
}

// bucketCreationTime approximates a bucket's creation date from its backing
// file's modification time, since the registry does not track one.
func bucketCreationTime(root, name string) time.Time {
	info, err := os.Stat(filepath.Join(root, name+".sqlite3"))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// CreateBucket handles PUT /{bucket}.
func (h *S3Handler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")
	_, finish := h.startOperation(r, "CreateBucket", name, "")

	err := h.Registry.CreateBucket(r.Context(), name)
	finish(err)
	if err != nil {
		writeS3Error(w, r, name, mapRegistryError(err))
		return
	}

	w.Header().Set("Location", "/"+name)
	w.WriteHeader(http.StatusOK)
}

// DeleteBucket handles DELETE /{bucket}.
func (h *S3Handler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")
	_, finish := h.startOperation(r, "DeleteBucket", name, "")

	err := h.Registry.DeleteBucket(r.Context(), name)
	finish(err)
	if err != nil {
		writeS3Error(w, r, name, mapRegistryError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HeadBucket handles HEAD /{bucket}.
func (h *S3Handler) HeadBucket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")
	_, finish := h.startOperation(r, "HeadBucket", name, "")

	if !h.Registry.Has(name) {
		finish(s3err.NoSuchBucket())
		w.WriteHeader(http.StatusNotFound)
		return
	}
	finish(nil)
	w.WriteHeader(http.StatusOK)
}

// GetBucketLocation handles GET /{bucket}?location.
func (h *S3Handler) GetBucketLocation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")
	_, finish := h.startOperation(r, "GetBucketLocation", name, "")

	if !h.Registry.Has(name) {
		finish(s3err.NoSuchBucket())
		writeS3Error(w, r, name, s3err.NoSuchBucket())
		return
	}
	finish(nil)
	writeXML(w, http.StatusOK, s3xml.LocationConstraint{})
}

// mapRegistryError translates registry.Err* sentinels into the S3 error
// taxonomy; anything else falls through Wrap.
func mapRegistryError(err error) error {
	switch err {
	case registry.ErrAlreadyExists:
		return s3err.BucketAlreadyExists()
	case registry.ErrNotFound:
		return s3err.NoSuchBucket()
	case registry.ErrInvalidName:
		return s3err.InvalidArgument("invalid bucket name")
	case registry.ErrReadOnly:
		return s3err.MethodNotAllowed()
	default:
		return err
	}
}
