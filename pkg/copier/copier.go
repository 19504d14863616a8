// Package copier parses the x-amz-copy-source header used by CopyObject
// into a source bucket and key.
package copier

import (
	"fmt"
	"net/url"
	"strings"
)

// Source is a parsed copy-source reference.
type Source struct {
	Bucket string
	Key    string
}

// ErrAccessPoint is returned when header names an S3 AccessPoint ARN
// instead of a bucket/key pair; the gateway has no AccessPoint concept.
var ErrAccessPoint = fmt.Errorf("copier: access point copy sources are not supported")

// Parse decodes the x-amz-copy-source header value into a Source.
//
// Accepted forms are "/bucket/key" and "bucket/key", both optionally
// URL-encoded (S3 clients percent-encode the key portion). A leading "arn:"
// marks an AccessPoint ARN, which Parse rejects with ErrAccessPoint.
func Parse(header string) (Source, error) {
	header = strings.TrimPrefix(header, "/")
	if strings.HasPrefix(header, "arn:") {
		return Source{}, ErrAccessPoint
	}

	decoded, err := url.QueryUnescape(header)
	if err != nil {
		return Source{}, fmt.Errorf("copier: decode copy source %q: %w", header, err)
	}

	bucket, key, ok := strings.Cut(decoded, "/")
	if !ok || bucket == "" || key == "" {
		return Source{}, fmt.Errorf("copier: malformed copy source %q", header)
	}

	return Source{Bucket: bucket, Key: key}, nil
}
