// Package hexutil centralizes the one hex-encoding convention this
// codebase relies on — lower-case digest strings for ETags, Content-MD5
// comparisons, and multipart part digests — so it is never reimplemented
// ad hoc at individual call sites.
package hexutil

import (
	"crypto/md5"
	"encoding/hex"
)

// Lower returns the lower-case hex encoding of b.
func Lower(b []byte) string {
	return hex.EncodeToString(b)
}

// MD5 returns the lower-case hex MD5 digest of b.
func MD5(b []byte) string {
	sum := md5.Sum(b)
	return Lower(sum[:])
}
