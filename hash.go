package omniarchive

import (
	"crypto/md5" //nolint:gosec // MD5 used for content verification, not security
	"encoding/hex"
)

// ContentMD5 returns the hex MD5 digest of data.
func ContentMD5(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // MD5 used for content verification
	return hex.EncodeToString(sum[:])
}

// ETag returns the quoted MD5 digest of data, the entity tag S3 assigns
// to objects uploaded in a single PUT.
func ETag(data []byte) string {
	return `"` + ContentMD5(data) + `"`
}
