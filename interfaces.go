// Package omniarchive provides versioned archival storage on top of a flat,
// key-addressed object store.
//
// A single logical object (e.g. "daily-report") is kept as a series of
// immutable dated versions. Each version lives under its own key,
// <prefix>.<logical_date>.<physical_date>, so plain lexicographic listing
// yields the versions oldest to newest.
//
// Basic usage:
//
//	store := memory.New()
//	arc, _ := omniarchive.New(store, "reports", "daily-report")
//	fqon, _ := arc.WriteVersion(ctx, time.Now(), func(h *omniarchive.Handle) error {
//	    _, err := h.Write([]byte("totals: 42"))
//	    return err
//	})
//	_ = arc.ReadVersion(ctx, omniarchive.Selector{FQON: fqon}, func(h *omniarchive.Handle) error {
//	    data, err := h.Bytes()
//	    ...
//	})
//	_ = arc.SetRetention(ctx, 30, 10)
//	res, _ := arc.Scratch(ctx)
//
// Consistency model: Stream and Archive perform no locking. Two handles
// flushing the same key race and the last write wins without detection.
// Scratch lists and then deletes; a version created while a sweep runs may
// or may not be seen by it. Callers needing stronger guarantees must
// coordinate externally.
package omniarchive

import (
	"context"
	"time"
)

// ObjectStore is the object-storage client consumed by Stream and Archive.
// Implementations handle transport, signing and response decoding.
//
// Implementations are safe for concurrent use by multiple goroutines.
// Every failure is reported as an *Error; GetObject reports a missing key
// with KindNotFound and any operation on a missing bucket with a
// KindTransport error whose StatusCode is 404 and Code is "NoSuchBucket".
type ObjectStore interface {
	// CreateBucket creates a bucket. Creating an existing bucket owned
	// by the caller is not an error.
	CreateBucket(ctx context.Context, bucket string) error

	// ListBucket returns one page of keys in ascending lexicographic order.
	// Only keys starting with opts.Prefix and sorting after opts.Marker
	// are returned.
	ListBucket(ctx context.Context, bucket string, opts ListOptions) (*ListResult, error)

	// GetObject returns the full content and metadata of an object.
	GetObject(ctx context.Context, bucket, key string) (*Object, error)

	// PutObject overwrites an object with data and metadata.
	PutObject(ctx context.Context, bucket, key string, data []byte, metadata map[string]string) error

	// DeleteObject removes an object. Removing a missing key is not an error.
	DeleteObject(ctx context.Context, bucket, key string) error

	// DeleteBucket removes an empty bucket.
	DeleteBucket(ctx context.Context, bucket string) error

	// Close releases any resources held by the store.
	Close() error
}

// DefaultMaxKeys is the page size used when ListOptions.MaxKeys is not set.
const DefaultMaxKeys = 1000

// ListOptions selects a page of a bucket listing.
type ListOptions struct {
	// Prefix restricts the listing to keys starting with it.
	Prefix string

	// Marker is the key after which listing begins.
	Marker string

	// MaxKeys is the maximum number of entries per page.
	// 0 means DefaultMaxKeys.
	MaxKeys int
}

// ListEntry describes one object in a listing.
type ListEntry struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// ListResult is one page of a bucket listing.
type ListResult struct {
	Entries []ListEntry

	// IsTruncated reports whether more entries follow this page.
	IsTruncated bool

	// NextMarker is the marker for the next page, if the store provides one.
	// When empty, the key of the last entry is used.
	NextMarker string
}

// Keys returns the keys of the page entries.
func (r *ListResult) Keys() []string {
	keys := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		keys = append(keys, e.Key)
	}
	return keys
}

// Object is the content and user metadata of a stored object.
type Object struct {
	Data     []byte
	Metadata map[string]string
}
