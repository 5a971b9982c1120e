// Package memory provides an in-memory object store for omniarchive.
//
// The memory store is useful for:
//   - Unit testing without network access
//   - Development and prototyping
//
// It follows S3 listing semantics: keys are returned in ascending byte
// order, pages are capped at MaxKeys, and NextMarker is never set, so
// callers continue from the last key of a truncated page.
//
// Data is stored in RAM and lost when the store is closed or the process exits.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grokify/omniarchive"
)

func init() {
	omniarchive.Register("memory", NewFromConfig)
}

// object is a stored object.
type object struct {
	data     []byte
	metadata map[string]string
	modTime  time.Time
	etag     string
}

type bucket struct {
	objects map[string]*object
}

// Backend implements omniarchive.ObjectStore in memory.
type Backend struct {
	buckets map[string]*bucket
	maxKeys int
	closed  bool
	mu      sync.RWMutex
}

// Config holds memory store settings.
type Config struct {
	// MaxKeys caps the number of entries per listing page, like the
	// 1000 key cap of S3. 0 means omniarchive.DefaultMaxKeys.
	MaxKeys int
}

// New creates a new memory store.
func New() *Backend {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a new memory store with the given settings.
func NewWithConfig(cfg Config) *Backend {
	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = omniarchive.DefaultMaxKeys
	}
	return &Backend{
		buckets: make(map[string]*bucket),
		maxKeys: maxKeys,
	}
}

// NewFromConfig creates a new memory store from a config map.
// The only recognized key is "max_keys".
func NewFromConfig(config map[string]string) (omniarchive.ObjectStore, error) {
	var cfg Config
	if v, ok := config["max_keys"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &omniarchive.Error{Kind: omniarchive.KindValidation, Op: "memory config", Msg: "max_keys must be a non-negative integer"}
		}
		cfg.MaxKeys = n
	}
	return NewWithConfig(cfg), nil
}

// CreateBucket creates a bucket. Creating an existing bucket is a no-op.
func (b *Backend) CreateBucket(ctx context.Context, name string) error {
	if err := b.check(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.buckets[name]; !ok {
		b.buckets[name] = &bucket{objects: make(map[string]*object)}
	}
	return nil
}

// ListBucket returns one page of keys.
func (b *Backend) ListBucket(ctx context.Context, name string, opts omniarchive.ListOptions) (*omniarchive.ListResult, error) {
	if err := b.check(ctx); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	bkt, ok := b.buckets[name]
	if !ok {
		return nil, omniarchive.NewNoSuchBucketError("list", name)
	}

	keys := make([]string, 0, len(bkt.objects))
	for k := range bkt.objects {
		if strings.HasPrefix(k, opts.Prefix) && k > opts.Marker {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	limit := opts.MaxKeys
	if limit <= 0 || limit > b.maxKeys {
		limit = b.maxKeys
	}

	res := &omniarchive.ListResult{}
	if len(keys) > limit {
		keys = keys[:limit]
		res.IsTruncated = true
	}
	res.Entries = make([]omniarchive.ListEntry, 0, len(keys))
	for _, k := range keys {
		obj := bkt.objects[k]
		res.Entries = append(res.Entries, omniarchive.ListEntry{
			Key:          k,
			Size:         int64(len(obj.data)),
			LastModified: obj.modTime,
			ETag:         obj.etag,
		})
	}
	return res, nil
}

// GetObject returns a copy of an object's content and metadata.
func (b *Backend) GetObject(ctx context.Context, name, key string) (*omniarchive.Object, error) {
	if err := b.check(ctx); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	bkt, ok := b.buckets[name]
	if !ok {
		return nil, omniarchive.NewNoSuchBucketError("get", name)
	}
	obj, ok := bkt.objects[key]
	if !ok {
		return nil, omniarchive.NewNotFoundError("get", name, key)
	}

	// Copy to avoid sharing the stored slice
	return &omniarchive.Object{
		Data:     append([]byte(nil), obj.data...),
		Metadata: copyMap(obj.metadata),
	}, nil
}

// PutObject overwrites an object.
func (b *Backend) PutObject(ctx context.Context, name, key string, data []byte, metadata map[string]string) error {
	if err := b.check(ctx); err != nil {
		return err
	}
	if key == "" {
		return omniarchive.NewTransportError("put", name, key, 400, omniarchive.CodeInvalidArgument, nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bkt, ok := b.buckets[name]
	if !ok {
		return omniarchive.NewNoSuchBucketError("put", name)
	}
	bkt.objects[key] = &object{
		data:     append([]byte(nil), data...),
		metadata: copyMap(metadata),
		modTime:  time.Now(),
		etag:     omniarchive.ETag(data),
	}
	return nil
}

// DeleteObject removes an object. Removing a missing key is a no-op.
func (b *Backend) DeleteObject(ctx context.Context, name, key string) error {
	if err := b.check(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bkt, ok := b.buckets[name]
	if !ok {
		return omniarchive.NewNoSuchBucketError("delete", name)
	}
	delete(bkt.objects, key)
	return nil
}

// DeleteBucket removes an empty bucket.
func (b *Backend) DeleteBucket(ctx context.Context, name string) error {
	if err := b.check(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bkt, ok := b.buckets[name]
	if !ok {
		return omniarchive.NewNoSuchBucketError("delete bucket", name)
	}
	if len(bkt.objects) > 0 {
		return omniarchive.NewTransportError("delete bucket", name, "", 409, omniarchive.CodeBucketNotEmpty, nil)
	}
	delete(b.buckets, name)
	return nil
}

// Close releases all stored data.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.buckets = nil
	return nil
}

// Size returns the total size of all objects in a bucket.
func (b *Backend) Size(name string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total int64
	if bkt, ok := b.buckets[name]; ok {
		for _, obj := range bkt.objects {
			total += int64(len(obj.data))
		}
	}
	return total
}

// Count returns the number of objects in a bucket.
func (b *Backend) Count(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if bkt, ok := b.buckets[name]; ok {
		return len(bkt.objects)
	}
	return 0
}

// HasBucket reports whether a bucket exists.
func (b *Backend) HasBucket(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.buckets[name]
	return ok
}

// check returns an error if the store is closed or ctx is done.
func (b *Backend) check(ctx context.Context) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return &omniarchive.Error{Kind: omniarchive.KindTransport, Op: "memory", Msg: "store is closed"}
	}
	if err := ctx.Err(); err != nil {
		return omniarchive.NewTransportError("memory", "", "", 0, "", err)
	}
	return nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Ensure Backend implements omniarchive.ObjectStore
var _ omniarchive.ObjectStore = (*Backend)(nil)
