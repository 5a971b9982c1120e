// Package dirstore implements omniarchive.ObjectStore on a directory tree.
//
// Each bucket is a directory under the root. Each object is a file in its
// bucket directory named by the escaped key, so keys containing "/" stay
// flat. User metadata is kept as JSON in the bucket's ".meta" directory.
// Names starting with "." are reserved and never listed.
//
// The tree is reached through FS, which the file backend implements on the
// local disk and the sftp backend on a remote server.
package dirstore

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/grokify/omniarchive"
)

// FS is the filesystem a Store is kept on. Names are slash separated.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error

	// Rename replaces newname if it exists.
	Rename(oldname, newname string) error

	Mkdir(name string) error
	MkdirAll(name string) error
	Remove(name string) error
}

const (
	metaDir   = ".meta"
	tmpPrefix = ".tmp-"
)

// Store implements omniarchive.ObjectStore on an FS.
type Store struct {
	fs      FS
	root    string
	maxKeys int
	closer  func() error
	closed  bool
	mu      sync.RWMutex
}

// New returns a store rooted at root. closer, if non-nil, is called by Close.
func New(fsys FS, root string, closer func() error) *Store {
	if root == "" {
		root = "."
	}
	return &Store{fs: fsys, root: root, maxKeys: omniarchive.DefaultMaxKeys, closer: closer}
}

// Root returns the root directory.
func (s *Store) Root() string { return s.root }

// CreateBucket creates the bucket directory. An existing bucket is not an error.
func (s *Store) CreateBucket(ctx context.Context, bucket string) error {
	if err := s.check(ctx, "create bucket", bucket); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(s.root); err != nil {
		return translateError(err, "create bucket", bucket, "")
	}
	if err := s.fs.Mkdir(s.bucketDir(bucket)); err != nil && !errors.Is(err, fs.ErrExist) {
		if info, serr := s.fs.Stat(s.bucketDir(bucket)); serr == nil && info.IsDir() {
			return nil
		}
		return translateError(err, "create bucket", bucket, "")
	}
	return nil
}

// ListBucket returns one page of keys in ascending order.
func (s *Store) ListBucket(ctx context.Context, bucket string, opts omniarchive.ListOptions) (*omniarchive.ListResult, error) {
	if err := s.check(ctx, "list", bucket); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	infos, err := s.fs.ReadDir(s.bucketDir(bucket))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, omniarchive.NewNoSuchBucketError("list", bucket)
		}
		return nil, translateError(err, "list", bucket, "")
	}

	entries := make([]omniarchive.ListEntry, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			continue
		}
		key, err := DecodeKey(info.Name())
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, opts.Prefix) || key <= opts.Marker {
			continue
		}
		entries = append(entries, omniarchive.ListEntry{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	limit := opts.MaxKeys
	if limit <= 0 || limit > s.maxKeys {
		limit = s.maxKeys
	}

	res := &omniarchive.ListResult{Entries: entries}
	if len(entries) > limit {
		res.Entries = entries[:limit]
		res.IsTruncated = true
	}
	return res, nil
}

// GetObject reads an object and its metadata.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (*omniarchive.Object, error) {
	if err := s.check(ctx, "get", bucket); err != nil {
		return nil, err
	}
	if err := validateKey("get", bucket, key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.fs.ReadFile(s.objectPath(bucket, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if !s.bucketExists(bucket) {
				return nil, omniarchive.NewNoSuchBucketError("get", bucket)
			}
			return nil, omniarchive.NewNotFoundError("get", bucket, key)
		}
		return nil, translateError(err, "get", bucket, key)
	}

	meta := map[string]string{}
	raw, err := s.fs.ReadFile(s.metaPath(bucket, key))
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, omniarchive.NewTransportError("get", bucket, key, 0, "", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, translateError(err, "get", bucket, key)
	}

	return &omniarchive.Object{Data: data, Metadata: meta}, nil
}

// PutObject writes an object through a temporary file and a rename.
func (s *Store) PutObject(ctx context.Context, bucket, key string, data []byte, metadata map[string]string) error {
	if err := s.check(ctx, "put", bucket); err != nil {
		return err
	}
	if err := validateKey("put", bucket, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bucketExists(bucket) {
		return omniarchive.NewNoSuchBucketError("put", bucket)
	}

	if err := s.writeAtomic(bucket, EncodeKey(key), data); err != nil {
		return translateError(err, "put", bucket, key)
	}

	metaPath := s.metaPath(bucket, key)
	if len(metadata) == 0 {
		if err := s.fs.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return translateError(err, "put", bucket, key)
		}
		return nil
	}

	raw, err := json.Marshal(metadata)
	if err != nil {
		return omniarchive.NewTransportError("put", bucket, key, 0, "", err)
	}
	if err := s.fs.MkdirAll(path.Join(s.bucketDir(bucket), metaDir)); err != nil {
		return translateError(err, "put", bucket, key)
	}
	if err := s.writeAtomic(bucket, path.Join(metaDir, EncodeKey(key)+".json"), raw); err != nil {
		return translateError(err, "put", bucket, key)
	}
	return nil
}

// DeleteObject removes an object and its metadata. A missing key is not an error.
func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := s.check(ctx, "delete", bucket); err != nil {
		return err
	}
	if err := validateKey("delete", bucket, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bucketExists(bucket) {
		return omniarchive.NewNoSuchBucketError("delete", bucket)
	}
	for _, p := range []string{s.objectPath(bucket, key), s.metaPath(bucket, key)} {
		if err := s.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return translateError(err, "delete", bucket, key)
		}
	}
	return nil
}

// DeleteBucket removes an empty bucket directory.
func (s *Store) DeleteBucket(ctx context.Context, bucket string) error {
	if err := s.check(ctx, "delete bucket", bucket); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.bucketDir(bucket)
	infos, err := s.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return omniarchive.NewNoSuchBucketError("delete bucket", bucket)
		}
		return translateError(err, "delete bucket", bucket, "")
	}
	for _, info := range infos {
		if !strings.HasPrefix(info.Name(), ".") {
			return omniarchive.NewTransportError("delete bucket", bucket, "", http.StatusConflict, omniarchive.CodeBucketNotEmpty, nil)
		}
	}

	// Only reserved entries remain
	for _, info := range infos {
		p := path.Join(dir, info.Name())
		if info.IsDir() {
			if err := s.removeDir(p); err != nil {
				return translateError(err, "delete bucket", bucket, "")
			}
			continue
		}
		if err := s.fs.Remove(p); err != nil {
			return translateError(err, "delete bucket", bucket, "")
		}
	}
	if err := s.fs.Remove(dir); err != nil {
		return translateError(err, "delete bucket", bucket, "")
	}
	return nil
}

// Close calls the closer given to New once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

func (s *Store) check(ctx context.Context, op, bucket string) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return &omniarchive.Error{Kind: omniarchive.KindTransport, Op: op, Bucket: bucket, Msg: "store is closed"}
	}
	if err := ctx.Err(); err != nil {
		return omniarchive.NewTransportError(op, bucket, "", 0, "", err)
	}
	if bucket == "" || bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) || strings.HasPrefix(bucket, ".") {
		return omniarchive.NewTransportError(op, bucket, "", http.StatusBadRequest, "InvalidBucketName", nil)
	}
	return nil
}

func (s *Store) bucketDir(bucket string) string {
	return path.Join(s.root, bucket)
}

func (s *Store) objectPath(bucket, key string) string {
	return path.Join(s.bucketDir(bucket), EncodeKey(key))
}

func (s *Store) metaPath(bucket, key string) string {
	return path.Join(s.bucketDir(bucket), metaDir, EncodeKey(key)+".json")
}

func (s *Store) bucketExists(bucket string) bool {
	info, err := s.fs.Stat(s.bucketDir(bucket))
	return err == nil && info.IsDir()
}

// writeAtomic writes name, relative to the bucket directory, via a
// temporary sibling so readers never see a partial object.
func (s *Store) writeAtomic(bucket, name string, data []byte) error {
	dst := path.Join(s.bucketDir(bucket), name)
	tmp := path.Join(path.Dir(dst), tmpPrefix+path.Base(dst))
	if err := s.fs.WriteFile(tmp, data); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, dst); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}

// removeDir removes a directory of plain files.
func (s *Store) removeDir(dir string) error {
	infos, err := s.fs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if err := s.fs.Remove(path.Join(dir, info.Name())); err != nil {
			return err
		}
	}
	return s.fs.Remove(dir)
}

// EncodeKey returns the file name of key. A leading "." is escaped so
// object files never collide with reserved names.
func EncodeKey(key string) string {
	name := url.PathEscape(key)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return name
}

// DecodeKey reverses EncodeKey.
func DecodeKey(name string) (string, error) {
	return url.PathUnescape(name)
}

func validateKey(op, bucket, key string) error {
	if key == "" {
		return omniarchive.NewTransportError(op, bucket, key, http.StatusBadRequest, omniarchive.CodeInvalidArgument, errors.New("empty key"))
	}
	return nil
}

// translateError converts filesystem errors to omniarchive errors.
func translateError(err error, op, bucket, key string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return omniarchive.NewTransportError(op, bucket, key, http.StatusNotFound, "", err)
	case errors.Is(err, fs.ErrPermission):
		return omniarchive.NewTransportError(op, bucket, key, http.StatusForbidden, "AccessDenied", err)
	default:
		return omniarchive.NewTransportError(op, bucket, key, 0, "", err)
	}
}

// Ensure Store implements omniarchive.ObjectStore
var _ omniarchive.ObjectStore = (*Store)(nil)
