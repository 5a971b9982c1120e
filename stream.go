package omniarchive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/grokify/mogo/log/slogutil"
)

// Stream reads and writes one remote object through an in-memory buffer.
//
// The remote object is fetched lazily by the first Read, ReadLine, Seek,
// Truncate or Bytes call, unless the stream already holds unflushed local
// writes; local edits always win over remote state. Write never fetches, so
// writing to a stream that has not been read replaces the remote content.
// Flush uploads the whole buffer in a single overwrite. Close flushes a
// dirty stream once and makes every later call except Close fail.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	ctx      context.Context
	store    ObjectStore
	bucket   string
	key      string
	meta     map[string]string
	buf      []byte
	pos      int64
	maxSize  int64
	fetched  bool
	dirty    bool
	closed   bool
	logger   *slog.Logger
	observer Observer
}

// NewStream returns a stream bound to bucket/key. No remote call is made.
// ctx is used for every remote call the stream makes.
func NewStream(ctx context.Context, store ObjectStore, bucket, key string, opts ...StreamOption) *Stream {
	cfg := ApplyStreamOptions(opts...)
	if ctx == nil {
		ctx = context.Background()
	}

	s := &Stream{
		ctx:      ctx,
		store:    store,
		bucket:   bucket,
		key:      key,
		meta:     make(map[string]string, len(cfg.Metadata)),
		maxSize:  cfg.MaxObjectSize,
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}
	for k, v := range cfg.Metadata {
		s.meta[k] = v
	}
	if s.maxSize <= 0 {
		s.maxSize = MaxObjectSize
	}
	if s.logger == nil {
		s.logger = slogutil.Null()
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if len(cfg.Content) > 0 {
		s.buf = append([]byte(nil), cfg.Content...)
		s.dirty = true
	}
	return s
}

// Bucket returns the bucket name.
func (s *Stream) Bucket() string { return s.bucket }

// Key returns the object key.
func (s *Stream) Key() string { return s.key }

// String returns "bucket/key".
func (s *Stream) String() string { return s.bucket + "/" + s.key }

// Len returns the current buffer length without fetching.
func (s *Stream) Len() int { return len(s.buf) }

// Dirty reports whether the buffer holds unflushed changes.
func (s *Stream) Dirty() bool { return s.dirty }

// Fetched reports whether the remote object has been fetched.
func (s *Stream) Fetched() bool { return s.fetched }

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool { return s.closed }

// Metadata returns a copy of the metadata sent on flush.
func (s *Stream) Metadata() map[string]string {
	m := make(map[string]string, len(s.meta))
	for k, v := range s.meta {
		m[k] = v
	}
	return m
}

// SetMetadata sets one metadata entry for the next flush.
func (s *Stream) SetMetadata(key, value string) {
	s.meta[key] = value
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	if err := s.prepare("read"); err != nil {
		return 0, err
	}
	if s.pos >= int64(len(s.buf)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, s.buf[s.pos:])
	s.pos += int64(n)
	return n, nil
}

// ReadLine returns the bytes from the cursor up to and including the next
// newline, or to the end of the buffer. It returns io.EOF when the cursor
// is at the end.
func (s *Stream) ReadLine() ([]byte, error) {
	if err := s.prepare("readline"); err != nil {
		return nil, err
	}
	if s.pos >= int64(len(s.buf)) {
		return nil, io.EOF
	}
	rest := s.buf[s.pos:]
	end := len(rest)
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		end = i + 1
	}
	line := append([]byte(nil), rest[:end]...)
	s.pos += int64(end)
	return line, nil
}

// Bytes returns a copy of the whole buffer.
func (s *Stream) Bytes() ([]byte, error) {
	if err := s.prepare("bytes"); err != nil {
		return nil, err
	}
	return append([]byte(nil), s.buf...), nil
}

// Write implements io.Writer. It writes at the cursor, overwriting and
// extending the buffer; a cursor past the end is zero-filled first. A write
// that would end beyond the maximum object size fails with a KindSize error
// and leaves the buffer unchanged.
func (s *Stream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, closedError("write", s.bucket, s.key)
	}
	if s.pos > s.maxSize || int64(len(p)) > s.maxSize-s.pos {
		return 0, sizeError("write", s.bucket, s.key, fmt.Sprintf("write of %d bytes at offset %d exceeds %d bytes", len(p), s.pos, s.maxSize))
	}
	s.dirty = true

	if gap := s.pos - int64(len(s.buf)); gap > 0 {
		s.buf = append(s.buf, make([]byte, gap)...)
	}
	n := copy(s.buf[s.pos:], p)
	s.buf = append(s.buf, p[n:]...)
	s.pos += int64(len(p))
	return len(p), nil
}

// Seek implements io.Seeker. Seeking past the end is allowed.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if err := s.prepare("seek"); err != nil {
		return 0, err
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.pos + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, validationError("seek", fmt.Sprintf("invalid whence %d", whence))
	}
	if abs < 0 {
		return 0, validationError("seek", "negative position")
	}
	s.pos = abs
	return abs, nil
}

// Truncate shrinks the buffer to size bytes and marks the stream dirty.
// A size at or beyond the current length leaves the content unchanged.
func (s *Stream) Truncate(size int64) error {
	if err := s.prepare("truncate"); err != nil {
		return err
	}
	if size < 0 {
		return validationError("truncate", "negative size")
	}

	s.dirty = true
	if size < int64(len(s.buf)) {
		s.buf = s.buf[:size]
	}
	if s.pos > size {
		s.pos = size
	}
	return nil
}

// Flush uploads the whole buffer, overwriting the remote object.
// It is a no-op when the stream is not dirty.
func (s *Stream) Flush() error {
	if s.closed {
		return closedError("flush", s.bucket, s.key)
	}
	if !s.dirty {
		return nil
	}

	size := int64(len(s.buf))
	if size == 0 {
		return sizeError("flush", s.bucket, s.key, "content length must be greater than zero")
	}
	if size > s.maxSize {
		return sizeError("flush", s.bucket, s.key, fmt.Sprintf("content length %d exceeds %d bytes", size, s.maxSize))
	}

	s.logger.Info("flushing object", "bucket", s.bucket, "key", s.key, "size", size)
	if err := s.store.PutObject(s.ctx, s.bucket, s.key, s.buf, s.Metadata()); err != nil {
		return asTransport("put", s.bucket, s.key, err)
	}

	s.dirty = false
	s.observer.ObjectFlushed(s.bucket, s.key, len(s.buf))
	return nil
}

// Close flushes a dirty stream and releases the buffer. The stream is
// closed even when the flush fails. Closing a closed stream is a no-op.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}

	var err error
	if s.dirty {
		err = s.Flush()
	}
	s.closed = true
	s.buf = nil
	s.pos = 0
	return err
}

// Discard closes the stream without flushing pending changes.
func (s *Stream) Discard() {
	s.closed = true
	s.dirty = false
	s.buf = nil
	s.pos = 0
}

// prepare rejects closed streams and performs the lazy fetch.
func (s *Stream) prepare(op string) error {
	if s.closed {
		return closedError(op, s.bucket, s.key)
	}
	return s.fetch()
}

// fetch loads the remote object into the buffer once, unless local writes
// are pending. A missing object or bucket leaves the buffer empty.
func (s *Stream) fetch() error {
	if s.dirty || s.fetched {
		return nil
	}

	s.logger.Debug("fetching object", "bucket", s.bucket, "key", s.key)
	obj, err := s.store.GetObject(s.ctx, s.bucket, s.key)
	if err != nil {
		if IsNotFound(err) || IsNoSuchBucket(err) {
			s.fetched = true
			s.logger.Debug("object absent", "bucket", s.bucket, "key", s.key)
			s.observer.ObjectFetched(s.bucket, s.key, 0, false)
			return nil
		}
		return asTransport("get", s.bucket, s.key, err)
	}

	s.fetched = true
	s.buf = append(s.buf[:0], obj.Data...)
	s.pos = 0
	for k, v := range obj.Metadata {
		if _, ok := s.meta[k]; !ok {
			s.meta[k] = v
		}
	}
	s.observer.ObjectFetched(s.bucket, s.key, len(s.buf), true)
	return nil
}
