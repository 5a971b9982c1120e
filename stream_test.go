package omniarchive_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/grokify/omniarchive"
	"github.com/grokify/omniarchive/backend/memory"
)

func TestStreamRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, memory.Config{})

	payload := []byte("line one\nline two\n")
	w := omniarchive.NewStream(ctx, store, testBucket, "obj")
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r := omniarchive.NewStream(ctx, store, testBucket, "obj")
	defer func() { _ = r.Close() }()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("read %q, want %q", got, payload)
	}
}

func TestStreamLazyFetch(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{ObjectStore: newStore(t, memory.Config{})}
	_ = store.PutObject(ctx, testBucket, "obj", []byte("remote"), nil)
	store.puts = 0

	s := omniarchive.NewStream(ctx, store, testBucket, "obj")
	if store.gets != 0 {
		t.Fatalf("NewStream made %d gets, want 0", store.gets)
	}
	if s.Fetched() {
		t.Error("Fetched() = true before first read")
	}

	buf := make([]byte, 3)
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if _, err := s.ReadLine(); err != nil {
		t.Fatalf("ReadLine failed: %v", err)
	}
	if store.gets != 1 {
		t.Errorf("gets = %d, want exactly 1", store.gets)
	}

	// Closing a clean stream does not upload
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if store.puts != 0 {
		t.Errorf("puts = %d, want 0 for a clean stream", store.puts)
	}
}

func TestStreamAbsentObject(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, memory.Config{})

	tests := []struct {
		name   string
		bucket string
	}{
		{"missing key", testBucket},
		{"missing bucket", "no-such-bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := omniarchive.NewStream(ctx, store, tt.bucket, "missing")
			n, err := s.Read(make([]byte, 8))
			if n != 0 || err != io.EOF {
				t.Errorf("Read = %d, %v; want 0, io.EOF", n, err)
			}
			if !s.Fetched() {
				t.Error("Fetched() = false after reading an absent object")
			}
			s.Discard()
		})
	}
}

func TestStreamDirtySkipsFetch(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{ObjectStore: newStore(t, memory.Config{})}
	_ = store.PutObject(ctx, testBucket, "obj", []byte("remote content"), nil)

	s := omniarchive.NewStream(ctx, store, testBucket, "obj")
	if _, err := s.Write([]byte("local")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != "local" {
		t.Errorf("read %q, want %q", got, "local")
	}
	if store.gets != 0 {
		t.Errorf("gets = %d, want 0 once dirty", store.gets)
	}

	// Write without a prior read replaces the remote object
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	obj, _ := store.ObjectStore.GetObject(ctx, testBucket, "obj")
	if string(obj.Data) != "local" {
		t.Errorf("remote = %q, want %q", obj.Data, "local")
	}
}

func TestStreamPresetContent(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{ObjectStore: newStore(t, memory.Config{})}
	_ = store.PutObject(ctx, testBucket, "obj", []byte("remote"), nil)

	s := omniarchive.NewStream(ctx, store, testBucket, "obj", omniarchive.WithContent([]byte("preset")))
	if !s.Dirty() {
		t.Error("stream with preset content should start dirty")
	}
	got, err := s.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if string(got) != "preset" || store.gets != 0 {
		t.Errorf("Bytes = %q with %d gets, want %q with none", got, store.gets, "preset")
	}
	s.Discard()
}

func TestStreamWriteSemantics(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, memory.Config{})
	_ = store.PutObject(ctx, testBucket, "obj", []byte("hello world"), nil)

	s := omniarchive.NewStream(ctx, store, testBucket, "obj")
	defer s.Discard()

	// Seek fetches, then Write overwrites in place
	if _, err := s.Seek(6, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if _, err := s.Write([]byte("WORLD!")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, _ := s.Bytes()
	if string(got) != "hello WORLD!" {
		t.Errorf("after overwrite = %q, want %q", got, "hello WORLD!")
	}

	// Writing past the end zero-fills the gap
	if _, err := s.Seek(2, io.SeekEnd); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	_, _ = s.Write([]byte("x"))
	got, _ = s.Bytes()
	if want := "hello WORLD!\x00\x00x"; string(got) != want {
		t.Errorf("after gap write = %q, want %q", got, want)
	}
}

func TestStreamSeekErrors(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, memory.Config{})
	s := omniarchive.NewStream(ctx, store, testBucket, "obj", omniarchive.WithContent([]byte("abc")))
	defer s.Discard()

	if _, err := s.Seek(-1, io.SeekStart); !omniarchive.IsValidation(err) {
		t.Errorf("Seek(-1) error = %v, want validation", err)
	}
	if _, err := s.Seek(0, 42); !omniarchive.IsValidation(err) {
		t.Errorf("Seek with bad whence error = %v, want validation", err)
	}
	pos, err := s.Seek(-1, io.SeekEnd)
	if err != nil || pos != 2 {
		t.Errorf("Seek(-1, end) = %d, %v; want 2", pos, err)
	}
	pos, err = s.Seek(-1, io.SeekCurrent)
	if err != nil || pos != 1 {
		t.Errorf("Seek(-1, current) = %d, %v; want 1", pos, err)
	}
}

func TestStreamWriteBeyondMaxSize(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{ObjectStore: newStore(t, memory.Config{})}

	tests := []struct {
		name   string
		offset int64
		data   string
	}{
		{"far offset", 1 << 62, "a"},
		{"max offset", math.MaxInt64, "a"},
		{"offset past cap, empty write", 9, ""},
		{"straddles cap", 6, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := omniarchive.NewStream(ctx, store, testBucket, "capped",
				omniarchive.WithContent([]byte("abc")), omniarchive.WithMaxObjectSize(8))
			defer s.Discard()

			if _, err := s.Seek(tt.offset, io.SeekStart); err != nil {
				t.Fatalf("Seek failed: %v", err)
			}
			n, err := s.Write([]byte(tt.data))
			if !omniarchive.IsSize(err) {
				t.Errorf("Write error = %v, want size error", err)
			}
			if n != 0 || s.Len() != 3 {
				t.Errorf("Write = %d, Len = %d; want 0, 3", n, s.Len())
			}
		})
	}

	s := omniarchive.NewStream(ctx, store, testBucket, "capped", omniarchive.WithMaxObjectSize(8))
	_, _ = s.Seek(5, io.SeekStart)
	if n, err := s.Write([]byte("xyz")); err != nil || n != 3 {
		t.Fatalf("Write up to the cap = %d, %v", n, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	obj, err := store.GetObject(ctx, testBucket, "capped")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	if want := "\x00\x00\x00\x00\x00xyz"; string(obj.Data) != want {
		t.Errorf("stored %q, want %q", obj.Data, want)
	}
}

func TestStreamTruncate(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{ObjectStore: newStore(t, memory.Config{})}
	_ = store.PutObject(ctx, testBucket, "obj", []byte("0123456789"), nil)

	s := omniarchive.NewStream(ctx, store, testBucket, "obj")
	_, _ = s.Seek(8, io.SeekStart)
	if err := s.Truncate(4); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if store.gets != 1 {
		t.Errorf("gets = %d, want Truncate to fetch once", store.gets)
	}
	if !s.Dirty() {
		t.Error("Truncate should mark the stream dirty")
	}
	if pos, _ := s.Seek(0, io.SeekCurrent); pos != 4 {
		t.Errorf("cursor = %d, want clamped to 4", pos)
	}
	if err := s.Truncate(-1); !omniarchive.IsValidation(err) {
		t.Errorf("Truncate(-1) error = %v, want validation", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	obj, _ := store.ObjectStore.GetObject(ctx, testBucket, "obj")
	if string(obj.Data) != "0123" {
		t.Errorf("remote = %q, want %q", obj.Data, "0123")
	}
}

func TestStreamReadLine(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, memory.Config{})
	_ = store.PutObject(ctx, testBucket, "obj", []byte("a\nbb\nccc"), nil)

	s := omniarchive.NewStream(ctx, store, testBucket, "obj")
	defer s.Discard()

	for _, want := range []string{"a\n", "bb\n", "ccc"} {
		line, err := s.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine failed: %v", err)
		}
		if string(line) != want {
			t.Errorf("ReadLine = %q, want %q", line, want)
		}
	}
	if _, err := s.ReadLine(); err != io.EOF {
		t.Errorf("ReadLine at end error = %v, want io.EOF", err)
	}
}

func TestStreamFlushValidation(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{ObjectStore: newStore(t, memory.Config{})}

	t.Run("empty", func(t *testing.T) {
		s := omniarchive.NewStream(ctx, store, testBucket, "empty")
		_, _ = s.Write(nil)
		if err := s.Flush(); !omniarchive.IsSize(err) {
			t.Errorf("Flush error = %v, want size error", err)
		}
		s.Discard()
	})

	t.Run("over cap", func(t *testing.T) {
		s := omniarchive.NewStream(ctx, store, testBucket, "big",
			omniarchive.WithContent([]byte("12345")), omniarchive.WithMaxObjectSize(4))
		err := s.Flush()
		if !omniarchive.IsSize(err) {
			t.Errorf("Flush error = %v, want size error", err)
		}
		if !errors.Is(err, omniarchive.ErrSize) {
			t.Error("size error should match ErrSize")
		}
		if !s.Dirty() {
			t.Error("failed flush should leave the stream dirty")
		}
		s.Discard()
	})

	t.Run("at cap", func(t *testing.T) {
		s := omniarchive.NewStream(ctx, store, testBucket, "fits", omniarchive.WithMaxObjectSize(4))
		_, _ = s.Write([]byte("1234"))
		if err := s.Flush(); err != nil {
			t.Errorf("Flush failed: %v", err)
		}
		s.Discard()
	})

	t.Run("clean", func(t *testing.T) {
		before := store.puts
		s := omniarchive.NewStream(ctx, store, testBucket, "clean")
		if err := s.Flush(); err != nil {
			t.Errorf("Flush of a clean stream failed: %v", err)
		}
		if store.puts != before {
			t.Error("Flush of a clean stream should not upload")
		}
		s.Discard()
	})
}

func TestStreamClose(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{ObjectStore: newStore(t, memory.Config{})}

	s := omniarchive.NewStream(ctx, store, testBucket, "obj")
	_, _ = s.Write([]byte("data"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if store.puts != 1 {
		t.Errorf("puts = %d, want exactly 1", store.puts)
	}

	ops := map[string]func() error{
		"read":     func() error { _, err := s.Read(make([]byte, 1)); return err },
		"write":    func() error { _, err := s.Write([]byte("x")); return err },
		"seek":     func() error { _, err := s.Seek(0, io.SeekStart); return err },
		"flush":    s.Flush,
		"readline": func() error { _, err := s.ReadLine(); return err },
		"truncate": func() error { return s.Truncate(0) },
	}
	for name, op := range ops {
		if err := op(); !omniarchive.IsClosed(err) {
			t.Errorf("%s after Close error = %v, want closed error", name, err)
		}
	}
}

func TestStreamCloseFlushFailure(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{ObjectStore: newStore(t, memory.Config{})}
	store.putErr = omniarchive.NewTransportError("put", testBucket, "obj", 500, "InternalError", nil)

	s := omniarchive.NewStream(ctx, store, testBucket, "obj")
	_, _ = s.Write([]byte("data"))
	err := s.Close()
	if !omniarchive.IsTransport(err) {
		t.Fatalf("Close error = %v, want transport error", err)
	}
	if !s.Closed() {
		t.Error("stream should be closed after a failed flush")
	}
	if err := s.Close(); err != nil || store.puts != 1 {
		t.Errorf("second Close = %v with %d puts, want nil with 1", err, store.puts)
	}
}

func TestStreamFetchTransportError(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{ObjectStore: newStore(t, memory.Config{})}
	_ = store.ObjectStore.PutObject(ctx, testBucket, "obj", []byte("data"), nil)
	store.getErr = errors.New("connection reset")

	s := omniarchive.NewStream(ctx, store, testBucket, "obj")
	defer s.Discard()

	_, err := s.Bytes()
	if !omniarchive.IsTransport(err) {
		t.Fatalf("Bytes error = %v, want transport error", err)
	}
	if s.Fetched() {
		t.Error("failed fetch should leave the stream unfetched")
	}

	store.getErr = nil
	got, err := s.Bytes()
	if err != nil || string(got) != "data" {
		t.Errorf("retry Bytes = %q, %v; want %q", got, err, "data")
	}
}

func TestStreamMetadata(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, memory.Config{})
	_ = store.PutObject(ctx, testBucket, "obj", []byte("x"), map[string]string{"remote": "r", "shared": "remote"})

	shared := map[string]string{"shared": "local"}
	a := omniarchive.NewStream(ctx, store, testBucket, "obj", omniarchive.WithMetadata(shared))
	b := omniarchive.NewStream(ctx, store, testBucket, "other", omniarchive.WithMetadata(shared))
	defer a.Discard()
	defer b.Discard()

	a.SetMetadata("only-a", "1")
	if _, ok := b.Metadata()["only-a"]; ok {
		t.Error("metadata leaked between streams")
	}
	if _, ok := shared["only-a"]; ok {
		t.Error("SetMetadata modified the caller's map")
	}

	// Fetch merges remote metadata without overriding local entries
	_, _ = a.Bytes()
	meta := a.Metadata()
	if meta["remote"] != "r" || meta["shared"] != "local" {
		t.Errorf("metadata after fetch = %v", meta)
	}

	c := omniarchive.NewStream(ctx, store, testBucket, "fresh")
	defer c.Discard()
	if len(c.Metadata()) != 0 {
		t.Errorf("fresh stream metadata = %v, want empty", c.Metadata())
	}
}

func TestStreamObserver(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, memory.Config{})
	obs := &recordingObserver{}

	s := omniarchive.NewStream(ctx, store, testBucket, "obj", omniarchive.WithStreamObserver(obs))
	_, _ = s.Bytes()
	_, _ = s.Write([]byte("abc"))
	_ = s.Close()

	if len(obs.fetched) != 1 || obs.fetched[0] != "obj:absent" {
		t.Errorf("fetched = %v", obs.fetched)
	}
	if len(obs.flushed) != 1 || obs.flushed[0] != "obj:3" {
		t.Errorf("flushed = %v", obs.flushed)
	}
}
