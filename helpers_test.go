package omniarchive_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/grokify/omniarchive"
	"github.com/grokify/omniarchive/backend/memory"
)

const testBucket = "archives"

// testClock is a settable time source.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// countingStore wraps a store, counts calls and injects failures.
type countingStore struct {
	omniarchive.ObjectStore

	gets, puts, lists, deletes int

	getErr    error
	putErr    error
	listErr   error
	deleteErr map[string]error
}

func (s *countingStore) GetObject(ctx context.Context, bucket, key string) (*omniarchive.Object, error) {
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.ObjectStore.GetObject(ctx, bucket, key)
}

func (s *countingStore) PutObject(ctx context.Context, bucket, key string, data []byte, metadata map[string]string) error {
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	return s.ObjectStore.PutObject(ctx, bucket, key, data, metadata)
}

func (s *countingStore) ListBucket(ctx context.Context, bucket string, opts omniarchive.ListOptions) (*omniarchive.ListResult, error) {
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.ObjectStore.ListBucket(ctx, bucket, opts)
}

func (s *countingStore) DeleteObject(ctx context.Context, bucket, key string) error {
	s.deletes++
	if err, ok := s.deleteErr[key]; ok {
		return err
	}
	return s.ObjectStore.DeleteObject(ctx, bucket, key)
}

// newStore returns a memory store with the test bucket created.
func newStore(t *testing.T, cfg memory.Config) *memory.Backend {
	t.Helper()
	store := memory.NewWithConfig(cfg)
	if err := store.CreateBucket(context.Background(), testBucket); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newArchive(t *testing.T, store omniarchive.ObjectStore, prefix string, clk *testClock, opts ...omniarchive.Option) *omniarchive.Archive {
	t.Helper()
	opts = append([]omniarchive.Option{
		omniarchive.WithClock(clk.Now),
		omniarchive.WithLocation(time.UTC),
	}, opts...)
	arc, err := omniarchive.New(store, testBucket, prefix, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return arc
}

// writeVersion stores content as a new version for logical and advances
// the clock so the next version gets a later physical date.
func writeVersion(t *testing.T, arc *omniarchive.Archive, clk *testClock, logical time.Time, content string) string {
	t.Helper()
	fqon, err := arc.WriteVersion(context.Background(), logical, func(h *omniarchive.Handle) error {
		_, err := h.Write([]byte(content))
		return err
	})
	if err != nil {
		t.Fatalf("WriteVersion failed: %v", err)
	}
	clk.Advance(time.Second)
	return fqon
}

func daysAgo(clk *testClock, n int) time.Time {
	return clk.Now().AddDate(0, 0, -n)
}

// recordingObserver records events as "key:detail" strings.
type recordingObserver struct {
	fetched []string
	flushed []string
	evicted []string
}

func (o *recordingObserver) ObjectFetched(_, key string, size int, found bool) {
	if !found {
		o.fetched = append(o.fetched, key+":absent")
		return
	}
	o.fetched = append(o.fetched, fmt.Sprintf("%s:%d", key, size))
}

func (o *recordingObserver) ObjectFlushed(_, key string, size int) {
	o.flushed = append(o.flushed, fmt.Sprintf("%s:%d", key, size))
}

func (o *recordingObserver) VersionEvicted(_, key string, err error) {
	if err != nil {
		o.evicted = append(o.evicted, key+":failed")
		return
	}
	o.evicted = append(o.evicted, key)
}
