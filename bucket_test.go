package omniarchive_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/grokify/omniarchive"
	"github.com/grokify/omniarchive/backend/memory"
)

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer func() { _ = store.Close() }()

	if err := omniarchive.EnsureBucket(ctx, store, "b"); err != nil {
		t.Fatalf("EnsureBucket failed: %v", err)
	}
	if !store.HasBucket("b") {
		t.Fatal("bucket not created")
	}
	_ = store.PutObject(ctx, "b", "k", []byte("x"), nil)
	if err := omniarchive.EnsureBucket(ctx, store, "b"); err != nil {
		t.Fatalf("EnsureBucket on existing bucket failed: %v", err)
	}
	if store.Count("b") != 1 {
		t.Error("EnsureBucket disturbed existing objects")
	}
}

func TestEnsureBucketListFailure(t *testing.T) {
	store := &countingStore{ObjectStore: memory.New(), listErr: errors.New("refused")}
	defer func() { _ = store.Close() }()

	err := omniarchive.EnsureBucket(context.Background(), store, "b")
	if !omniarchive.IsTransport(err) {
		t.Errorf("EnsureBucket error = %v, want transport", err)
	}
}

func TestForceDeleteBucket(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWithConfig(memory.Config{MaxKeys: 3})
	defer func() { _ = store.Close() }()
	_ = store.CreateBucket(ctx, "b")
	for i := 0; i < 10; i++ {
		_ = store.PutObject(ctx, "b", fmt.Sprintf("key-%02d", i), []byte("x"), nil)
	}

	if err := store.DeleteBucket(ctx, "b"); err == nil {
		t.Fatal("DeleteBucket on a non-empty bucket succeeded")
	}
	if err := omniarchive.ForceDeleteBucket(ctx, store, "b"); err != nil {
		t.Fatalf("ForceDeleteBucket failed: %v", err)
	}
	if store.HasBucket("b") {
		t.Error("bucket still exists")
	}
	if err := omniarchive.ForceDeleteBucket(ctx, store, "b"); err != nil {
		t.Errorf("ForceDeleteBucket on a missing bucket failed: %v", err)
	}
}

func TestForceDeleteBucketDeleteFailure(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	defer func() { _ = base.Close() }()
	_ = base.CreateBucket(ctx, "b")
	_ = base.PutObject(ctx, "b", "locked", []byte("x"), nil)

	store := &countingStore{ObjectStore: base, deleteErr: map[string]error{
		"locked": omniarchive.NewTransportError("delete", "b", "locked", 403, "AccessDenied", nil),
	}}
	if err := omniarchive.ForceDeleteBucket(ctx, store, "b"); !omniarchive.IsTransport(err) {
		t.Errorf("ForceDeleteBucket error = %v, want transport", err)
	}
	if !base.HasBucket("b") {
		t.Error("bucket deleted despite a failed object delete")
	}
}

// stickyStore acknowledges deletes without removing anything.
type stickyStore struct {
	omniarchive.ObjectStore
	lists int
}

func (s *stickyStore) ListBucket(ctx context.Context, bucket string, opts omniarchive.ListOptions) (*omniarchive.ListResult, error) {
	s.lists++
	return s.ObjectStore.ListBucket(ctx, bucket, opts)
}

func (s *stickyStore) DeleteObject(context.Context, string, string) error { return nil }

func TestForceDeleteBucketStickyObjects(t *testing.T) {
	ctx := context.Background()
	base := memory.NewWithConfig(memory.Config{MaxKeys: 2})
	defer func() { _ = base.Close() }()
	_ = base.CreateBucket(ctx, "b")
	for i := 0; i < 5; i++ {
		_ = base.PutObject(ctx, "b", fmt.Sprintf("key-%d", i), []byte("x"), nil)
	}

	store := &stickyStore{ObjectStore: base}
	if err := omniarchive.ForceDeleteBucket(ctx, store, "b"); !omniarchive.IsTransport(err) {
		t.Errorf("ForceDeleteBucket error = %v, want transport", err)
	}
	if store.lists != 3 {
		t.Errorf("listed %d pages, want 3", store.lists)
	}
	if !base.HasBucket("b") {
		t.Error("bucket deleted while objects remain")
	}
}
