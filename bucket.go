package omniarchive

import (
	"context"
	"errors"
)

// EnsureBucket creates bucket if listing it reports that it does not exist.
// Any other listing failure is returned.
func EnsureBucket(ctx context.Context, store ObjectStore, bucket string) error {
	_, err := store.ListBucket(ctx, bucket, ListOptions{MaxKeys: 1})
	if err == nil {
		return nil
	}
	if !IsNoSuchBucket(err) {
		return asTransport("ensure bucket", bucket, "", err)
	}
	if err := store.CreateBucket(ctx, bucket); err != nil {
		return asTransport("create bucket", bucket, "", err)
	}
	return nil
}

// ForceDeleteBucket deletes every object in bucket and then the bucket
// itself. A bucket that does not exist is not an error.
//
// Listing continues from the last key of each page, so a store that keeps
// objects after acknowledging their deletion is walked once and then fails
// on DeleteBucket instead of being listed forever.
func ForceDeleteBucket(ctx context.Context, store ObjectStore, bucket string) error {
	opts := ListOptions{MaxKeys: DefaultMaxKeys}
	for {
		res, err := store.ListBucket(ctx, bucket, opts)
		if err != nil {
			if IsNoSuchBucket(err) {
				return nil
			}
			return asTransport("list", bucket, "", err)
		}
		for _, e := range res.Entries {
			if err := store.DeleteObject(ctx, bucket, e.Key); err != nil && !IsNotFound(err) {
				return asTransport("delete", bucket, e.Key, err)
			}
		}
		if !res.IsTruncated {
			break
		}

		next := res.NextMarker
		if next == "" && len(res.Entries) > 0 {
			next = res.Entries[len(res.Entries)-1].Key
		}
		if next == "" || next <= opts.Marker {
			return NewTransportError("list", bucket, "", 0, "",
				errors.New("truncated listing did not advance the marker"))
		}
		opts.Marker = next
	}

	if err := store.DeleteBucket(ctx, bucket); err != nil && !IsNoSuchBucket(err) {
		return asTransport("delete bucket", bucket, "", err)
	}
	return nil
}
