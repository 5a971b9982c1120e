package omniarchive

// Observer receives events from streams and archives.
// Implementations must be safe for concurrent use; see package metrics
// for a Prometheus implementation.
type Observer interface {
	// ObjectFetched is called after a remote fetch. found is false when
	// the object did not exist.
	ObjectFetched(bucket, key string, size int, found bool)

	// ObjectFlushed is called after a successful flush.
	ObjectFlushed(bucket, key string, size int)

	// VersionEvicted is called for each version deleted by Scratch.
	// err is non-nil when the delete failed.
	VersionEvicted(bucket, key string, err error)
}

type nopObserver struct{}

func (nopObserver) ObjectFetched(string, string, int, bool) {}
func (nopObserver) ObjectFlushed(string, string, int)       {}
func (nopObserver) VersionEvicted(string, string, error)    {}
