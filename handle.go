package omniarchive

import "context"

// Handle is a Stream bound to one version of an archive. Handles are only
// obtained from an Archive.
type Handle struct {
	*Stream
	archive *Archive
	version VersionKey
	created bool
}

func (a *Archive) newHandle(ctx context.Context, key VersionKey, created bool) *Handle {
	meta := map[string]string{
		MetaLogicalDate:  key.LogicalDate,
		MetaPhysicalDate: key.PhysicalDate,
		MetaPrefix:       key.Prefix,
	}
	s := NewStream(ctx, a.store, a.bucket, key.String(),
		WithMetadata(meta),
		WithMaxObjectSize(a.config.MaxObjectSize),
		WithStreamLogger(a.config.logger()),
		WithStreamObserver(a.observer),
	)
	return &Handle{Stream: s, archive: a, version: key, created: created}
}

// FQON returns the fully qualified object name of the version.
func (h *Handle) FQON() string { return h.version.String() }

// Version returns the parsed version key.
func (h *Handle) Version() VersionKey { return h.version }

// LogicalDate returns the YYYYMMDD logical date of the version.
func (h *Handle) LogicalDate() string { return h.version.LogicalDate }

// PhysicalDate returns the YYYYMMDDHHMMSS physical date of the version.
func (h *Handle) PhysicalDate() string { return h.version.PhysicalDate }

// Close flushes and closes the handle. With WithScratchOnClose, closing a
// handle for a new version then runs Scratch on the archive.
func (h *Handle) Close() error {
	if h.Stream.Closed() {
		return nil
	}
	if err := h.Stream.Close(); err != nil {
		return err
	}
	if h.created && h.archive.config.ScratchOnClose {
		if _, err := h.archive.Scratch(h.Stream.ctx); err != nil {
			return err
		}
	}
	return nil
}

// String returns the bucket and version key.
func (h *Handle) String() string {
	return h.Stream.String()
}
