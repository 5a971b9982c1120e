package omniarchive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Archive is a set of objects in one bucket that represent historical
// versions of the same logical object.
//
// Versions are keyed <prefix>.<logical_date>.<physical_date>. The archive
// caches its retention settings for its lifetime; only SetRetention
// refreshes them.
//
// An Archive is not safe for concurrent use.
type Archive struct {
	store     ObjectStore
	bucket    string
	prefix    string
	config    *Config
	logger    *slog.Logger
	observer  Observer
	retention *Retention
}

// New returns an archive for prefix in bucket. No remote call is made.
// New fails with a validation error if prefix is empty or contains
// Delimiter.
func New(store ObjectStore, bucket, prefix string, opts ...Option) (*Archive, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, validationError("new archive", "bucket is required")
	}

	cfg := ApplyOptions(opts...)
	return &Archive{
		store:    store,
		bucket:   bucket,
		prefix:   prefix,
		config:   cfg,
		logger:   cfg.logger().With("bucket", bucket, "prefix", prefix),
		observer: cfg.observer(),
	}, nil
}

// Bucket returns the bucket name.
func (a *Archive) Bucket() string { return a.bucket }

// Prefix returns the logical object name.
func (a *Archive) Prefix() string { return a.prefix }

func (a *Archive) String() string {
	return fmt.Sprintf("<Archive %s/%s>", a.bucket, a.prefix)
}

// EnsureBucket creates the archive bucket if it does not exist.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	return EnsureBucket(ctx, a.store, a.bucket)
}

// NewVersion returns a handle for a new version whose logical date is today.
func (a *Archive) NewVersion(ctx context.Context) (*Handle, error) {
	return a.NewVersionAt(ctx, a.now())
}

// NewVersionAt returns a handle for a new version standing for the
// calendar date of logical, as seen in logical's own location. The
// physical date is the current time.
func (a *Archive) NewVersionAt(ctx context.Context, logical time.Time) (*Handle, error) {
	key, err := NewVersionKey(a.prefix, logical, a.now())
	if err != nil {
		return nil, err
	}
	a.logger.Debug("new version", "key", key.String())
	return a.newHandle(ctx, key, true), nil
}

// Selector picks an existing version. Zero fields are not set.
//
// When FQON is set the other fields are ignored, even if set.
type Selector struct {
	FQON         string
	LogicalDate  time.Time
	PhysicalDate time.Time
}

// ParseSelector builds a selector from string input. Empty strings are
// not set; dates use the YYYYMMDD and YYYYMMDDHHMMSS layouts in loc.
func ParseSelector(fqon, logical, physical string, loc *time.Location) (Selector, error) {
	sel := Selector{FQON: fqon}
	if loc == nil {
		loc = time.Local
	}
	if logical != "" {
		t, err := ParseLogicalDate(logical, loc)
		if err != nil {
			return Selector{}, err
		}
		sel.LogicalDate = t
	}
	if physical != "" {
		t, err := ParsePhysicalDate(physical, loc)
		if err != nil {
			return Selector{}, err
		}
		sel.PhysicalDate = t
	}
	return sel, nil
}

// Existing returns a handle for an existing version. Resolution order:
//
//  1. FQON set: that exact key.
//  2. Both dates set: the version with exactly that key.
//  3. Only PhysicalDate: the first version with that physical date.
//  4. Only LogicalDate: the newest version of that logical date.
//  5. Nothing set: the newest version overall.
//
// Cases 2 to 5 fail with a KindNotFound error when nothing matches.
func (a *Archive) Existing(ctx context.Context, sel Selector) (*Handle, error) {
	if sel.FQON != "" {
		key, err := ParseVersionKey(sel.FQON)
		if err != nil {
			return nil, err
		}
		return a.newHandle(ctx, key, false), nil
	}

	var ld, pd string
	var err error
	if !sel.LogicalDate.IsZero() {
		if ld, err = FormatLogicalDate(sel.LogicalDate); err != nil {
			return nil, err
		}
	}
	if !sel.PhysicalDate.IsZero() {
		if pd, err = FormatPhysicalDate(sel.PhysicalDate); err != nil {
			return nil, err
		}
	}

	switch {
	case ld != "" && pd != "":
		want := VersionKey{Prefix: a.prefix, LogicalDate: ld, PhysicalDate: pd}
		versions, err := a.versions(ctx, WithListPrefix(want.String()))
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			if v == want {
				return a.newHandle(ctx, v, false), nil
			}
		}
		return nil, notFoundError("existing", a.bucket, fmt.Sprintf("no version %s", want))

	case pd != "":
		versions, err := a.versions(ctx)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			if v.PhysicalDate == pd {
				return a.newHandle(ctx, v, false), nil
			}
		}
		return nil, notFoundError("existing", a.bucket, fmt.Sprintf("no version of %s with physical date %s", a.prefix, pd))

	case ld != "":
		versions, err := a.versions(ctx, WithListPrefix(a.prefix+Delimiter+ld+Delimiter))
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, notFoundError("existing", a.bucket, fmt.Sprintf("no version of %s with logical date %s", a.prefix, ld))
		}
		return a.newHandle(ctx, versions[len(versions)-1], false), nil

	default:
		return a.Latest(ctx)
	}
}

// Latest returns a handle for the newest version in the archive.
func (a *Archive) Latest(ctx context.Context) (*Handle, error) {
	versions, err := a.versions(ctx)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, notFoundError("existing", a.bucket, fmt.Sprintf("archive %s is empty", a.prefix))
	}
	return a.newHandle(ctx, versions[len(versions)-1], false), nil
}

// List returns every key under "<prefix>." in ascending order, following
// pagination markers until the listing is complete. The retention props
// object is not included. A missing bucket lists as empty.
func (a *Archive) List(ctx context.Context, opts ...ListOption) ([]string, error) {
	o := ListOptions{Prefix: a.prefix + Delimiter, MaxKeys: a.config.PageSize}
	for _, opt := range opts {
		opt(&o)
	}

	keys := []string{}
	for {
		a.logger.Debug("listing", "list_prefix", o.Prefix, "marker", o.Marker)
		res, err := a.store.ListBucket(ctx, a.bucket, o)
		if err != nil {
			if IsNoSuchBucket(err) {
				return []string{}, nil
			}
			return nil, asTransport("list", a.bucket, "", err)
		}
		keys = append(keys, res.Keys()...)
		if !res.IsTruncated {
			break
		}

		next := res.NextMarker
		if next == "" && len(res.Entries) > 0 {
			next = res.Entries[len(res.Entries)-1].Key
		}
		if next == "" || next <= o.Marker {
			return nil, NewTransportError("list", a.bucket, "", 0, "",
				errors.New("truncated listing did not advance the marker"))
		}
		o.Marker = next
	}

	if n := len(keys); n > 0 && keys[n-1] == PropsKey(a.prefix) {
		keys = keys[:n-1]
	}
	return keys, nil
}

// versions lists keys and keeps those that parse as versions of this
// archive, in listing order.
func (a *Archive) versions(ctx context.Context, opts ...ListOption) ([]VersionKey, error) {
	keys, err := a.List(ctx, opts...)
	if err != nil {
		return nil, err
	}
	versions := make([]VersionKey, 0, len(keys))
	for _, k := range keys {
		v, err := ParseVersionKey(k)
		if err != nil || v.Prefix != a.prefix {
			a.logger.Debug("skipping non-version key", "key", k)
			continue
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// WriteVersion creates a new version for logical, passes its handle to fn
// and closes it. If fn fails or panics the handle is discarded without
// flushing. It returns the new version's key.
func (a *Archive) WriteVersion(ctx context.Context, logical time.Time, fn func(h *Handle) error) (string, error) {
	h, err := a.NewVersionAt(ctx, logical)
	if err != nil {
		return "", err
	}

	committed := false
	defer func() {
		if !committed {
			h.Discard()
		}
	}()

	if err := fn(h); err != nil {
		return "", err
	}
	committed = true
	if err := h.Close(); err != nil {
		return "", err
	}
	return h.FQON(), nil
}

// ReadVersion resolves sel, passes the handle to fn and closes it.
func (a *Archive) ReadVersion(ctx context.Context, sel Selector, fn func(h *Handle) error) (err error) {
	h, err := a.Existing(ctx, sel)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(h)
}

func (a *Archive) now() time.Time {
	return a.config.Clock().In(a.config.Location)
}
