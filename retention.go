package omniarchive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Default retention used when an archive has no props object.
const (
	DefaultRetentionDays   = 400
	DefaultRetentionCopies = 10
)

// Retention is the persisted retention policy of an archive.
//
// A version is deleted by Scratch only when it is both a count-surplus
// candidate and old enough:
//   - Copies: number of newest versions exempt from deletion. 0 makes
//     every version a candidate; a negative value disables deletion.
//   - Days: age in days a candidate must exceed. 0 deletes candidates
//     regardless of age; a negative value keeps them indefinitely.
type Retention struct {
	Days   int `json:"days"`
	Copies int `json:"copies"`
}

// DefaultRetention returns the retention used when none is persisted.
func DefaultRetention() Retention {
	return Retention{Days: DefaultRetentionDays, Copies: DefaultRetentionCopies}
}

func (r Retention) String() string {
	return fmt.Sprintf("days=%d copies=%d", r.Days, r.Copies)
}

// Evicts reports whether a candidate aged ageDays whole days is deleted.
func (r Retention) Evicts(ageDays int) bool {
	switch {
	case r.Days == 0:
		return true
	case r.Days > 0:
		return ageDays > r.Days
	default:
		return false
	}
}

// SetRetention persists the retention props object and updates the
// cached policy.
func (a *Archive) SetRetention(ctx context.Context, days, copies int) error {
	r := Retention{Days: days, Copies: copies}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	s := NewStream(ctx, a.store, a.bucket, PropsKey(a.prefix),
		WithContent(data),
		WithStreamLogger(a.config.logger()),
		WithStreamObserver(a.observer),
	)
	if err := s.Close(); err != nil {
		return err
	}

	a.retention = &r
	a.logger.Info("retention set", "days", days, "copies", copies)
	return nil
}

// Retention returns the cached policy, loading it on first use. An archive
// without a props object reports DefaultRetention, which is not cached.
func (a *Archive) Retention(ctx context.Context) (Retention, error) {
	if a.retention != nil {
		return *a.retention, nil
	}
	r, err := a.loadRetention(ctx)
	if err != nil {
		if IsNotFound(err) {
			return DefaultRetention(), nil
		}
		return Retention{}, err
	}
	a.retention = &r
	return r, nil
}

// loadRetention reads the props object. A missing or empty object is
// KindNotFound; undecodable content is KindValidation.
func (a *Archive) loadRetention(ctx context.Context) (Retention, error) {
	key := PropsKey(a.prefix)
	s := NewStream(ctx, a.store, a.bucket, key,
		WithStreamLogger(a.config.logger()),
		WithStreamObserver(a.observer),
	)
	defer s.Discard()

	data, err := s.Bytes()
	if err != nil {
		return Retention{}, err
	}
	if len(data) == 0 {
		return Retention{}, NewNotFoundError("load retention", a.bucket, key)
	}

	var raw struct {
		Days   *int `json:"days"`
		Copies *int `json:"copies"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Retention{}, &Error{Kind: KindValidation, Op: "load retention", Bucket: a.bucket, Key: key, Msg: "corrupt props", Err: err}
	}
	if raw.Days == nil || raw.Copies == nil {
		return Retention{}, &Error{Kind: KindValidation, Op: "load retention", Bucket: a.bucket, Key: key, Msg: "props missing days or copies"}
	}

	r := Retention{Days: *raw.Days, Copies: *raw.Copies}
	a.logger.Debug("retention loaded", "days", r.Days, "copies", r.Copies)
	return r, nil
}

// retentionForScratch never fails. Absent or corrupt props are replaced by
// persisted defaults; a transport failure uses defaults for this sweep
// only, leaving the remote props untouched.
func (a *Archive) retentionForScratch(ctx context.Context) Retention {
	if a.retention != nil {
		return *a.retention
	}

	r, err := a.loadRetention(ctx)
	switch {
	case err == nil:
		a.retention = &r
		return r
	case IsNotFound(err) || IsValidation(err):
		a.logger.Warn("retention props unusable, creating defaults", "error", err)
		def := DefaultRetention()
		if serr := a.SetRetention(ctx, def.Days, def.Copies); serr != nil {
			a.logger.Warn("persisting default retention failed", "error", serr)
			a.retention = &def
		}
		return def
	default:
		a.logger.Warn("loading retention props failed, using defaults", "error", err)
		return DefaultRetention()
	}
}

// daysBetween returns the whole days from one wall-clock reading to
// another, ignoring zone offsets, so a DST change never shortens a day.
func daysBetween(from, to time.Time) int {
	wall := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	}
	return int(math.Floor(wall(to).Sub(wall(from)).Hours() / 24))
}

// ScratchResult reports what a retention sweep did.
type ScratchResult struct {
	Retention Retention

	// Versions is the number of versions listed.
	Versions int

	// Candidates are the count-surplus versions evaluated for age.
	Candidates []string

	// Deleted, Kept and Failed partition Candidates.
	Deleted []string
	Kept    []string
	Failed  []string
}

// Scratch frees stale versions. The oldest versions beyond the newest
// Copies are candidates; a candidate is deleted when Retention.Evicts
// holds for its logical age in whole days.
//
// Deletes are issued one at a time. A failed delete does not stop the
// sweep; all delete failures are returned joined. A listing failure aborts
// the sweep. Versions created while the sweep runs may or may not be
// considered.
func (a *Archive) Scratch(ctx context.Context) (*ScratchResult, error) {
	r := a.retentionForScratch(ctx)
	a.logger.Info("starting scratch", "days", r.Days, "copies", r.Copies)

	versions, err := a.versions(ctx)
	if err != nil {
		return nil, err
	}

	res := &ScratchResult{Retention: r, Versions: len(versions)}
	if r.Copies < 0 || len(versions) <= r.Copies {
		return res, nil
	}

	now := a.now()
	var errs []error
	for _, v := range versions[:len(versions)-r.Copies] {
		key := v.String()
		res.Candidates = append(res.Candidates, key)

		logical, err := v.LogicalTime(a.config.Location)
		if err != nil {
			a.logger.Warn("keeping version with unparsable logical date", "key", key, "error", err)
			res.Kept = append(res.Kept, key)
			continue
		}
		age := daysBetween(logical, now)
		if !r.Evicts(age) {
			res.Kept = append(res.Kept, key)
			continue
		}

		a.logger.Info("deleting stale version", "key", key, "age_days", age)
		if err := a.store.DeleteObject(ctx, a.bucket, key); err != nil {
			err = asTransport("delete", a.bucket, key, err)
			a.logger.Error("delete failed", "key", key, "error", err)
			a.observer.VersionEvicted(a.bucket, key, err)
			res.Failed = append(res.Failed, key)
			errs = append(errs, err)
			continue
		}
		a.observer.VersionEvicted(a.bucket, key, nil)
		res.Deleted = append(res.Deleted, key)
	}

	return res, errors.Join(errs...)
}
