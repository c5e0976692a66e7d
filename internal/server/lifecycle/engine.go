// Package lifecycle decides which stored objects are live and reclaims
// the expired ones.
//
// Nothing here takes a lock on the storage root. Uploads write bytes
// before descriptors and sweeps delete bytes before descriptors; every
// step is idempotent and every reader tolerates finding only half a pair.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"relay/internal/server/metadata"
	"relay/internal/server/storage"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/singleflight"
)

// DefaultRetention applies to objects whose descriptor is missing or
// carries no expiration time.
const DefaultRetention = 24 * time.Hour

// Object pairs stored bytes with their descriptor, which may be nil.
type Object struct {
	Info       storage.ObjectInfo
	Descriptor *metadata.Descriptor
}

// ExpiresAt returns the descriptor's expiration time, or the file's
// modification time plus retention when there is none.
func (o Object) ExpiresAt(retention time.Duration) time.Time {
	if o.Descriptor != nil && !o.Descriptor.ExpirationTime.IsZero() {
		return o.Descriptor.ExpirationTime.Time
	}
	return o.Info.ModTime.Add(retention)
}

// UploadedAt returns the recorded upload time, falling back to the file's
// modification time.
func (o Object) UploadedAt() time.Time {
	if o.Descriptor != nil && !o.Descriptor.UploadTime.IsZero() {
		return o.Descriptor.UploadTime.Time
	}
	return o.Info.ModTime
}

// ComputeExpiration returns uploadTime plus hours. Callers validate hours.
func ComputeExpiration(uploadTime time.Time, hours int) time.Time {
	return uploadTime.Add(time.Duration(hours) * time.Hour)
}

// IsExpired reports whether o is past its expiration at now.
func IsExpired(o Object, now time.Time, retention time.Duration) bool {
	return now.After(o.ExpiresAt(retention))
}

// RemainingTime formats the time left before the descriptor's expiration.
// It reports false once expired or when no expiration is recorded.
func RemainingTime(o Object, now time.Time) (string, bool) {
	if o.Descriptor == nil || o.Descriptor.ExpirationTime.IsZero() {
		return "", false
	}
	left := o.Descriptor.ExpirationTime.Sub(now)
	if left <= 0 {
		return "", false
	}
	return formatRemaining(left), true
}

func formatRemaining(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%d天%d小时", days, hours)
	case hours > 0:
		return fmt.Sprintf("%d小时%d分", hours, minutes)
	default:
		return fmt.Sprintf("%d分钟", minutes)
	}
}

// SweepReport summarises one sweep. Err aggregates per-object failures;
// it is for logging only.
type SweepReport struct {
	Scanned   int
	Removed   int
	Failed    int
	Orphans   int
	StaleTemp int
	Err       error
}

// Engine applies the expiration policy to a storage root and its
// descriptors.
type Engine struct {
	store     storage.Store
	meta      metadata.Store
	retention time.Duration
	sweeps    singleflight.Group
}

// NewEngine creates an engine. A non-positive retention means
// DefaultRetention.
func NewEngine(store storage.Store, meta metadata.Store, retention time.Duration) *Engine {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Engine{store: store, meta: meta, retention: retention}
}

// Retention returns the fallback retention for objects without an
// expiration time.
func (e *Engine) Retention() time.Duration {
	return e.retention
}

// IsExpired applies the engine's retention to o.
func (e *Engine) IsExpired(o Object, now time.Time) bool {
	return IsExpired(o, now, e.retention)
}

// Load pairs info with its descriptor. Absent or corrupt descriptors come
// back as nil; any other backend failure is returned, since the object's
// expiry and protection are then unknown.
func (e *Engine) Load(ctx context.Context, info storage.ObjectInfo) (Object, error) {
	d, err := e.meta.Get(ctx, info.Key)
	if err != nil {
		return Object{Info: info}, fmt.Errorf("read descriptor: %w", err)
	}
	return Object{Info: info, Descriptor: d}, nil
}

// Objects loads every stored object with its descriptor. Objects whose
// descriptor cannot be read are left out and logged.
func (e *Engine) Objects(ctx context.Context) ([]Object, error) {
	infos, err := e.store.List()
	if err != nil {
		return nil, err
	}
	objects := make([]Object, 0, len(infos))
	for _, info := range infos {
		o, err := e.Load(ctx, info)
		if err != nil {
			slog.Warn("skipping object with unreadable descriptor", "key", info.Key, "error", err)
			continue
		}
		objects = append(objects, o)
	}
	return objects, nil
}

// Sweep removes every object expired at now together with its descriptor,
// then clears orphaned descriptors and stale temporary files. One object
// failing does not stop the others. Concurrent callers share a single
// pass, which runs detached from the caller's cancellation.
func (e *Engine) Sweep(ctx context.Context, now time.Time) SweepReport {
	v, _, _ := e.sweeps.Do("sweep", func() (any, error) {
		return e.sweep(context.WithoutCancel(ctx), now), nil
	})
	return v.(SweepReport)
}

func (e *Engine) sweep(ctx context.Context, now time.Time) SweepReport {
	var (
		report SweepReport
		errs   *multierror.Error
	)

	infos, err := e.store.List()
	if err != nil {
		report.Err = fmt.Errorf("failed to list objects: %w", err)
		return report
	}
	report.Scanned = len(infos)

	for _, info := range infos {
		o, err := e.Load(ctx, info)
		if err != nil {
			// Expiry is unknown; never delete on a guess.
			report.Failed++
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", info.Key, err))
			slog.Error("skipping object with unreadable descriptor", "key", info.Key, "error", err)
			continue
		}
		if !e.IsExpired(o, now) {
			continue
		}
		if err := e.remove(ctx, o.Info.Key); err != nil {
			report.Failed++
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", o.Info.Key, err))
			slog.Error("failed to remove expired object", "key", o.Info.Key, "error", err)
			continue
		}
		report.Removed++
		slog.Info("removed expired object",
			"key", o.Info.Key,
			"expired_at", o.ExpiresAt(e.retention),
			"has_descriptor", o.Descriptor != nil,
		)
	}

	orphans, err := e.removeOrphans(ctx)
	report.Orphans = orphans
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	stale, err := e.store.PurgeTemp(now.Add(-e.retention))
	report.StaleTemp = stale
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	report.Err = errs.ErrorOrNil()
	return report
}

// remove deletes bytes first, then the descriptor. Bytes already gone are
// fine: a previous attempt was interrupted.
func (e *Engine) remove(ctx context.Context, key string) error {
	if err := e.store.Delete(key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete object: %w", err)
	}
	if err := e.meta.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete descriptor: %w", err)
	}
	return nil
}

// removeOrphans drops descriptors whose bytes are gone. Bytes are always
// published before their descriptor, so a descriptor seen without bytes
// belongs to an interrupted delete.
func (e *Engine) removeOrphans(ctx context.Context) (int, error) {
	keys, err := e.meta.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list descriptors: %w", err)
	}

	var (
		removed int
		errs    *multierror.Error
	)
	for _, key := range keys {
		_, err := e.store.Stat(key)
		if !errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err := e.meta.Delete(ctx, key); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: delete orphan descriptor: %w", key, err))
			continue
		}
		removed++
		slog.Info("removed orphaned descriptor", "key", key)
	}
	return removed, errs.ErrorOrNil()
}
