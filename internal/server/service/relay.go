// Package service is the boundary between transport code and the relay
// core. Handlers and the CLI call it; it never sees HTTP types.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay/internal/server/lifecycle"
	"relay/internal/server/listing"
	"relay/internal/server/metadata"
	"relay/internal/server/storage"
)

// Options tunes a Relay.
type Options struct {
	MaxFileSize        int64
	DefaultExpiryHours int
	BaseURL            string
}

// Relay implements upload, download and listing over one storage root.
type Relay struct {
	store   storage.Store
	meta    metadata.Store
	engine  *lifecycle.Engine
	listing *listing.Service
	opts    Options
	now     func() time.Time
}

// NewRelay wires the core components into a Relay.
func NewRelay(store storage.Store, meta metadata.Store, engine *lifecycle.Engine, opts Options) *Relay {
	if opts.DefaultExpiryHours <= 0 {
		opts.DefaultExpiryHours = 24
	}
	return &Relay{
		store:   store,
		meta:    meta,
		engine:  engine,
		listing: listing.NewService(engine),
		opts:    opts,
		now:     time.Now,
	}
}

// Stats summarises live storage.
type Stats struct {
	LiveObjects      int    `json:"live_objects"`
	ProtectedObjects int    `json:"protected_objects"`
	BytesUsed        int64  `json:"storage_used_bytes"`
	BytesUsedHuman   string `json:"storage_used_human"`
}

// List returns the live objects, newest first. Expired objects are swept
// before the listing is built.
func (s *Relay) List(ctx context.Context) ([]listing.DisplayRecord, error) {
	records, err := s.listing.ListLive(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return records, nil
}

// Info describes one live object without serving its bytes.
func (s *Relay) Info(ctx context.Context, key string) (*listing.DisplayRecord, error) {
	obj, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	record := listing.NewRecord(obj, s.now())
	return &record, nil
}

// Stats counts live objects and the bytes they occupy.
func (s *Relay) Stats(ctx context.Context) (*Stats, error) {
	objects, err := s.engine.Objects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}
	now := s.now()
	var stats Stats
	for _, o := range objects {
		if s.engine.IsExpired(o, now) {
			continue
		}
		stats.LiveObjects++
		stats.BytesUsed += o.Info.Size
		if o.Descriptor != nil && o.Descriptor.HasPassword() {
			stats.ProtectedObjects++
		}
	}
	stats.BytesUsedHuman = listing.HumanizeBytes(stats.BytesUsed)
	return &stats, nil
}

// Sweep runs one expiration pass at the relay's current time.
func (s *Relay) Sweep(ctx context.Context) lifecycle.SweepReport {
	return s.engine.Sweep(ctx, s.now())
}

// lookup resolves key to a live object. Existence and liveness are checked
// before anything else, so a reaped or expired object is ErrNotFound no
// matter what it was protected by.
func (s *Relay) lookup(ctx context.Context, key string) (lifecycle.Object, error) {
	info, err := s.store.Stat(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return lifecycle.Object{}, ErrNotFound
		}
		return lifecycle.Object{}, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	d, err := s.meta.Get(ctx, key)
	if err != nil {
		// Fail closed: without the descriptor the password is unknown.
		return lifecycle.Object{}, fmt.Errorf("failed to read descriptor for %s: %w", key, err)
	}
	obj := lifecycle.Object{Info: info, Descriptor: d}
	if s.engine.IsExpired(obj, s.now()) {
		return lifecycle.Object{}, ErrNotFound
	}
	return obj, nil
}
