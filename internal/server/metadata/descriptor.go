// Package metadata persists one descriptor record per stored object,
// keyed by the object's storage key.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt marks a descriptor that exists but cannot be decoded.
// Backends never return it from Get; the record is treated as absent.
var ErrCorrupt = errors.New("corrupt descriptor")

// DefaultDescription is stored when the uploader gives none.
const DefaultDescription = "上传者没有提供描述信息"

// Uploader is the client snapshot captured at upload time.
type Uploader struct {
	IP     string `json:"ip"`
	Device string `json:"device"`
}

// Descriptor is the per-object metadata record.
type Descriptor struct {
	Description      string    `json:"description"`
	Uploader         Uploader  `json:"uploader"`
	UploadTime       Timestamp `json:"upload_time"`
	ExpirationTime   Timestamp `json:"expiration_time"`
	OriginalFilename string    `json:"original_filename"`
	PasswordHash     string    `json:"password_hash,omitempty"`
}

// HasPassword reports whether downloads must pass the access gate.
func (d *Descriptor) HasPassword() bool {
	return d != nil && d.PasswordHash != ""
}

// Store defines the interface for descriptor backends.
//
// Get returns (nil, nil) when the descriptor is absent or corrupt; an error
// means the backend itself failed. Delete of an absent key is not an error.
type Store interface {
	Put(ctx context.Context, key string, d *Descriptor) error
	Get(ctx context.Context, key string) (*Descriptor, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Encode renders d as indented JSON without HTML escaping.
func Encode(d *Descriptor) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode descriptor: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a stored descriptor. Unknown fields are ignored and
// unparseable timestamps become zero.
func Decode(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &d, nil
}

// Timestamp is a time that tolerates the naive ISO-8601 form written by
// older relays (no zone, read as local time).
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON writes RFC 3339, or null for the zero time.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.Time.Format(time.RFC3339Nano))
}

// UnmarshalJSON never fails: anything it cannot read is left zero.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	ts.Time = time.Time{}

	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		ts.Time = t
		return nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			ts.Time = t
			return nil
		}
	}
	return nil
}
