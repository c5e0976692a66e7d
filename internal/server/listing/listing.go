// Package listing builds the client-facing view of live objects.
package listing

import (
	"context"
	"sort"
	"time"

	"relay/internal/server/lifecycle"
)

// PlaceholderDescription is shown for objects without a descriptor.
const PlaceholderDescription = "临时文件"

const (
	uploadTimeLayout = "2006-01-02 15:04"
	unknown          = "Unknown"
)

// DisplayRecord is one listed object. It never carries the password hash.
type DisplayRecord struct {
	StorageKey     string    `json:"storage_key"`
	Name           string    `json:"name"`
	Size           int64     `json:"size"`
	FormattedSize  string    `json:"formatted_size"`
	Icon           string    `json:"icon"`
	UploadedAt     time.Time `json:"uploaded_at"`
	UploadTime     string    `json:"upload_time"`
	Description    string    `json:"description"`
	UploaderIP     string    `json:"uploader_ip"`
	UploaderDevice string    `json:"uploader_device"`
	HasPassword    bool      `json:"has_password"`
	RemainingTime  *string   `json:"remaining_time"`
}

// Service lists live objects.
type Service struct {
	engine *lifecycle.Engine
}

// NewService creates a listing service over engine.
func NewService(engine *lifecycle.Engine) *Service {
	return &Service{engine: engine}
}

// ListLive sweeps, then returns every object still live at now, most
// recently uploaded first.
func (s *Service) ListLive(ctx context.Context, now time.Time) ([]DisplayRecord, error) {
	s.engine.Sweep(ctx, now)

	objects, err := s.engine.Objects(ctx)
	if err != nil {
		return nil, err
	}

	live := make([]lifecycle.Object, 0, len(objects))
	for _, o := range objects {
		// A failed sweep can leave expired objects behind; never show them.
		if !s.engine.IsExpired(o, now) {
			live = append(live, o)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].UploadedAt().After(live[j].UploadedAt())
	})

	records := make([]DisplayRecord, 0, len(live))
	for _, o := range live {
		records = append(records, NewRecord(o, now))
	}
	return records, nil
}

// NewRecord derives the display fields of o at now.
func NewRecord(o lifecycle.Object, now time.Time) DisplayRecord {
	r := DisplayRecord{
		StorageKey:     o.Info.Key,
		Name:           o.Info.Key,
		Size:           o.Info.Size,
		FormattedSize:  HumanizeBytes(o.Info.Size),
		UploadedAt:     o.UploadedAt(),
		Description:    PlaceholderDescription,
		UploaderIP:     unknown,
		UploaderDevice: unknown,
	}
	r.UploadTime = r.UploadedAt.Format(uploadTimeLayout)

	if d := o.Descriptor; d != nil {
		if d.OriginalFilename != "" {
			r.Name = d.OriginalFilename
		}
		if d.Description != "" {
			r.Description = d.Description
		}
		if d.Uploader.IP != "" {
			r.UploaderIP = d.Uploader.IP
		}
		if d.Uploader.Device != "" {
			r.UploaderDevice = d.Uploader.Device
		}
		r.HasPassword = d.HasPassword()
	}
	r.Icon = IconFor(r.Name)

	if remaining, ok := lifecycle.RemainingTime(o, now); ok {
		r.RemainingTime = &remaining
	}
	return r
}
