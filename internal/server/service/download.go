package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"relay/internal/server/access"
	"relay/internal/server/storage"
)

// Download is an authorised object ready to stream. The caller closes
// Body.
type Download struct {
	Body        io.ReadSeekCloser
	DisplayName string
	Size        int64
	ModTime     time.Time
}

// Download authorises access to key and opens its bytes. Precedence is
// ErrNotFound, then ErrPasswordRequired or ErrDenied. No bytes are opened
// for a protected object until the password has been verified.
func (s *Relay) Download(ctx context.Context, key, password string) (*Download, error) {
	obj, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	var hash string
	if obj.Descriptor != nil {
		hash = obj.Descriptor.PasswordHash
	}
	if decision := access.Authorize(hash, password); !decision.Allowed() {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		slog.Warn("download denied", "key", key)
		return nil, ErrDenied
	}

	body, info, err := s.store.Open(key)
	if err != nil {
		// Reaped between the check and the open.
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}

	name := key
	if obj.Descriptor != nil && obj.Descriptor.OriginalFilename != "" {
		name = obj.Descriptor.OriginalFilename
	}
	return &Download{
		Body:        body,
		DisplayName: name,
		Size:        info.Size,
		ModTime:     info.ModTime,
	}, nil
}
