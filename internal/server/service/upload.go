package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"relay/internal/server/access"
	"relay/internal/server/lifecycle"
	"relay/internal/server/metadata"
)

// maxExpiryHours keeps upload_time + hours representable.
const maxExpiryHours = math.MaxInt64 / int64(time.Hour)

// UploadRequest is one submitted file. Expiration is the raw hour count
// as supplied; empty means the configured default.
type UploadRequest struct {
	DisplayName string
	Body        io.Reader
	Size        int64 // -1 when unknown
	Description string
	Password    string
	Expiration  string
	Uploader    metadata.Uploader
}

// UploadResult is returned after a successful upload.
type UploadResult struct {
	StorageKey  string    `json:"storage_key"`
	DisplayName string    `json:"display_name"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	Size        int64     `json:"size"`
}

// Upload validates req, stores its bytes and then its descriptor. The
// object is live only once both are written; a descriptor failure removes
// the bytes again.
func (s *Relay) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, &ValidationError{Field: "file", Cause: errors.New("filename is empty")}
	}
	hours, err := ParseExpirationHours(req.Expiration, s.opts.DefaultExpiryHours)
	if err != nil {
		return nil, err
	}
	if s.opts.MaxFileSize > 0 && req.Size > s.opts.MaxFileSize {
		return nil, ErrFileTooLarge
	}

	var passwordHash string
	if req.Password != "" {
		passwordHash, err = access.HashPassword(req.Password)
		if err != nil {
			if errors.Is(err, access.ErrPasswordTooLong) {
				return nil, &ValidationError{Field: "password", Cause: err}
			}
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	body := req.Body
	if s.opts.MaxFileSize > 0 {
		body = &limitReader{r: body, remaining: s.opts.MaxFileSize}
	}
	info, err := s.store.Put(ctx, displayName, body)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	uploadTime := s.now()
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = metadata.DefaultDescription
	}
	d := &metadata.Descriptor{
		Description:      description,
		Uploader:         req.Uploader,
		UploadTime:       metadata.NewTimestamp(uploadTime),
		ExpirationTime:   metadata.NewTimestamp(lifecycle.ComputeExpiration(uploadTime, hours)),
		OriginalFilename: displayName,
		PasswordHash:     passwordHash,
	}
	if err := s.meta.Put(ctx, info.Key, d); err != nil {
		if derr := s.store.Delete(info.Key); derr != nil {
			slog.Error("failed to roll back upload", "key", info.Key, "error", derr)
		}
		return nil, fmt.Errorf("failed to record descriptor: %w", err)
	}

	slog.Info("upload stored",
		"key", info.Key,
		"size", info.Size,
		"expires_at", d.ExpirationTime.Time,
		"protected", passwordHash != "",
		"ip", req.Uploader.IP,
	)

	return &UploadResult{
		StorageKey:  info.Key,
		DisplayName: displayName,
		DownloadURL: fmt.Sprintf("%s/d/%s", strings.TrimRight(s.opts.BaseURL, "/"), info.Key),
		ExpiresAt:   d.ExpirationTime.Time,
		Size:        info.Size,
	}, nil
}

// ParseExpirationHours parses a positive hour count. Empty input yields
// fallback.
func ParseExpirationHours(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &ValidationError{Field: "expiration", Cause: fmt.Errorf("%q is not an integer", raw)}
	}
	if n <= 0 {
		return 0, &ValidationError{Field: "expiration", Cause: fmt.Errorf("%d is not positive", n)}
	}
	if n > maxExpiryHours {
		return 0, &ValidationError{Field: "expiration", Cause: fmt.Errorf("%d hours is out of range", n)}
	}
	return int(n), nil
}

// limitReader fails with ErrFileTooLarge once more than remaining bytes
// have been read.
type limitReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrFileTooLarge
	}
	return n, err
}
