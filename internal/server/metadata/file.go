package metadata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"relay/internal/server/storage"
)

const (
	sidecarPrefix = "."
	sidecarSuffix = ".json"
)

// FileStore keeps each descriptor in a hidden sidecar file next to the
// object: ".<key>.json".
type FileStore struct {
	dir string
}

// NewFileStore creates a sidecar store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Put writes the descriptor through a temporary file and a rename, so a
// half-written sidecar is never visible.
func (s *FileStore) Put(ctx context.Context, key string, d *Descriptor) error {
	if !validKey(key) {
		return fmt.Errorf("invalid storage key %q", key)
	}
	data, err := Encode(d)
	if err != nil {
		return err
	}

	finalPath := s.path(key)
	tmpPath := finalPath + storage.TempSuffix

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create descriptor: %w", err)
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmpPath, finalPath)
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write descriptor: %w", err)
	}
	return nil
}

// Get reads the sidecar. Missing or malformed sidecars yield (nil, nil).
func (s *FileStore) Get(ctx context.Context, key string) (*Descriptor, error) {
	if !validKey(key) {
		return nil, nil
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}
	d, err := Decode(data)
	if err != nil {
		slog.Warn("ignoring descriptor", "key", key, "error", err)
		return nil, nil
	}
	return d, nil
}

// Delete removes the sidecar if present.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return nil
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete descriptor: %w", err)
	}
	return nil
}

// Keys lists the storage keys that currently have a sidecar.
func (s *FileStore) Keys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor directory: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, sidecarPrefix) || !strings.HasSuffix(name, sidecarSuffix) {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, sidecarPrefix), sidecarSuffix)
		if validKey(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Ping checks that the directory is still there.
func (s *FileStore) Ping(ctx context.Context) error {
	st, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, sidecarPrefix+key+sidecarSuffix)
}

func validKey(key string) bool {
	return key != "" && !storage.IsReserved(key) && !strings.ContainsAny(key, `/\`) && !strings.Contains(key, "..")
}
