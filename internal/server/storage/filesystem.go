package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no object exists under a key.
	ErrNotFound = errors.New("object not found")

	// ErrWriteFailed is returned when an object could not be durably
	// written and published. No partial object is left behind.
	ErrWriteFailed = errors.New("object write failed")
)

// ObjectInfo describes stored bytes. Size and ModTime come from the
// filesystem and are not tracked anywhere else.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store defines the interface for object storage backends.
type Store interface {
	Put(ctx context.Context, displayName string, data io.Reader) (ObjectInfo, error)
	Open(key string) (io.ReadSeekCloser, ObjectInfo, error)
	Stat(key string) (ObjectInfo, error)
	Delete(key string) error
	List() ([]ObjectInfo, error)
	PurgeTemp(olderThan time.Time) (int, error)
	EnsureDir() error
	Root() string
}

// FileSystemStore stores objects as plain files in a single directory.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// Root returns the storage directory.
func (s *FileSystemStore) Root() string {
	return s.basePath
}

// Ping checks that the storage directory exists and is writable.
func (s *FileSystemStore) Ping(ctx context.Context) error {
	f, err := os.CreateTemp(s.basePath, ".ping-*"+TempSuffix)
	if err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	f.Close()
	return os.Remove(f.Name())
}

// EnsureDir creates the storage directory if it doesn't exist.
func (s *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", s.basePath, err)
	}
	return nil
}

// Put writes data under a new key derived from displayName. Bytes go to a
// temporary file first and are renamed into place only once fully synced,
// so readers see either nothing or the complete object. A cancelled ctx
// aborts the copy and the temporary file is removed.
func (s *FileSystemStore) Put(ctx context.Context, displayName string, data io.Reader) (ObjectInfo, error) {
	key := NewStorageKey(displayName)
	finalPath := s.path(key)
	tmpPath := finalPath + TempSuffix

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	_, err = io.Copy(f, &contextReader{ctx: ctx, r: data})
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = os.Rename(tmpPath, finalPath)
	}
	if err != nil {
		os.Remove(tmpPath)
		return ObjectInfo{}, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	info, err := s.Stat(key)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return info, nil
}

// Open returns a reader over the object's bytes.
func (s *FileSystemStore) Open(key string) (io.ReadSeekCloser, ObjectInfo, error) {
	if !validKey(key) {
		return nil, ObjectInfo{}, ErrNotFound
	}
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, ObjectInfo{}, notFoundOr(err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, notFoundOr(err)
	}
	if !st.Mode().IsRegular() {
		f.Close()
		return nil, ObjectInfo{}, ErrNotFound
	}
	return f, toInfo(key, st), nil
}

// Stat returns size and modification time of the object.
func (s *FileSystemStore) Stat(key string) (ObjectInfo, error) {
	if !validKey(key) {
		return ObjectInfo{}, ErrNotFound
	}
	st, err := os.Stat(s.path(key))
	if err != nil {
		return ObjectInfo{}, notFoundOr(err)
	}
	if !st.Mode().IsRegular() {
		return ObjectInfo{}, ErrNotFound
	}
	return toInfo(key, st), nil
}

// Delete removes the object. Removing an absent key yields ErrNotFound,
// which callers sweeping storage treat as success.
func (s *FileSystemStore) Delete(key string) error {
	if !validKey(key) {
		return ErrNotFound
	}
	if err := os.Remove(s.path(key)); err != nil {
		return notFoundOr(err)
	}
	return nil
}

// List returns every published object, skipping reserved names. Entries
// that vanish while listing are skipped.
func (s *FileSystemStore) List() ([]ObjectInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	objects := make([]ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || IsReserved(entry.Name()) {
			continue
		}
		st, err := entry.Info()
		if err != nil {
			continue
		}
		objects = append(objects, toInfo(entry.Name(), st))
	}
	return objects, nil
}

// PurgeTemp removes in-progress files last modified before olderThan.
// These are leftovers of writes whose process died before cleanup.
func (s *FileSystemStore) PurgeTemp(olderThan time.Time) (int, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var removed int
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), TempSuffix) {
			continue
		}
		st, err := entry.Info()
		if err != nil || !st.ModTime().Before(olderThan) {
			continue
		}
		if err := os.Remove(filepath.Join(s.basePath, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (s *FileSystemStore) path(key string) string {
	return filepath.Join(s.basePath, key)
}

func toInfo(key string, st fs.FileInfo) ObjectInfo {
	return ObjectInfo{Key: key, Size: st.Size(), ModTime: st.ModTime()}
}

func notFoundOr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// contextReader stops reading once ctx is done, so an abandoned upload
// never reaches the rename.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
