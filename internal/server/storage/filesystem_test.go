package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// failingReader returns some bytes and then an error.
type failingReader struct {
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("connection reset")
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), TempSuffix) {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestFileSystemStore_Put(t *testing.T) {
	t.Run("saves file under a prefixed key", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		info, err := store.Put(context.Background(), "report.pdf", bytes.NewReader([]byte("test content")))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if info.Size != 12 {
			t.Errorf("expected 12 bytes written, got %d", info.Size)
		}
		if !strings.HasSuffix(info.Key, "_report.pdf") || len(info.Key) != len("12345678_report.pdf") {
			t.Errorf("unexpected key %q", info.Key)
		}

		content, err := os.ReadFile(filepath.Join(dir, info.Key))
		if err != nil {
			t.Fatalf("failed to read saved file: %v", err)
		}
		if string(content) != "test content" {
			t.Errorf("expected 'test content', got %q", content)
		}
		assertNoTempFiles(t, dir)
	})

	t.Run("same display name gives distinct keys", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())

		a, err := store.Put(context.Background(), "x.txt", strings.NewReader("a"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := store.Put(context.Background(), "x.txt", strings.NewReader("b"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Key == b.Key {
			t.Fatalf("expected distinct keys, both %q", a.Key)
		}
	})

	t.Run("read failure leaves nothing behind", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		_, err := store.Put(context.Background(), "broken.bin", &failingReader{})
		if !errors.Is(err, ErrWriteFailed) {
			t.Fatalf("expected ErrWriteFailed, got %v", err)
		}

		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("expected empty directory, found %d entries", len(entries))
		}
	})

	t.Run("cancelled context is not published", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := store.Put(ctx, "late.txt", strings.NewReader("data"))
		if !errors.Is(err, ErrWriteFailed) || !errors.Is(err, context.Canceled) {
			t.Fatalf("expected ErrWriteFailed wrapping context.Canceled, got %v", err)
		}

		objects, err := store.List()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(objects) != 0 {
			t.Errorf("expected no published objects, got %d", len(objects))
		}
		assertNoTempFiles(t, dir)
	})

	t.Run("missing root fails", func(t *testing.T) {
		store := NewFileSystemStore(filepath.Join(t.TempDir(), "missing"))

		_, err := store.Put(context.Background(), "a.txt", strings.NewReader("a"))
		if !errors.Is(err, ErrWriteFailed) {
			t.Fatalf("expected ErrWriteFailed, got %v", err)
		}
	})
}

func TestFileSystemStore_Open(t *testing.T) {
	t.Run("returns content and info", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())
		put, err := store.Put(context.Background(), "a.txt", strings.NewReader("hello"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rc, info, err := store.Open(put.Key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer rc.Close()

		data, _ := io.ReadAll(rc)
		if string(data) != "hello" {
			t.Errorf("expected 'hello', got %q", data)
		}
		if info.Size != 5 || info.Key != put.Key {
			t.Errorf("unexpected info %+v", info)
		}
	})

	t.Run("missing and reserved keys are not found", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)
		os.WriteFile(filepath.Join(dir, ".hidden.json"), []byte("{}"), 0644)
		os.WriteFile(filepath.Join(dir, "upload.bin"+TempSuffix), []byte("x"), 0644)

		for _, key := range []string{"nonexistent", ".hidden.json", "upload.bin" + TempSuffix, "../etc/passwd", ""} {
			if _, _, err := store.Open(key); !errors.Is(err, ErrNotFound) {
				t.Errorf("Open(%q): expected ErrNotFound, got %v", key, err)
			}
		}
	})
}

func TestFileSystemStore_Delete(t *testing.T) {
	t.Run("deletes existing file", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		filePath := filepath.Join(dir, "del12345_a.txt")
		os.WriteFile(filePath, []byte("data"), 0644)

		if err := store.Delete("del12345_a.txt"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := os.Stat(filePath); !os.IsNotExist(err) {
			t.Error("expected file to be deleted")
		}
	})

	t.Run("not found for missing file", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())

		if err := store.Delete("nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestFileSystemStore_List(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSystemStore(dir)

	os.WriteFile(filepath.Join(dir, "aaaaaaaa_one.txt"), []byte("1"), 0644)
	os.WriteFile(filepath.Join(dir, "bbbbbbbb_two.txt"), []byte("22"), 0644)
	os.WriteFile(filepath.Join(dir, ".aaaaaaaa_one.txt.json"), []byte("{}"), 0644)
	os.WriteFile(filepath.Join(dir, "cccccccc_three.txt"+TempSuffix), []byte("333"), 0644)
	os.Mkdir(filepath.Join(dir, "subdir"), 0755)

	objects, err := store.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %d: %+v", len(objects), objects)
	}
	for _, o := range objects {
		if IsReserved(o.Key) {
			t.Errorf("reserved name listed: %s", o.Key)
		}
	}
}

func TestFileSystemStore_PurgeTemp(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSystemStore(dir)
	now := time.Now()

	stale := filepath.Join(dir, "aaaaaaaa_old.bin"+TempSuffix)
	fresh := filepath.Join(dir, "bbbbbbbb_new.bin"+TempSuffix)
	object := filepath.Join(dir, "cccccccc_keep.bin")
	for _, p := range []string{stale, fresh, object} {
		os.WriteFile(p, []byte("x"), 0644)
	}
	old := now.Add(-48 * time.Hour)
	os.Chtimes(stale, old, old)
	os.Chtimes(object, old, old)

	removed, err := store.PurgeTemp(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("expected stale temp file to be removed")
	}
	for _, p := range []string{fresh, object} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to survive: %v", filepath.Base(p), err)
		}
	}
}

func TestFileSystemStore_EnsureDir(t *testing.T) {
	t.Run("creates directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "storage", "path")
		store := NewFileSystemStore(dir)

		if err := store.EnsureDir(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected a directory")
		}
	})

	t.Run("succeeds if directory exists", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())

		if err := store.EnsureDir(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestFileSystemStore_Ping(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSystemStore(dir)

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("ping left %d files behind", len(entries))
	}

	missing := NewFileSystemStore(filepath.Join(dir, "missing"))
	if err := missing.Ping(context.Background()); err == nil {
		t.Error("expected error for missing directory")
	}
}
