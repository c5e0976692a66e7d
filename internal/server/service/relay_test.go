package service

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

	"relay/internal/server/lifecycle"
	"relay/internal/server/metadata"
	"relay/internal/server/storage"
)

type testRelay struct {
	*Relay
	dir   string
	clock time.Time
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	dir := t.TempDir()
	store := storage.NewFileSystemStore(dir)
	meta := metadata.NewFileStore(dir)
	engine := lifecycle.NewEngine(store, meta, lifecycle.DefaultRetention)

	tr := &testRelay{
		dir:   dir,
		clock: time.Date(2025, 3, 14, 9, 0, 0, 0, time.Local),
	}
	tr.Relay = NewRelay(store, meta, engine, Options{
		MaxFileSize:        1024,
		DefaultExpiryHours: 24,
		BaseURL:            "http://relay.test/",
	})
	tr.Relay.now = func() time.Time { return tr.clock }
	return tr
}

func (tr *testRelay) advance(d time.Duration) {
	tr.clock = tr.clock.Add(d)
}

func (tr *testRelay) upload(t *testing.T, req UploadRequest) *UploadResult {
	t.Helper()
	if req.Body == nil {
		req.Body = strings.NewReader("hello relay")
	}
	res, err := tr.Upload(context.Background(), req)
	if err != nil {
		t.Fatalf("upload %q: %v", req.DisplayName, err)
	}
	return res
}

func (tr *testRelay) download(t *testing.T, key, password string) ([]byte, *Download) {
	t.Helper()
	dl, err := tr.Download(context.Background(), key, password)
	if err != nil {
		t.Fatalf("download %q: %v", key, err)
	}
	defer dl.Body.Close()
	data, err := io.ReadAll(dl.Body)
	if err != nil {
		t.Fatalf("read %q: %v", key, err)
	}
	return data, dl
}

func TestRelay_ProtectedReportScenario(t *testing.T) {
	ctx := context.Background()
	tr := newTestRelay(t)
	content := []byte("%PDF-1.7 quarterly numbers")

	res := tr.upload(t, UploadRequest{
		DisplayName: "report.pdf",
		Body:        bytes.NewReader(content),
		Size:        int64(len(content)),
		Password:    "abc123",
		Expiration:  "1",
	})
	tr.advance(time.Second)

	records, err := tr.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one listed file, got %d", len(records))
	}
	if !records[0].HasPassword {
		t.Error("expected has_password=true")
	}
	if records[0].RemainingTime == nil || *records[0].RemainingTime != "59分钟" {
		t.Errorf("expected remaining 59分钟, got %v", records[0].RemainingTime)
	}

	if _, err := tr.Download(ctx, res.StorageKey, ""); !errors.Is(err, ErrPasswordRequired) {
		t.Errorf("expected ErrPasswordRequired, got %v", err)
	}
	if _, err := tr.Download(ctx, res.StorageKey, "wrong"); !errors.Is(err, ErrDenied) {
		t.Errorf("expected ErrDenied, got %v", err)
	}
	data, dl := tr.download(t, res.StorageKey, "abc123")
	if !bytes.Equal(data, content) {
		t.Error("downloaded bytes differ from upload")
	}
	if dl.DisplayName != "report.pdf" {
		t.Errorf("expected display name report.pdf, got %q", dl.DisplayName)
	}

	tr.advance(2 * time.Hour)
	tr.Sweep(ctx)

	records, err = tr.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty listing after expiry, got %d", len(records))
	}
	if _, err := tr.Download(ctx, res.StorageKey, "abc123"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestRelay_DuplicateDisplayNames(t *testing.T) {
	ctx := context.Background()
	tr := newTestRelay(t)

	first := tr.upload(t, UploadRequest{DisplayName: "x.txt", Body: strings.NewReader("one"), Expiration: "1"})
	second := tr.upload(t, UploadRequest{DisplayName: "x.txt", Body: strings.NewReader("two"), Expiration: "3"})

	if first.StorageKey == second.StorageKey {
		t.Fatalf("expected distinct storage keys, both %q", first.StorageKey)
	}
	for _, tc := range []struct {
		key  string
		want string
	}{{first.StorageKey, "one"}, {second.StorageKey, "two"}} {
		data, dl := tr.download(t, tc.key, "")
		if string(data) != tc.want || dl.DisplayName != "x.txt" {
			t.Errorf("key %s: got %q as %q", tc.key, data, dl.DisplayName)
		}
	}

	tr.advance(2 * time.Hour)
	tr.Sweep(ctx)

	if _, err := tr.Download(ctx, first.StorageKey, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected first upload to expire, got %v", err)
	}
	if data, _ := tr.download(t, second.StorageKey, ""); string(data) != "two" {
		t.Errorf("expected second upload to survive, got %q", data)
	}
}

func TestRelay_ListOrdering(t *testing.T) {
	tr := newTestRelay(t)
	for _, name := range []string{"t1.txt", "t2.txt", "t3.txt"} {
		tr.upload(t, UploadRequest{DisplayName: name})
		tr.advance(time.Minute)
	}

	records, err := tr.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var got []string
	for _, r := range records {
		got = append(got, r.Name)
	}
	if strings.Join(got, ",") != "t3.txt,t2.txt,t1.txt" {
		t.Errorf("unexpected order %v", got)
	}
}

func TestRelay_Download(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip is byte identical", func(t *testing.T) {
		tr := newTestRelay(t)
		content := bytes.Repeat([]byte{0x00, 0xff, 0x10}, 200)
		res := tr.upload(t, UploadRequest{DisplayName: "blob.bin", Body: bytes.NewReader(content)})

		data, dl := tr.download(t, res.StorageKey, "")
		if !bytes.Equal(data, content) {
			t.Error("downloaded bytes differ from upload")
		}
		if dl.Size != int64(len(content)) {
			t.Errorf("expected size %d, got %d", len(content), dl.Size)
		}
	})

	t.Run("password ignored for unprotected object", func(t *testing.T) {
		tr := newTestRelay(t)
		res := tr.upload(t, UploadRequest{DisplayName: "open.txt"})
		if _, err := tr.Download(ctx, res.StorageKey, "anything"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unknown and reserved keys", func(t *testing.T) {
		tr := newTestRelay(t)
		res := tr.upload(t, UploadRequest{DisplayName: "a.txt"})
		for _, key := range []string{"deadbeef_nope.txt", "." + res.StorageKey + ".json", res.StorageKey + ".part", "../etc/passwd", ""} {
			if _, err := tr.Download(ctx, key, ""); !errors.Is(err, ErrNotFound) {
				t.Errorf("key %q: expected ErrNotFound, got %v", key, err)
			}
		}
	})

	t.Run("expired but not yet swept", func(t *testing.T) {
		tr := newTestRelay(t)
		res := tr.upload(t, UploadRequest{DisplayName: "a.txt", Password: "pw", Expiration: "1"})
		tr.advance(time.Hour + time.Second)

		if _, err := tr.Download(ctx, res.StorageKey, ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound before password check, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(tr.dir, res.StorageKey)); err != nil {
			t.Error("download must not delete the object itself")
		}
	})

	t.Run("object without descriptor uses file age", func(t *testing.T) {
		tr := newTestRelay(t)
		key := "0a1b2c3d_legacy.txt"
		if err := os.WriteFile(filepath.Join(tr.dir, key), []byte("legacy"), 0644); err != nil {
			t.Fatal(err)
		}
		tr.clock = time.Now()

		data, dl := tr.download(t, key, "")
		if string(data) != "legacy" || dl.DisplayName != key {
			t.Errorf("unexpected download %q as %q", data, dl.DisplayName)
		}

		tr.advance(25 * time.Hour)
		if _, err := tr.Download(ctx, key, ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after retention, got %v", err)
		}
	})

	t.Run("bytes reaped but descriptor left behind", func(t *testing.T) {
		tr := newTestRelay(t)
		res := tr.upload(t, UploadRequest{DisplayName: "a.txt", Password: "pw"})
		if err := os.Remove(filepath.Join(tr.dir, res.StorageKey)); err != nil {
			t.Fatal(err)
		}
		if _, err := tr.Download(ctx, res.StorageKey, "pw"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRelay_InfoAndStats(t *testing.T) {
	ctx := context.Background()
	tr := newTestRelay(t)

	protected := tr.upload(t, UploadRequest{
		DisplayName: "secret.zip",
		Body:        strings.NewReader("12345"),
		Password:    "pw",
		Description: "  build output  ",
		Uploader:    metadata.Uploader{IP: "203.0.113.9", Device: "Macintosh"},
	})
	tr.upload(t, UploadRequest{DisplayName: "open.txt", Body: strings.NewReader("123"), Expiration: "1"})

	info, err := tr.Info(ctx, protected.StorageKey)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Name != "secret.zip" || !info.HasPassword || info.Description != "build output" {
		t.Errorf("unexpected info %+v", info)
	}
	if info.UploaderIP != "203.0.113.9" || info.Icon != "file-zipper" {
		t.Errorf("unexpected derived info %+v", info)
	}
	if _, err := tr.Info(ctx, "deadbeef_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	stats, err := tr.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.LiveObjects != 2 || stats.ProtectedObjects != 1 || stats.BytesUsed != 8 {
		t.Errorf("unexpected stats %+v", stats)
	}

	tr.advance(2 * time.Hour)
	stats, err = tr.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.LiveObjects != 1 || stats.BytesUsed != 5 || stats.BytesUsedHuman != "5.0 B" {
		t.Errorf("expired object should not be counted, got %+v", stats)
	}
}
