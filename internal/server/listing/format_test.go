package listing

import "testing"

func TestHumanizeBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0.0 B"},
		{1023, "1023.0 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
		{2 * 1024 * 1024 * 1024 * 1024, "2.0 TB"},
		{2048 * 1024 * 1024 * 1024 * 1024, "2048.0 TB"},
	}
	for _, tt := range tests {
		if got := HumanizeBytes(tt.in); got != tt.want {
			t.Errorf("HumanizeBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIconFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"report.pdf", "file-pdf"},
		{"REPORT.PDF", "file-pdf"},
		{"photo.bmp", "file-image"},
		{"archive.tar.gz", "box"},
		{"bundle.zip", "file-zipper"},
		{"main.py", "file-code"},
		{"main.go", GenericIcon},
		{"run.sh", "terminal"},
		{"notes.md", "book"},
		{"data.unknownext", GenericIcon},
		{"Makefile", GenericIcon},
	}
	for _, tt := range tests {
		if got := IconFor(tt.name); got != tt.want {
			t.Errorf("IconFor(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
