package listing

import (
	"fmt"
	"path/filepath"
	"strings"
)

// HumanizeBytes formats a byte count with binary units and one decimal.
func HumanizeBytes(b int64) string {
	size := float64(b)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f TB", size)
}

// GenericIcon is used for extensions outside the known set.
const GenericIcon = "file"

var iconsByExtension = func() map[string]string {
	groups := map[string][]string{
		"file-zipper":     {".zip", ".rar", ".7z"},
		"box":             {".tar", ".xz", ".gz"},
		"file-pdf":        {".pdf"},
		"file-word":       {".doc", ".docx"},
		"file-excel":      {".xls", ".xlsx"},
		"file-powerpoint": {".ppt", ".pptx"},
		"file-lines":      {".txt"},
		"book":            {".md"},
		"file-image":      {".jpg", ".jpeg", ".png", ".gif", ".bmp"},
		"file-audio":      {".mp3", ".wav", ".m4a", ".aac", ".ogg", ".flac"},
		"file-video":      {".mp4", ".avi", ".mkv", ".mov", ".flv", ".wmv", ".webm"},
		"cube":            {".exe", ".bin", ".jar"},
		"file-code":       {".py", ".c", ".cpp", ".java", ".html", ".css", ".js"},
		"terminal":        {".sh", ".bat"},
		"database":        {".accdb", ".db", ".sql", ".sqlite"},
	}
	m := make(map[string]string)
	for icon, exts := range groups {
		for _, ext := range exts {
			m[ext] = icon
		}
	}
	return m
}()

// IconFor returns the icon tag for name's extension.
func IconFor(name string) string {
	if icon, ok := iconsByExtension[strings.ToLower(filepath.Ext(name))]; ok {
		return icon
	}
	return GenericIcon
}
