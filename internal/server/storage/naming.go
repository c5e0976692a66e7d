package storage

import (
	"encoding/hex"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

const (
	// TempSuffix marks in-progress writes. Names carrying it are never
	// listed or served.
	TempSuffix = ".part"

	keySeparator = "_"

	// Leaves room for the descriptor sidecar ("." + key + ".json" + TempSuffix)
	// within the usual 255 byte filename limit.
	maxNameBytes = 200

	fallbackName = "unnamed"
)

// rejectRunes are not safe on network shares or in Content-Disposition.
const rejectRunes = `"*:<>?|\/`

// IsReserved reports whether name is internal bookkeeping: hidden
// descriptors and in-progress writes.
func IsReserved(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, TempSuffix)
}

// NewStorageKey returns a fresh storage key for displayName: eight random
// hex characters, a separator, and the sanitized name.
func NewStorageKey(displayName string) string {
	id := uuid.New()
	return hex.EncodeToString(id[:4]) + keySeparator + SanitizeFilename(displayName)
}

// SanitizeFilename strips directory components and unsafe runes from name.
// Letters outside ASCII are kept; the result is NFC-normalised.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(rejectRunes, r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case !unicode.IsPrint(r):
			continue
		default:
			b.WriteRune(r)
		}
	}
	name = strings.TrimLeft(b.String(), "._")

	// A trailing temp suffix would hide the object forever.
	if strings.HasSuffix(name, TempSuffix) {
		name = strings.TrimSuffix(name, TempSuffix) + "_" + strings.TrimPrefix(TempSuffix, ".")
	}

	name = truncateName(name, maxNameBytes)
	if name == "" {
		return fallbackName
	}
	return name
}

// truncateName shortens name to at most limit bytes, keeping the extension
// and never splitting a rune.
func truncateName(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > limit/2 {
		ext = ""
	}
	stem := name[:len(name)-len(ext)]
	cut := limit - len(ext)
	for cut > 0 && !utf8.RuneStart(stem[cut]) {
		cut--
	}
	return stem[:cut] + ext
}

// validKey reports whether key can name a stored object at all.
func validKey(key string) bool {
	if key == "" || key == "." || key == ".." || IsReserved(key) {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && !strings.Contains(key, "..")
}
