// Package control persists the process-lifecycle flag that operators set
// to keep the relay from starting.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	shutdownKey  = "shutdown"
	siteTitleKey = "site_title"

	// DefaultSiteTitle is written when the control file is first created.
	DefaultSiteTitle = "文件中转站"
)

// File is a JSON control file. Keys other than the shutdown flag are
// preserved across writes.
type File struct {
	path string
}

// NewFile returns a control file at path. The file need not exist.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the control file location.
func (f *File) Path() string {
	return f.path
}

// RequestShutdown sets the persisted shutdown flag.
func (f *File) RequestShutdown() error {
	return f.setShutdown(true)
}

// ClearShutdown resets the persisted shutdown flag.
func (f *File) ClearShutdown() error {
	return f.setShutdown(false)
}

// IsShutdownRequested reports whether the flag is set. A missing file
// means no.
func (f *File) IsShutdownRequested() (bool, error) {
	values, err := f.read()
	if err != nil {
		return false, err
	}
	raw, ok := values[shutdownKey]
	if !ok {
		return false, nil
	}
	var requested bool
	if err := json.Unmarshal(raw, &requested); err != nil {
		return false, fmt.Errorf("invalid %q value in %s: %w", shutdownKey, f.path, err)
	}
	return requested, nil
}

// SiteTitle returns the configured title, or fallback when unset.
func (f *File) SiteTitle(fallback string) string {
	values, err := f.read()
	if err != nil {
		return fallback
	}
	var title string
	if raw, ok := values[siteTitleKey]; ok && json.Unmarshal(raw, &title) == nil && title != "" {
		return title
	}
	return fallback
}

func (f *File) setShutdown(requested bool) error {
	values, err := f.read()
	if err != nil {
		return err
	}
	if len(values) == 0 {
		values[siteTitleKey], _ = json.Marshal(DefaultSiteTitle)
	}
	values[shutdownKey], _ = json.Marshal(requested)
	return f.write(values)
}

func (f *File) read() (map[string]json.RawMessage, error) {
	values := make(map[string]json.RawMessage)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read control file: %w", err)
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse control file %s: %w", f.path, err)
	}
	return values, nil
}

func (f *File) write(values map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode control file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".control-*.part")
	if err != nil {
		return fmt.Errorf("failed to write control file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write control file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write control file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write control file: %w", err)
	}
	return nil
}
