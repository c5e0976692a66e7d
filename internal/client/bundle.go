package client

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"
)

// Source is what gets uploaded: a display name and a way to produce its
// bytes.
type Source struct {
	Name string
	// Size is -1 for bundles, which are produced on the fly.
	Size int64
	Open func() (io.ReadCloser, error)
}

// Prepare turns parsed paths into one upload. A single file is sent as-is;
// anything else is bundled into a zip named after its root.
func Prepare(paths []ParsedPath, now time.Time) (*Source, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no valid paths provided")
	}

	if len(paths) == 1 && paths[0].Kind == PathFile {
		p := paths[0].FullPath
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		return &Source{
			Name: filepath.Base(p),
			Size: info.Size(),
			Open: func() (io.ReadCloser, error) { return os.Open(p) },
		}, nil
	}

	root := ""
	if len(paths) > 1 {
		root = fmt.Sprintf("upload_%s", now.Format("2006_01_02_150405"))
	}
	name := root
	if name == "" {
		name = filepath.Base(paths[0].FullPath)
	}

	return &Source{
		Name: name + ".zip",
		Size: -1,
		Open: func() (io.ReadCloser, error) {
			pr, pw := io.Pipe()
			go func() {
				pw.CloseWithError(WriteZip(pw, paths, root))
			}()
			return pr, nil
		},
	}, nil
}

// WriteZip writes paths into a zip archive on w. Directories keep their
// own name as the top-level entry; root, when set, prefixes everything.
func WriteZip(w io.Writer, paths []ParsedPath, root string) error {
	zw := zip.NewWriter(w)

	for _, p := range paths {
		base := path.Join(root, filepath.Base(p.FullPath))
		if p.Kind == PathFile {
			if err := addFile(zw, p.FullPath, base); err != nil {
				zw.Close()
				return err
			}
			continue
		}

		err := filepath.WalkDir(p.FullPath, func(walked string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(p.FullPath, walked)
			if err != nil {
				return err
			}
			return addFile(zw, walked, path.Join(base, filepath.ToSlash(rel)))
		})
		if err != nil {
			zw.Close()
			return fmt.Errorf("failed to bundle %s: %w", p.FullPath, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, srcPath, archivePath string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", srcPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header: %w", err)
	}
	header.Name = archivePath
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}
	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to write file to zip: %w", err)
	}
	return nil
}
