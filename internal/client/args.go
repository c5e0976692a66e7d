package client

import (
	"fmt"
	"os"
	"path/filepath"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

type PathKind int

const (
	PathFile PathKind = iota
	PathDir
)

func (k PathKind) String() string {
	if k == PathDir {
		return "dir"
	}
	return "file"
}

type ParsedPath struct {
	FullPath string
	Kind     PathKind
}

// ParseArgs checks that every argument names an existing regular file or
// directory.
func ParseArgs(args []string) ([]ParsedPath, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	out := make([]ParsedPath, 0, len(args))
	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}

		switch {
		case info.IsDir():
			out = append(out, ParsedPath{FullPath: p, Kind: PathDir})
		case info.Mode().IsRegular():
			out = append(out, ParsedPath{FullPath: p, Kind: PathFile})
		default:
			return nil, &ValidationError{Arg: raw, Cause: "not a regular file or directory"}
		}
	}

	return out, nil
}
