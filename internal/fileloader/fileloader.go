// Package fileloader implements the file-loader contract: a read-only
// mapping from a logical path to its source text and a canonical path
// used as the include-cycle detection key.
package fileloader

import (
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/Manu343726/elfhex/internal/elfherr"
)

// Loader resolves a logical include path to its contents and a
// canonical (cycle-detection) path. The preprocessor is the only
// caller; the core never touches the filesystem on its own.
type Loader interface {
	Load(path string) (contents string, canonicalPath string, err error)
}

// FS is a Loader backed by the real filesystem, searching a list of
// directories in order.
type FS struct {
	SearchDirs []string
}

// New returns a filesystem-backed Loader searching searchDirs in order.
func New(searchDirs []string) *FS {
	dirs := make([]string, len(searchDirs))
	copy(dirs, searchDirs)
	return &FS{SearchDirs: dirs}
}

func (l *FS) Load(path string) (string, string, error) {
	var notFound error
	for _, dir := range l.SearchDirs {
		full, err := filepath.Abs(filepath.Join(dir, path))
		if err != nil {
			notFound = multierr.Append(notFound, err)
			continue
		}
		contents, err := os.ReadFile(full)
		if err != nil {
			notFound = multierr.Append(notFound, err)
			continue
		}
		canonical, err := filepath.EvalSymlinks(full)
		if err != nil {
			canonical = full
		}
		return string(contents), canonical, nil
	}
	return "", "", elfherr.Input("couldn't find %q in %v: %w", path, l.SearchDirs, notFound)
}
