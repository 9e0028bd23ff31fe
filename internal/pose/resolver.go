package pose

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MissingVideoError reports a backing video that could not be located on
// disk. Loaders treat it as advisory and keep the recorded filename;
// writers that need readable media reject the video themselves.
type MissingVideoError struct {
	Filename string
	Searched []string
}

func (e *MissingVideoError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("video %q not found", e.Filename)
	}
	return fmt.Sprintf("video %q not found (searched: %s)", e.Filename, strings.Join(e.Searched, ", "))
}

// VideoResolver locates backing videos referenced by project files. Project
// files record the video paths of the machine they were created on; the
// resolver rewrites them against an ordered list of candidate directories.
type VideoResolver struct {
	dirs []string
}

// NewVideoResolver builds a resolver that tries the literal path first and
// then each given directory (empty entries are dropped) with the path's
// base name.
func NewVideoResolver(dirs ...string) *VideoResolver {
	r := &VideoResolver{}
	for _, d := range dirs {
		if d != "" {
			r.dirs = append(r.dirs, d)
		}
	}
	return r
}

// AddDir appends another search directory.
func (r *VideoResolver) AddDir(dir string) {
	if dir != "" {
		r.dirs = append(r.dirs, dir)
	}
}

// Resolve returns a path to filename that exists on disk, or a
// *MissingVideoError listing every candidate tried.
func (r *VideoResolver) Resolve(filename string) (string, error) {
	if filename == "" {
		return "", &MissingVideoError{Filename: filename}
	}
	if fileExists(filename) {
		return filename, nil
	}
	base := filepath.Base(filename)
	searched := []string{filename}
	for _, d := range r.dirs {
		cand := filepath.Join(d, base)
		if fileExists(cand) {
			return cand, nil
		}
		searched = append(searched, cand)
	}
	return "", &MissingVideoError{Filename: filename, Searched: searched}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
