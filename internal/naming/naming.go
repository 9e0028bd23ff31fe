// Package naming builds output paths for converted pose datasets.
package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// reProjectSuffix matches one trailing recognized project extension. Only a
// single suffix is stripped, so "session.v2.slp" becomes "session.v2" and an
// already-stripped path is left alone.
var reProjectSuffix = regexp.MustCompile(`(\.json(\.zip)?|\.h5|\.slp)$`)

// StripProjectSuffix removes a trailing recognized project extension from
// path, if present.
func StripProjectSuffix(path string) string {
	return reProjectSuffix.ReplaceAllString(path, "")
}

// Stem returns the base name of a project path without its recognized
// extension. Stem("sessions/proj.json.zip") is "proj".
func Stem(path string) string {
	return filepath.Base(StripProjectSuffix(path))
}

// VideoStem returns a video's base name without its file extension.
func VideoStem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DefaultAnalysisPath builds the canonical analysis output path for one video
// of a project:
//
//	<dir>/<stem>.<video index, zero-padded>_<video stem>.analysis.<ext>
//
// videoIdx is the video's position in the project's full video list, not in
// whatever subset a run selected, so names stay stable across filtered
// invocations. The zero-padded index keeps sibling outputs unique even when
// two videos share a base name.
func DefaultAnalysisPath(inputPath string, videoIdx int, videoFilename, ext string) string {
	prefix := StripProjectSuffix(inputPath)
	file := fmt.Sprintf("%s.%03d_%s.analysis.%s",
		filepath.Base(prefix), videoIdx, VideoStem(videoFilename), ext)
	return filepath.Join(filepath.Dir(prefix), file)
}

// DefaultNativePath builds the default output path for a native save: the
// input path with the target extension appended, suffix and all.
func DefaultNativePath(inputPath, ext string) string {
	return inputPath + "." + ext
}
