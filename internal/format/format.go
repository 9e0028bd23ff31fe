// Package format detects the format of a pose dataset on disk and routes it
// to the right reader. The native SLP reader is tried first; when it reports
// a format mismatch, registered legacy importers are probed in priority order.
package format

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/backmassage/poseconv/internal/pose"
)

// ErrUnrecognized is the format-mismatch discriminant. A reader returns an
// error wrapping it when the file exists and is readable but is not in the
// reader's format. Real I/O failures must not wrap it, so callers can tell
// "wrong format, keep probing" apart from "broken input, stop".
var ErrUnrecognized = errors.New("file format not recognized")

// UnsupportedFormatError is returned by Registry.Import when neither the
// native reader nor any legacy importer recognizes the input.
type UnsupportedFormatError struct {
	Path  string
	Tried []string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("no importer recognizes %s (tried: %s)",
		e.Path, strings.Join(e.Tried, ", "))
}

// Options carries per-invocation import context shared by all readers.
type Options struct {
	// Resolver locates referenced media files on disk. Import seeds it with
	// the input file's directory before any reader runs.
	Resolver *pose.VideoResolver

	// VideoHint is an optional media path for formats that do not embed
	// video references of their own.
	VideoHint string

	// Verbose enables per-importer probe tracing.
	Verbose bool
}

// Adapter reads one dataset format.
//
// Match is a cheap probe (extension and magic bytes, no full parse). Read
// does the work; its errors propagate to the caller, so a Match followed by
// a failed Read reports the real parse failure instead of moving on to an
// importer that would misread the file.
type Adapter interface {
	Name() string
	Match(path string) bool
	Read(ctx context.Context, path string, opts Options) (*pose.Project, error)
}

// Logger is the minimal logging interface needed by Registry.Import.
// Defined here (rather than importing the logging package) so that format
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Notice(string, ...interface{})
	Debug(bool, string, ...interface{})
}
