// Package h5 wraps the HDF5 command-line tools (h5ls, h5dump, h5import)
// behind typed Go calls. Reading goes through h5ls/h5dump with the raw text
// output parsed into structs; writing assembles text payloads plus h5import
// configuration files and runs a single h5import invocation per output file.
//
// The tools are resolved from PATH at call time. [LookTools] lets callers
// fail fast with a sentinel error before starting work that needs them.
package h5

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Sentinel errors returned by LookTools when a required tool is missing.
var (
	ErrH5lsNotFound     = errors.New("h5ls not found on PATH (install the HDF5 tools)")
	ErrH5dumpNotFound   = errors.New("h5dump not found on PATH (install the HDF5 tools)")
	ErrH5importNotFound = errors.New("h5import not found on PATH (install the HDF5 tools)")
)

// LookTools verifies the tools needed for the requested direction are on
// PATH: h5ls and h5dump for reading, h5import for writing.
func LookTools(read, write bool) error {
	if read {
		if _, err := exec.LookPath("h5ls"); err != nil {
			return ErrH5lsNotFound
		}
		if _, err := exec.LookPath("h5dump"); err != nil {
			return ErrH5dumpNotFound
		}
	}
	if write {
		if _, err := exec.LookPath("h5import"); err != nil {
			return ErrH5importNotFound
		}
	}
	return nil
}

// hdf5Magic is the 8-byte signature at offset 0 of every HDF5 file.
var hdf5Magic = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// Sniff reports whether path starts with the HDF5 signature. It reads the
// first 8 bytes directly, so it is safe to call on files of any type and
// needs no external tools.
func Sniff(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, len(hdf5Magic))
	if _, err := io.ReadFull(f, buf); err != nil {
		return false
	}
	return bytes.Equal(buf, hdf5Magic)
}

// ObjectKind distinguishes groups from datasets in a listing.
type ObjectKind int

const (
	KindGroup ObjectKind = iota
	KindDataset
)

func (k ObjectKind) String() string {
	if k == KindGroup {
		return "group"
	}
	return "dataset"
}

// Object is one entry from an h5ls listing.
type Object struct {
	Path string // absolute object path inside the file, e.g. "/points"
	Kind ObjectKind
	Dims []int // dataset dimensions; empty for scalars, nil for groups
}

// List returns every group and dataset in the file, as reported by h5ls -r.
func List(ctx context.Context, path string) ([]Object, error) {
	out, err := run(ctx, "h5ls", "-r", path)
	if err != nil {
		return nil, err
	}
	return ParseLs(string(out))
}

// FindDataset returns the listed object at path when it is a dataset.
func FindDataset(objs []Object, path string) (Object, bool) {
	for _, o := range objs {
		if o.Path == path && o.Kind == KindDataset {
			return o, true
		}
	}
	return Object{}, false
}

// ReadFloats dumps one numeric dataset and returns its values in row-major
// order along with the dataset dimensions. Integer datasets are returned as
// floats; values this converter stores stay well inside exact float64 range.
func ReadFloats(ctx context.Context, path, dataset string) ([]float64, []int, error) {
	out, err := dump(ctx, path, dataset)
	if err != nil {
		return nil, nil, err
	}
	vals, dims, err := ParseFloats(string(out))
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", path, dataset, err)
	}
	return vals, dims, nil
}

// ReadInts dumps one integer dataset and returns its values in row-major
// order along with the dataset dimensions.
func ReadInts(ctx context.Context, path, dataset string) ([]int64, []int, error) {
	out, err := dump(ctx, path, dataset)
	if err != nil {
		return nil, nil, err
	}
	vals, dims, err := ParseInts(string(out))
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", path, dataset, err)
	}
	return vals, dims, nil
}

// ReadBytes dumps one uint8 dataset and returns its values as a byte slice.
func ReadBytes(ctx context.Context, path, dataset string) ([]byte, error) {
	vals, _, err := ReadInts(ctx, path, dataset)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%s %s: value %d out of byte range", path, dataset, v)
		}
		buf[i] = byte(v)
	}
	return buf, nil
}

// ReadStrings dumps one string dataset (rank 1 or scalar) and returns its
// values.
func ReadStrings(ctx context.Context, path, dataset string) ([]string, error) {
	out, err := dump(ctx, path, dataset)
	if err != nil {
		return nil, err
	}
	vals, err := ParseStrings(string(out))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", path, dataset, err)
	}
	return vals, nil
}

// dump invokes h5dump for a single dataset. -y drops index prefixes and
// -A 0 suppresses attribute blocks, leaving exactly one DATA section.
func dump(ctx context.Context, path, dataset string) ([]byte, error) {
	return run(ctx, "h5dump", "-A", "0", "-y", "-d", dataset, path)
}

// run executes one tool invocation and returns its stdout. On failure the
// first stderr line is folded into the error, which is usually the only
// useful part of the HDF5 tools' diagnostics.
func run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := firstLine(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s %q: %w", name, args, err)
		}
		return nil, fmt.Errorf("%s %q: %w: %s", name, args, err, msg)
	}
	return stdout.Bytes(), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
