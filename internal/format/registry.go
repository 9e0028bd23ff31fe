package format

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/backmassage/poseconv/internal/pose"
)

// Registry holds the native reader plus the legacy importers in probe order.
type Registry struct {
	native Adapter
	legacy []Adapter
}

// NewRegistry builds a Registry. The native reader is required; legacy
// importers are probed in the order given, so put the more specific ones
// first.
func NewRegistry(native Adapter, legacy ...Adapter) (*Registry, error) {
	if native == nil {
		return nil, errors.New("format: native reader is required")
	}
	seen := map[string]bool{native.Name(): true}
	for _, a := range legacy {
		if a == nil {
			return nil, errors.New("format: nil legacy importer")
		}
		if seen[a.Name()] {
			return nil, fmt.Errorf("format: duplicate importer name %q", a.Name())
		}
		seen[a.Name()] = true
	}
	return &Registry{native: native, legacy: legacy}, nil
}

// Names lists the native reader followed by the legacy importers in probe
// order.
func (r *Registry) Names() []string {
	names := make([]string, 0, 1+len(r.legacy))
	names = append(names, r.native.Name())
	for _, a := range r.legacy {
		names = append(names, a.Name())
	}
	return names
}

// Import loads the dataset at path, detecting its format. The native reader
// runs first; on a format mismatch the legacy importers are probed in order
// and the first whose Match accepts the file reads it. A missing or
// unreadable input surfaces as the underlying I/O error, never as a
// detection failure.
func (r *Registry) Import(ctx context.Context, path string, opts Options, log Logger) (*pose.Project, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if opts.Resolver == nil {
		opts.Resolver = pose.NewVideoResolver()
	}
	opts.Resolver.AddDir(filepath.Dir(path))

	p, err := r.native.Read(ctx, path, opts)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrUnrecognized) {
		return nil, err
	}

	log.Notice("Input file isn't a native SLP dataset; trying legacy importers...")
	tried := []string{r.native.Name()}
	for _, a := range r.legacy {
		tried = append(tried, a.Name())
		if !a.Match(path) {
			log.Debug(opts.Verbose, "importer %s: no match for %s", a.Name(), filepath.Base(path))
			continue
		}
		log.Debug(opts.Verbose, "importer %s: reading %s", a.Name(), filepath.Base(path))
		return a.Read(ctx, path, opts)
	}
	return nil, &UnsupportedFormatError{Path: path, Tried: tried}
}
