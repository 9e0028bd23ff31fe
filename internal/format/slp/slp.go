// Package slp reads and writes the native dataset format: an HDF5 container
// by default, plus plain JSON and zipped JSON variants for portability.
package slp

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/backmassage/poseconv/internal/format"
	"github.com/backmassage/poseconv/internal/h5"
	"github.com/backmassage/poseconv/internal/pose"
)

// Adapter is the native reader. It is always registered first, so its Read
// decides between "loaded" and "not ours, probe the legacy importers".
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (*Adapter) Name() string { return "slp" }

// Match accepts the native extensions and anything carrying the HDF5
// signature.
func (*Adapter) Match(path string) bool {
	switch {
	case strings.HasSuffix(path, ".slp"),
		strings.HasSuffix(path, ".json"),
		strings.HasSuffix(path, ".json.zip"):
		return true
	}
	return h5.Sniff(path)
}

// Read loads the variant implied by the path: ".json.zip", ".json", or the
// HDF5 container for everything else.
func (*Adapter) Read(ctx context.Context, path string, opts format.Options) (*pose.Project, error) {
	switch {
	case strings.HasSuffix(path, ".json.zip"):
		return readJSONZip(path, opts)
	case strings.HasSuffix(path, ".json"):
		return readJSON(path, opts)
	default:
		return readContainer(ctx, path, opts)
	}
}

// ContainerPath reports whether Save would write the HDF5 container to path
// rather than one of the JSON document variants.
func ContainerPath(path string) bool {
	return !strings.HasSuffix(path, ".json") && !strings.HasSuffix(path, ".json.zip")
}

// Save writes the project in the variant implied by the output extension.
// Anything that is not ".json" or ".json.zip" gets the HDF5 container.
func Save(ctx context.Context, p *pose.Project, path string) error {
	switch {
	case ContainerPath(path):
		return writeContainer(ctx, p, path)
	case strings.HasSuffix(path, ".json.zip"):
		return writeJSONZip(p, path)
	default:
		return writeJSON(p, path)
	}
}

func readJSON(path string, opts format.Options) (*pose.Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeDocument(raw, path, opts)
}

// decodeDocument distinguishes three failure classes: malformed JSON is a
// real error (no other importer could read it either), valid JSON of the
// wrong shape or without a version is a format mismatch, and a version above
// formatVersion is a real error with a pointed message.
func decodeDocument(raw []byte, path string, opts format.Options) (*pose.Project, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%s: not a pose document: %w", path, format.ErrUnrecognized)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if doc.Version < 1 {
		return nil, fmt.Errorf("%s: no document version: %w", path, format.ErrUnrecognized)
	}
	if doc.Version > formatVersion {
		return nil, fmt.Errorf("%s: document version %d is newer than this tool supports (max %d)",
			path, doc.Version, formatVersion)
	}
	return projectFromDoc(&doc, opts)
}

func readJSONZip(path string, opts format.Options) (*pose.Project, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".json") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, f.Name, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, f.Name, err)
		}
		return decodeDocument(raw, path, opts)
	}
	return nil, fmt.Errorf("%s: no .json entry in archive: %w", path, format.ErrUnrecognized)
}

func writeJSON(p *pose.Project, path string) error {
	doc, err := docFromProject(p, true)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0644)
}

func writeJSONZip(p *pose.Project, path string) error {
	doc, err := docFromProject(p, true)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)
	entry := strings.TrimSuffix(filepath.Base(path), ".zip")
	w, err := zw.Create(entry)
	if err == nil {
		_, err = w.Write(raw)
	}
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
