package h5

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Class selects the on-disk element type of an imported dataset.
type Class int

const (
	ClassFloat64 Class = iota // 64-bit IEEE float
	ClassInt64                // 64-bit signed integer
	ClassUint8                // 8-bit unsigned integer
	ClassString               // text, one value per element
)

// DatasetSpec is one dataset to materialize in an output file. Exactly one
// payload field matching Class is consulted. Intermediate groups in Path
// are created by the tool.
type DatasetSpec struct {
	Path  string // absolute dataset path, e.g. "/track_occupancy"
	Dims  []int
	Class Class

	Floats  []float64
	Ints    []int64
	Bytes   []uint8
	Strings []string
}

// FloatDataset builds a float64 dataset spec with row-major data.
func FloatDataset(path string, dims []int, data []float64) DatasetSpec {
	return DatasetSpec{Path: path, Dims: dims, Class: ClassFloat64, Floats: data}
}

// IntDataset builds an int64 dataset spec with row-major data.
func IntDataset(path string, dims []int, data []int64) DatasetSpec {
	return DatasetSpec{Path: path, Dims: dims, Class: ClassInt64, Ints: data}
}

// ByteDataset builds a uint8 dataset spec with row-major data.
func ByteDataset(path string, dims []int, data []uint8) DatasetSpec {
	return DatasetSpec{Path: path, Dims: dims, Class: ClassUint8, Bytes: data}
}

// StringDataset builds a rank-1 string dataset spec.
func StringDataset(path string, values []string) DatasetSpec {
	return DatasetSpec{Path: path, Dims: []int{len(values)}, Class: ClassString, Strings: values}
}

// ScalarString builds a one-element string dataset, the conventional shape
// for single metadata values.
func ScalarString(path, value string) DatasetSpec {
	return StringDataset(path, []string{value})
}

// Import materializes the given datasets into a fresh HDF5 file at outPath
// with a single h5import invocation. Any existing file at outPath is
// replaced (h5import would otherwise append into it).
func Import(ctx context.Context, outPath string, specs []DatasetSpec) error {
	if len(specs) == 0 {
		return errors.New("h5: no datasets to import")
	}

	tmp, err := os.MkdirTemp("", "poseconv-h5import-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	args := make([]string, 0, 3*len(specs)+2)
	for i, ds := range specs {
		conf, err := ds.configText()
		if err != nil {
			return fmt.Errorf("h5: dataset %s: %w", ds.Path, err)
		}
		dataPath := filepath.Join(tmp, fmt.Sprintf("d%03d.txt", i))
		confPath := filepath.Join(tmp, fmt.Sprintf("d%03d.conf", i))
		if err := os.WriteFile(dataPath, []byte(ds.payload()), 0644); err != nil {
			return err
		}
		if err := os.WriteFile(confPath, []byte(conf), 0644); err != nil {
			return err
		}
		args = append(args, dataPath, "-c", confPath)
	}
	args = append(args, "-o", outPath)

	if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	_, err = run(ctx, "h5import", args...)
	return err
}

// configText renders the h5import configuration for one dataset, validating
// the spec first so shape bugs surface as errors rather than corrupt files.
func (ds DatasetSpec) configText() (string, error) {
	if !strings.HasPrefix(ds.Path, "/") {
		return "", fmt.Errorf("dataset path %q is not absolute", ds.Path)
	}
	if len(ds.Dims) == 0 {
		return "", errors.New("dataset has no dimensions")
	}
	want := 1
	for _, d := range ds.Dims {
		if d <= 0 {
			return "", fmt.Errorf("non-positive dimension %d", d)
		}
		want *= d
	}
	if got := ds.payloadLen(); got != want {
		return "", fmt.Errorf("payload has %d values, dims %v need %d", got, ds.Dims, want)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PATH %s\n", ds.Path)
	fmt.Fprintf(&b, "RANK %d\n", len(ds.Dims))
	fmt.Fprintf(&b, "DIMENSION-SIZES %s\n", dimsText(ds.Dims))
	switch ds.Class {
	case ClassFloat64:
		b.WriteString("INPUT-CLASS TEXTFP\nINPUT-SIZE 64\nOUTPUT-CLASS FP\nOUTPUT-SIZE 64\nOUTPUT-ARCHITECTURE NATIVE\n")
	case ClassInt64:
		b.WriteString("INPUT-CLASS TEXTIN\nINPUT-SIZE 64\nOUTPUT-CLASS IN\nOUTPUT-SIZE 64\nOUTPUT-ARCHITECTURE NATIVE\n")
	case ClassUint8:
		b.WriteString("INPUT-CLASS TEXTUIN\nINPUT-SIZE 8\nOUTPUT-CLASS UIN\nOUTPUT-SIZE 8\nOUTPUT-ARCHITECTURE NATIVE\n")
	case ClassString:
		if len(ds.Dims) != 1 {
			return "", errors.New("string datasets must be rank 1")
		}
		for _, s := range ds.Strings {
			if strings.ContainsAny(s, "\r\n") {
				return "", fmt.Errorf("string value %q contains a line break", s)
			}
		}
		b.WriteString("INPUT-CLASS STR\nOUTPUT-CLASS STR\n")
	default:
		return "", fmt.Errorf("unknown class %d", ds.Class)
	}
	return b.String(), nil
}

// payload renders the dataset values as h5import text input, one value per
// line. Floats use the shortest round-trip form; NaN prints as "NaN", which
// the tool's C scanner accepts.
func (ds DatasetSpec) payload() string {
	var b strings.Builder
	switch ds.Class {
	case ClassFloat64:
		for _, v := range ds.Floats {
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			b.WriteByte('\n')
		}
	case ClassInt64:
		for _, v := range ds.Ints {
			b.WriteString(strconv.FormatInt(v, 10))
			b.WriteByte('\n')
		}
	case ClassUint8:
		for _, v := range ds.Bytes {
			b.WriteString(strconv.Itoa(int(v)))
			b.WriteByte('\n')
		}
	case ClassString:
		for _, s := range ds.Strings {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (ds DatasetSpec) payloadLen() int {
	switch ds.Class {
	case ClassFloat64:
		return len(ds.Floats)
	case ClassInt64:
		return len(ds.Ints)
	case ClassUint8:
		return len(ds.Bytes)
	case ClassString:
		return len(ds.Strings)
	}
	return 0
}

func dimsText(dims []int) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, " ")
}
