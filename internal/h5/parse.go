package h5

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ParseLs converts raw `h5ls -r` output into object entries.
// Exported for testing without the HDF5 tools installed.
//
// Expected line shapes:
//
//	/                        Group
//	/points                  Dataset {40, 4}
//	/scalar                  Dataset {SCALAR}
//	/log                     Dataset {3/Inf}
func ParseLs(out string) ([]Object, error) {
	var objs []Object
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[1] {
		case "Group":
			objs = append(objs, Object{Path: fields[0], Kind: KindGroup})
		case "Dataset":
			dims, err := parseLsDims(line)
			if err != nil {
				return nil, fmt.Errorf("h5ls line %q: %w", line, err)
			}
			objs = append(objs, Object{Path: fields[0], Kind: KindDataset, Dims: dims})
		}
		// Named datatypes and links are not interesting here.
	}
	return objs, nil
}

// parseLsDims extracts dimensions from the {...} suffix of a dataset line.
// Extendible dims print as "cur/max"; only the current extent matters.
func parseLsDims(line string) ([]int, error) {
	open := strings.IndexByte(line, '{')
	cls := strings.LastIndexByte(line, '}')
	if open < 0 || cls < open {
		return []int{}, nil
	}
	body := strings.TrimSpace(line[open+1 : cls])
	if body == "" || body == "SCALAR" {
		return []int{}, nil
	}
	parts := strings.Split(body, ",")
	dims := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if i := strings.IndexByte(p, '/'); i >= 0 {
			p = p[:i]
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad dimension %q", p)
		}
		dims = append(dims, n)
	}
	return dims, nil
}

// ParseFloats converts raw h5dump output of a numeric dataset into its
// values (row-major) and dimensions. Exported for testing without the HDF5
// tools installed.
func ParseFloats(out string) ([]float64, []int, error) {
	dims, err := parseDataspace(out)
	if err != nil {
		return nil, nil, err
	}
	body, err := dataBody(out)
	if err != nil {
		return nil, nil, err
	}

	want := 1
	for _, d := range dims {
		want *= d
	}
	vals := make([]float64, 0, want)
	for _, tok := range strings.Split(body, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("bad value %q", tok)
		}
		vals = append(vals, v)
	}
	if len(vals) != want {
		return nil, nil, fmt.Errorf("value count %d does not match dims %v", len(vals), dims)
	}
	return vals, dims, nil
}

// ParseInts converts raw h5dump output of an integer dataset into its
// values (row-major) and dimensions. Exported for testing without the HDF5
// tools installed.
func ParseInts(out string) ([]int64, []int, error) {
	dims, err := parseDataspace(out)
	if err != nil {
		return nil, nil, err
	}
	body, err := dataBody(out)
	if err != nil {
		return nil, nil, err
	}

	want := 1
	for _, d := range dims {
		want *= d
	}
	vals := make([]int64, 0, want)
	for _, tok := range strings.Split(body, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("bad value %q", tok)
		}
		vals = append(vals, v)
	}
	if len(vals) != want {
		return nil, nil, fmt.Errorf("value count %d does not match dims %v", len(vals), dims)
	}
	return vals, dims, nil
}

// ParseStrings converts raw h5dump output of a string dataset into its
// values. Exported for testing without the HDF5 tools installed.
func ParseStrings(out string) ([]string, error) {
	body, err := dataBody(out)
	if err != nil {
		return nil, err
	}
	var vals []string
	var cur strings.Builder
	inQuote := false
	escaped := false
	for _, r := range body {
		switch {
		case escaped:
			// h5dump escapes embedded quotes and backslashes.
			if r != '"' && r != '\\' {
				cur.WriteByte('\\')
			}
			cur.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			if inQuote {
				vals = append(vals, cur.String())
				cur.Reset()
			}
			inQuote = !inQuote
		case inQuote:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, errors.New("unterminated string in DATA block")
	}
	return vals, nil
}

// parseDataspace extracts the current dims from the DATASPACE line:
//
//	DATASPACE  SIMPLE { ( 40, 4 ) / ( 40, 4 ) }
//	DATASPACE  SCALAR
func parseDataspace(out string) ([]int, error) {
	idx := strings.Index(out, "DATASPACE")
	if idx < 0 {
		return nil, errors.New("no DATASPACE in h5dump output")
	}
	line := out[idx:]
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	if strings.Contains(line, "SCALAR") {
		return []int{}, nil
	}
	open := strings.IndexByte(line, '(')
	cls := strings.IndexByte(line, ')')
	if open < 0 || cls < open {
		return nil, fmt.Errorf("unparseable DATASPACE line %q", line)
	}
	var dims []int
	for _, p := range strings.Split(line[open+1:cls], ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad dimension %q in DATASPACE line", p)
		}
		dims = append(dims, n)
	}
	return dims, nil
}

// dataBody returns the text between "DATA {" and its matching brace.
// Braces inside quoted strings do not count toward nesting.
func dataBody(out string) (string, error) {
	idx := strings.Index(out, "DATA {")
	if idx < 0 {
		return "", errors.New("no DATA block in h5dump output")
	}
	rest := out[idx+len("DATA {"):]
	depth := 1
	inQuote := false
	escaped := false
	for i, r := range rest {
		switch {
		case escaped:
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case !inQuote && r == '{':
			depth++
		case !inQuote && r == '}':
			depth--
			if depth == 0 {
				return rest[:i], nil
			}
		}
	}
	return "", errors.New("unterminated DATA block in h5dump output")
}
