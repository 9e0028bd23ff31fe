package dlc

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// table is one parsed CollectedData CSV. Columns after the index come in
// x/y pairs; pair i belongs to bodyparts[i] and, in multi-animal files,
// individuals[i].
type table struct {
	scorer      string
	bodyparts   []string
	individuals []string // empty for single-animal files
	rows        []tableRow
}

type tableRow struct {
	image string   // e.g. "labeled-data/camA/img0012.png"
	cells []string // raw value cells, 2 per pair
}

// pairCount returns the number of x/y column pairs.
func (t *table) pairCount() int { return len(t.bodyparts) }

// nodeNames returns the unique bodyparts in first-seen order.
func (t *table) nodeNames() []string {
	var names []string
	seen := map[string]bool{}
	for _, bp := range t.bodyparts {
		if !seen[bp] {
			seen[bp] = true
			names = append(names, bp)
		}
	}
	return names
}

// individualNames returns the unique individuals in first-seen order.
func (t *table) individualNames() []string {
	var names []string
	seen := map[string]bool{}
	for _, ind := range t.individuals {
		if ind != "" && !seen[ind] {
			seen[ind] = true
			names = append(names, ind)
		}
	}
	return names
}

// parseCSV reads a labeled-data CSV. The header block is two to four rows
// (scorer, optional individuals, bodyparts, coords), each tagged in its
// first cell. Newer files spread the image path over three index columns;
// the header rows then pad with two empty cells, which is how the width is
// detected.
func parseCSV(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	t := &table{}
	var coords []string
	indexWidth := 1
	headerRows := 0
	for _, rec := range records {
		if len(rec) == 0 {
			continue
		}
		switch rec[0] {
		case "scorer":
			headerRows++
			if w := detectIndexWidth(rec); w > indexWidth {
				indexWidth = w
			}
			for _, c := range rec[1:] {
				if c != "" {
					t.scorer = c
					break
				}
			}
		case "individuals":
			headerRows++
			if w := detectIndexWidth(rec); w > indexWidth {
				indexWidth = w
			}
			t.individuals = pairValues(rec, indexWidth)
		case "bodyparts":
			headerRows++
			if w := detectIndexWidth(rec); w > indexWidth {
				indexWidth = w
			}
			t.bodyparts = pairValues(rec, indexWidth)
		case "coords":
			headerRows++
			coords = rec[indexWidth:]
		default:
			row, err := dataRow(rec, indexWidth)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			t.rows = append(t.rows, row)
		}
	}

	if headerRows < 3 || len(t.bodyparts) == 0 {
		return nil, fmt.Errorf("%s: not a labeled-data CSV (no bodyparts header)", path)
	}
	for i := 0; i+1 < len(coords); i += 2 {
		if coords[i] != "x" || coords[i+1] != "y" {
			return nil, fmt.Errorf("%s: coords columns %d-%d are %q,%q, want x,y", path, i, i+1, coords[i], coords[i+1])
		}
	}
	if len(coords) != 2*t.pairCount() {
		return nil, fmt.Errorf("%s: %d coord columns for %d bodypart pairs", path, len(coords), t.pairCount())
	}
	if t.individuals != nil && len(t.individuals) != t.pairCount() {
		return nil, fmt.Errorf("%s: %d individual columns for %d bodypart pairs", path, len(t.individuals), t.pairCount())
	}
	return t, nil
}

// detectIndexWidth reports 3 when a header row pads the index with two
// empty cells, 1 otherwise.
func detectIndexWidth(rec []string) int {
	if len(rec) >= 3 && rec[1] == "" && rec[2] == "" {
		return 3
	}
	return 1
}

// pairValues collapses a header row's per-column cells into one value per
// x/y pair.
func pairValues(rec []string, indexWidth int) []string {
	cells := rec[indexWidth:]
	vals := make([]string, 0, len(cells)/2)
	for i := 0; i+1 < len(cells); i += 2 {
		vals = append(vals, cells[i])
	}
	return vals
}

func dataRow(rec []string, indexWidth int) (tableRow, error) {
	if len(rec) <= indexWidth {
		return tableRow{}, fmt.Errorf("short data row %q", strings.Join(rec, ","))
	}
	image := rec[0]
	if indexWidth == 3 {
		image = path.Join(rec[0], rec[1], rec[2])
	}
	return tableRow{image: image, cells: rec[indexWidth:]}, nil
}

var reImageFrame = regexp.MustCompile(`(\d+)\.[A-Za-z]+$`)

// frameIndex extracts the frame number from an image name like
// "labeled-data/camA/img0012.png".
func frameIndex(image string) (int, error) {
	m := reImageFrame.FindStringSubmatch(image)
	if m == nil {
		return 0, fmt.Errorf("no frame number in image name %q", image)
	}
	return strconv.Atoi(m[1])
}

// videoKey returns the labeled-data subdirectory an image row belongs to.
func videoKey(image string) string {
	return path.Dir(image)
}

// cellPoint parses one x/y cell pair. Empty or malformed cells mean the
// point was not labeled.
func cellPoint(x, y string) (float64, float64, bool) {
	xv, xerr := strconv.ParseFloat(strings.TrimSpace(x), 64)
	yv, yerr := strconv.ParseFloat(strings.TrimSpace(y), 64)
	if xerr != nil || yerr != nil {
		return math.NaN(), math.NaN(), false
	}
	return xv, yv, true
}
