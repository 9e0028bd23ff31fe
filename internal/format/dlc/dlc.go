// Package dlc imports DeepLabCut datasets. A labeled-data CSV loads on its
// own; a project config.yaml loads every video in its video_sets, walking
// the project's labeled-data directories for the matching CollectedData
// CSVs.
package dlc

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/backmassage/poseconv/internal/format"
	"github.com/backmassage/poseconv/internal/pose"
)

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (*Adapter) Name() string { return "dlc" }

func (*Adapter) Match(path string) bool {
	return strings.HasSuffix(path, ".csv") ||
		strings.HasSuffix(path, ".yaml") ||
		strings.HasSuffix(path, ".yml")
}

func (*Adapter) Read(_ context.Context, path string, opts format.Options) (*pose.Project, error) {
	if strings.HasSuffix(path, ".csv") {
		return readCSVStandalone(path, opts)
	}
	return readConfig(path, opts)
}

func indexOf(names []string) map[string]int {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	return idx
}

func stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// rowInstances builds the instances of one image row: a single instance for
// single-animal files, one per individual otherwise. Individuals whose
// cells are all empty are dropped, and a row with no labeled points yields
// no instances at all.
func rowInstances(t *table, row tableRow, nodeIdx map[string]int, nodeCount int, trackOf func(string) (*pose.Track, error)) ([]*pose.Instance, error) {
	if len(row.cells) < 2*t.pairCount() {
		return nil, fmt.Errorf("row %q has %d value cells, want %d", row.image, len(row.cells), 2*t.pairCount())
	}

	type slot struct {
		inst    *pose.Instance
		labeled bool
	}
	var order []string
	slots := map[string]*slot{}
	for i := 0; i < t.pairCount(); i++ {
		ind := ""
		if t.individuals != nil {
			ind = t.individuals[i]
		}
		s, ok := slots[ind]
		if !ok {
			inst := &pose.Instance{Points: make([]pose.Point, nodeCount)}
			for j := range inst.Points {
				inst.Points[j] = pose.Point{X: math.NaN(), Y: math.NaN()}
			}
			if ind != "" {
				tr, err := trackOf(ind)
				if err != nil {
					return nil, err
				}
				inst.Track = tr
			}
			s = &slot{inst: inst}
			slots[ind] = s
			order = append(order, ind)
		}

		ni, ok := nodeIdx[t.bodyparts[i]]
		if !ok {
			return nil, fmt.Errorf("bodypart %q not in skeleton", t.bodyparts[i])
		}
		x, y, vis := cellPoint(row.cells[2*i], row.cells[2*i+1])
		s.inst.Points[ni] = pose.Point{X: x, Y: y, Visible: vis}
		if vis {
			s.labeled = true
		}
	}

	var out []*pose.Instance
	for _, ind := range order {
		if slots[ind].labeled {
			out = append(out, slots[ind].inst)
		}
	}
	return out, nil
}

// readCSVStandalone loads one CSV without a surrounding project. Videos are
// derived from the labeled-data subdirectories named in the image column;
// with no movie file to point at, the image directory itself stands in as
// the backing filename unless a hint names the movie.
func readCSVStandalone(path string, opts format.Options) (*pose.Project, error) {
	t, err := parseCSV(path)
	if err != nil {
		return nil, err
	}

	p := pose.NewProject()
	p.Provenance["format"] = "dlc"
	p.Provenance["source"] = path
	if t.scorer != "" {
		p.Provenance["scorer"] = t.scorer
	}

	nodes := t.nodeNames()
	p.Skeleton = &pose.Skeleton{Name: "dlc", Nodes: nodes}
	nodeIdx := indexOf(nodes)

	tracks := map[string]*pose.Track{}
	for _, ind := range t.individualNames() {
		tr := &pose.Track{Name: ind}
		tracks[ind] = tr
		p.Tracks = append(p.Tracks, tr)
	}
	trackOf := func(name string) (*pose.Track, error) {
		tr, ok := tracks[name]
		if !ok {
			return nil, fmt.Errorf("individual %q not declared", name)
		}
		return tr, nil
	}

	var keys []string
	seen := map[string]bool{}
	for _, row := range t.rows {
		k := videoKey(row.image)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	videos := map[string]*pose.Video{}
	for _, k := range keys {
		name := k
		if opts.VideoHint != "" && len(keys) == 1 {
			name = opts.VideoHint
		} else if opts.Resolver != nil {
			if resolved, err := opts.Resolver.Resolve(k); err == nil {
				name = resolved
			}
		}
		v := &pose.Video{Filename: name}
		videos[k] = v
		p.Videos = append(p.Videos, v)
	}

	for _, row := range t.rows {
		fi, err := frameIndex(row.image)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		insts, err := rowInstances(t, row, nodeIdx, len(nodes), trackOf)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if len(insts) == 0 {
			continue
		}
		v := videos[videoKey(row.image)]
		p.Frames = append(p.Frames, &pose.LabeledFrame{Video: v, FrameIdx: fi, Instances: insts})
		if fi+1 > v.Frames {
			v.Frames = fi + 1
		}
	}
	return p, nil
}

// configDoc is the subset of a DLC config.yaml this importer uses.
// VideoSets stays a raw node because its entry order defines the project's
// video order, which a Go map would not preserve.
type configDoc struct {
	Task           string     `yaml:"Task"`
	Scorer         string     `yaml:"scorer"`
	VideoSets      yaml.Node  `yaml:"video_sets"`
	Bodyparts      []string   `yaml:"bodyparts"`
	Individuals    []string   `yaml:"individuals"`
	MultiBodyparts []string   `yaml:"multianimalbodyparts"`
	Skeleton       [][]string `yaml:"skeleton"`
}

type videoSet struct {
	path string
	crop string
}

func videoSetEntries(node yaml.Node) ([]videoSet, error) {
	if node.Kind == 0 || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("video_sets is not a mapping")
	}
	var sets []videoSet
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		val := node.Content[i+1]
		vs := videoSet{path: key.Value}
		if val.Kind == yaml.MappingNode {
			var body struct {
				Crop string `yaml:"crop"`
			}
			if err := val.Decode(&body); err == nil {
				vs.crop = body.Crop
			}
		}
		sets = append(sets, vs)
	}
	return sets, nil
}

// cropSize parses a "x0, x1, y0, y1" crop into width and height.
func cropSize(crop string) (w, h int, ok bool) {
	parts := strings.Split(crop, ",")
	if len(parts) != 4 {
		return 0, 0, false
	}
	vals := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0, false
		}
		vals[i] = n
	}
	return vals[1] - vals[0], vals[3] - vals[2], true
}

func readConfig(path string, opts format.Options) (*pose.Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg configDoc
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	nodes := cfg.Bodyparts
	if len(cfg.Individuals) > 0 && len(cfg.MultiBodyparts) > 0 {
		nodes = cfg.MultiBodyparts
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s: config has no bodyparts", path)
	}
	nodeIdx := indexOf(nodes)

	p := pose.NewProject()
	p.Provenance["format"] = "dlc"
	p.Provenance["source"] = path
	if cfg.Scorer != "" {
		p.Provenance["scorer"] = cfg.Scorer
	}
	if cfg.Task != "" {
		p.Provenance["task"] = cfg.Task
	}

	p.Skeleton = &pose.Skeleton{Name: "dlc", Nodes: nodes}
	for _, pair := range cfg.Skeleton {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%s: skeleton entry %v is not a pair", path, pair)
		}
		src, ok := nodeIdx[pair[0]]
		if !ok {
			return nil, fmt.Errorf("%s: skeleton references unknown bodypart %q", path, pair[0])
		}
		dst, ok := nodeIdx[pair[1]]
		if !ok {
			return nil, fmt.Errorf("%s: skeleton references unknown bodypart %q", path, pair[1])
		}
		p.Skeleton.Edges = append(p.Skeleton.Edges, [2]int{src, dst})
	}

	tracks := map[string]*pose.Track{}
	for _, ind := range cfg.Individuals {
		tr := &pose.Track{Name: ind}
		tracks[ind] = tr
		p.Tracks = append(p.Tracks, tr)
	}
	trackOf := func(name string) (*pose.Track, error) {
		tr, ok := tracks[name]
		if !ok {
			return nil, fmt.Errorf("individual %q not in config", name)
		}
		return tr, nil
	}

	sets, err := videoSetEntries(cfg.VideoSets)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%s: config has no video_sets", path)
	}

	cfgDir := filepath.Dir(path)
	for _, vs := range sets {
		name := vs.path
		if opts.Resolver != nil {
			if resolved, err := opts.Resolver.Resolve(vs.path); err == nil {
				name = resolved
			}
		}
		v := &pose.Video{Filename: name}
		if w, h, ok := cropSize(vs.crop); ok {
			v.Width, v.Height = w, h
		}
		p.Videos = append(p.Videos, v)

		csvPath, ok := findCollectedData(cfgDir, stem(vs.path))
		if !ok {
			continue
		}
		t, err := parseCSV(csvPath)
		if err != nil {
			return nil, err
		}
		for _, row := range t.rows {
			fi, err := frameIndex(row.image)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", csvPath, err)
			}
			insts, err := rowInstances(t, row, nodeIdx, len(nodes), trackOf)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", csvPath, err)
			}
			if len(insts) == 0 {
				continue
			}
			p.Frames = append(p.Frames, &pose.LabeledFrame{Video: v, FrameIdx: fi, Instances: insts})
			if fi+1 > v.Frames {
				v.Frames = fi + 1
			}
		}
	}
	return p, nil
}

// findCollectedData locates the CollectedData CSV for one video's
// labeled-data directory.
func findCollectedData(cfgDir, videoStem string) (string, bool) {
	dir := filepath.Join(cfgDir, "labeled-data", videoStem)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "CollectedData") && strings.HasSuffix(e.Name(), ".csv") {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}
