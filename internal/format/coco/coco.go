// Package coco imports COCO-style keypoint annotation files: one JSON
// document listing images, keypoint categories, and per-image annotations.
// Images are grouped into one video per containing directory, in order of
// first appearance.
package coco

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/backmassage/poseconv/internal/format"
	"github.com/backmassage/poseconv/internal/pose"
)

type document struct {
	Images      []imageInfo  `json:"images"`
	Annotations []annotation `json:"annotations"`
	Categories  []category   `json:"categories"`
}

type imageInfo struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Height   int    `json:"height"`
	Width    int    `json:"width"`
}

type annotation struct {
	ImageID    int       `json:"image_id"`
	CategoryID int       `json:"category_id"`
	Keypoints  []float64 `json:"keypoints"`
	Score      float64   `json:"score"`
	TrackID    *int      `json:"track_id"`
}

type category struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Keypoints []string `json:"keypoints"`
	Skeleton  [][]int  `json:"skeleton"` // 1-based node index pairs
}

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (*Adapter) Name() string { return "coco" }

// Match accepts any .json file. This adapter probes last, so only files the
// native reader already rejected arrive here.
func (*Adapter) Match(path string) bool {
	return strings.HasSuffix(path, ".json")
}

func (*Adapter) Read(ctx context.Context, path string, opts format.Options) (*pose.Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(doc.Categories) == 0 || len(doc.Categories[0].Keypoints) == 0 {
		return nil, fmt.Errorf("%s: no keypoint categories", path)
	}
	if len(doc.Images) == 0 {
		return nil, fmt.Errorf("%s: no images", path)
	}

	cat := doc.Categories[0]
	nodes := len(cat.Keypoints)

	p := pose.NewProject()
	p.Provenance["format"] = "coco"
	p.Provenance["source"] = path
	p.Skeleton = &pose.Skeleton{Name: cat.Name, Nodes: cat.Keypoints}
	for _, e := range cat.Skeleton {
		if len(e) != 2 || e[0] < 1 || e[0] > nodes || e[1] < 1 || e[1] > nodes {
			return nil, fmt.Errorf("%s: skeleton edge %v out of range for %d keypoints", path, e, nodes)
		}
		p.Skeleton.Edges = append(p.Skeleton.Edges, [2]int{e[0] - 1, e[1] - 1})
	}

	// One video per image directory, in order of first appearance. The frame
	// index of an image is its position within that directory's image list.
	inputDir := filepath.Dir(path)
	type placement struct {
		video *pose.Video
		idx   int
	}
	videosByDir := map[string]*pose.Video{}
	byImage := map[int]placement{}
	for _, img := range doc.Images {
		dir := filepath.Dir(filepath.FromSlash(img.FileName))
		v, ok := videosByDir[dir]
		if !ok {
			name := dir
			if !filepath.IsAbs(name) {
				name = filepath.Join(inputDir, name)
			}
			v = &pose.Video{Filename: name}
			videosByDir[dir] = v
			p.Videos = append(p.Videos, v)
		}
		if _, dup := byImage[img.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate image id %d", path, img.ID)
		}
		byImage[img.ID] = placement{video: v, idx: v.Frames}
		v.Frames++
		if v.Height == 0 {
			v.Height, v.Width = img.Height, img.Width
		}
	}
	if opts.VideoHint != "" && len(p.Videos) == 1 {
		p.Videos[0].Filename = opts.VideoHint
	}

	tracks := map[int]*pose.Track{}
	instances := map[int][]*pose.Instance{}
	for _, ann := range doc.Annotations {
		if _, ok := byImage[ann.ImageID]; !ok {
			return nil, fmt.Errorf("%s: annotation references unknown image %d", path, ann.ImageID)
		}
		if ann.CategoryID != cat.ID {
			return nil, fmt.Errorf("%s: annotation references category %d; only category %d is supported", path, ann.CategoryID, cat.ID)
		}
		if len(ann.Keypoints) != 3*nodes {
			return nil, fmt.Errorf("%s: annotation has %d keypoint values, want %d", path, len(ann.Keypoints), 3*nodes)
		}
		inst := &pose.Instance{Score: ann.Score}
		for n := 0; n < nodes; n++ {
			x, y, flag := ann.Keypoints[3*n], ann.Keypoints[3*n+1], ann.Keypoints[3*n+2]
			// Flag 0 means unlabeled, 1 labeled but occluded, 2 visible.
			pt := pose.Point{X: x, Y: y, Visible: flag == 2}
			if flag == 0 {
				pt = pose.Point{X: math.NaN(), Y: math.NaN()}
			}
			inst.Points = append(inst.Points, pt)
		}
		if ann.TrackID != nil {
			tr, ok := tracks[*ann.TrackID]
			if !ok {
				tr = &pose.Track{Name: fmt.Sprintf("track_%d", *ann.TrackID)}
				tracks[*ann.TrackID] = tr
				p.Tracks = append(p.Tracks, tr)
			}
			inst.Track = tr
		}
		instances[ann.ImageID] = append(instances[ann.ImageID], inst)
	}

	// Frames come out in image order; images without annotations produce no
	// labeled frame.
	for _, img := range doc.Images {
		insts := instances[img.ID]
		if len(insts) == 0 {
			continue
		}
		pl := byImage[img.ID]
		p.Frames = append(p.Frames, &pose.LabeledFrame{
			Video:     pl.video,
			FrameIdx:  pl.idx,
			Instances: insts,
		})
	}
	return p, nil
}
