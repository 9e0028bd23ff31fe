package slp

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/backmassage/poseconv/internal/format"
	"github.com/backmassage/poseconv/internal/pose"
)

// formatVersion is written into every document this package produces.
// Readers accept versions 1 through formatVersion.
const formatVersion = 1

// jsonFloat marshals NaN as null so documents stay valid JSON; null decodes
// back to NaN.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

func (f *jsonFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = jsonFloat(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

// document is the JSON form of a project. The container variant stores it
// without frames; the frame, instance, and point tables live in separate
// numeric datasets there.
type document struct {
	Version    int               `json:"version"`
	Skeleton   skeletonDoc       `json:"skeleton"`
	Videos     []videoDoc        `json:"videos"`
	Tracks     []string          `json:"tracks"`
	Provenance map[string]string `json:"provenance,omitempty"`
	Frames     []frameDoc        `json:"frames,omitempty"`
}

type skeletonDoc struct {
	Name  string   `json:"name"`
	Nodes []string `json:"nodes"`
	Edges [][2]int `json:"edges"`
}

type videoDoc struct {
	Filename string `json:"filename"`
	Frames   int    `json:"frames,omitempty"`
	Height   int    `json:"height,omitempty"`
	Width    int    `json:"width,omitempty"`
	Channels int    `json:"channels,omitempty"`
}

type frameDoc struct {
	Video     int           `json:"video"`
	FrameIdx  int           `json:"frame_idx"`
	Instances []instanceDoc `json:"instances"`
}

type instanceDoc struct {
	Track         int        `json:"track"` // index into Tracks, -1 when untracked
	Score         jsonFloat  `json:"score"`
	TrackingScore jsonFloat  `json:"tracking_score"`
	Points        []pointDoc `json:"points"`
}

type pointDoc struct {
	X       jsonFloat `json:"x"`
	Y       jsonFloat `json:"y"`
	Visible bool      `json:"visible"`
	Score   jsonFloat `json:"score"`
}

// docFromProject flattens a project into its wire form. Frames are included
// only for the JSON variants; the container stores them as numeric tables.
func docFromProject(p *pose.Project, includeFrames bool) (*document, error) {
	doc := &document{
		Version: formatVersion,
		Skeleton: skeletonDoc{
			Name:  p.Skeleton.Name,
			Nodes: p.Skeleton.Nodes,
			Edges: p.Skeleton.Edges,
		},
		Provenance: p.Provenance,
	}
	for _, v := range p.Videos {
		doc.Videos = append(doc.Videos, videoDoc{
			Filename: v.Filename,
			Frames:   v.Frames,
			Height:   v.Height,
			Width:    v.Width,
			Channels: v.Channels,
		})
	}
	for _, t := range p.Tracks {
		doc.Tracks = append(doc.Tracks, t.Name)
	}
	if !includeFrames {
		return doc, nil
	}

	for i, lf := range p.Frames {
		vi := p.VideoIndex(lf.Video)
		if vi < 0 {
			return nil, fmt.Errorf("frame %d references a video not in the project", i)
		}
		fd := frameDoc{Video: vi, FrameIdx: lf.FrameIdx}
		for _, inst := range lf.Instances {
			id := instanceDoc{
				Track:         -1,
				Score:         jsonFloat(inst.Score),
				TrackingScore: jsonFloat(inst.TrackingScore),
			}
			if inst.Track != nil {
				ti := p.TrackIndex(inst.Track)
				if ti < 0 {
					return nil, fmt.Errorf("frame %d references a track not in the project", i)
				}
				id.Track = ti
			}
			for _, pt := range inst.Points {
				id.Points = append(id.Points, pointDoc{
					X:       jsonFloat(pt.X),
					Y:       jsonFloat(pt.Y),
					Visible: pt.Visible,
					Score:   jsonFloat(pt.Score),
				})
			}
			fd.Instances = append(fd.Instances, id)
		}
		doc.Frames = append(doc.Frames, fd)
	}
	return doc, nil
}

// projectFromDoc rebuilds a project from its wire form, validating every
// cross reference. Video filenames are canonicalized through the resolver
// when the media is present on disk; a missing video keeps its recorded
// path, since conversion does not need the pixels.
func projectFromDoc(doc *document, opts format.Options) (*pose.Project, error) {
	p := pose.NewProject()
	p.Skeleton = &pose.Skeleton{
		Name:  doc.Skeleton.Name,
		Nodes: doc.Skeleton.Nodes,
		Edges: doc.Skeleton.Edges,
	}
	if p.Skeleton.Name == "" {
		p.Skeleton.Name = "skeleton"
	}
	nodes := len(p.Skeleton.Nodes)
	for _, e := range p.Skeleton.Edges {
		if e[0] < 0 || e[0] >= nodes || e[1] < 0 || e[1] >= nodes {
			return nil, fmt.Errorf("skeleton edge %v out of range for %d nodes", e, nodes)
		}
	}
	if doc.Provenance != nil {
		p.Provenance = doc.Provenance
	}

	for _, vd := range doc.Videos {
		v := &pose.Video{
			Filename: vd.Filename,
			Frames:   vd.Frames,
			Height:   vd.Height,
			Width:    vd.Width,
			Channels: vd.Channels,
		}
		if opts.Resolver != nil {
			if resolved, err := opts.Resolver.Resolve(vd.Filename); err == nil {
				v.Filename = resolved
			}
		}
		p.Videos = append(p.Videos, v)
	}
	for _, name := range doc.Tracks {
		p.Tracks = append(p.Tracks, &pose.Track{Name: name})
	}

	for i, fd := range doc.Frames {
		if fd.Video < 0 || fd.Video >= len(p.Videos) {
			return nil, fmt.Errorf("frame %d references video %d of %d", i, fd.Video, len(p.Videos))
		}
		if fd.FrameIdx < 0 {
			return nil, fmt.Errorf("frame %d has negative frame index %d", i, fd.FrameIdx)
		}
		lf := &pose.LabeledFrame{Video: p.Videos[fd.Video], FrameIdx: fd.FrameIdx}
		for _, id := range fd.Instances {
			if id.Track < -1 || id.Track >= len(p.Tracks) {
				return nil, fmt.Errorf("frame %d references track %d of %d", i, id.Track, len(p.Tracks))
			}
			if len(id.Points) != nodes {
				return nil, fmt.Errorf("frame %d instance has %d points, skeleton has %d nodes", i, len(id.Points), nodes)
			}
			inst := &pose.Instance{
				Score:         float64(id.Score),
				TrackingScore: float64(id.TrackingScore),
			}
			if id.Track >= 0 {
				inst.Track = p.Tracks[id.Track]
			}
			for _, pd := range id.Points {
				inst.Points = append(inst.Points, pose.Point{
					X:       float64(pd.X),
					Y:       float64(pd.Y),
					Visible: pd.Visible,
					Score:   float64(pd.Score),
				})
			}
			lf.Instances = append(lf.Instances, inst)
		}
		p.Frames = append(p.Frames, lf)
	}
	return p, nil
}
