// Package pose defines the in-memory model shared by every importer and
// writer: skeletons, tracked instances, labeled frames, and the videos they
// annotate. Importers produce a *Project; planners and writers consume one.
package pose

import (
	"fmt"
)

// Skeleton describes the body plan: ordered node names plus directed edges
// as index pairs into Nodes.
type Skeleton struct {
	Name  string
	Nodes []string
	Edges [][2]int
}

// EdgeNames renders each edge as "<source> -> <destination>".
func (s *Skeleton) EdgeNames() []string {
	names := make([]string, 0, len(s.Edges))
	for _, e := range s.Edges {
		names = append(names, s.Nodes[e[0]]+" -> "+s.Nodes[e[1]])
	}
	return names
}

// Track identifies one animal across frames.
type Track struct {
	Name string
}

// Video is a backing video referenced by labeled frames. Frames is 0 when
// the source format does not record a frame count.
type Video struct {
	Filename string
	Frames   int
	Height   int
	Width    int
	Channels int
}

// Point is one skeleton node location within an instance. Invisible points
// carry Visible=false; their coordinates are not meaningful.
type Point struct {
	X       float64
	Y       float64
	Score   float64
	Visible bool
}

// Instance is one animal detection in one frame: a point per skeleton node.
type Instance struct {
	Track         *Track // nil when untracked
	Points        []Point
	Score         float64
	TrackingScore float64
}

// LabeledFrame groups the instances annotated on one frame of one video.
type LabeledFrame struct {
	Video     *Video
	FrameIdx  int
	Instances []*Instance
}

// Project is a complete dataset: one skeleton, the videos it annotates, the
// known tracks, and all labeled frames. Provenance carries free-form
// metadata that survives conversion round trips.
type Project struct {
	Skeleton   *Skeleton
	Videos     []*Video
	Tracks     []*Track
	Frames     []*LabeledFrame
	Provenance map[string]string
}

// NewProject returns an empty project with a named, empty skeleton.
func NewProject() *Project {
	return &Project{
		Skeleton:   &Skeleton{Name: "skeleton"},
		Provenance: map[string]string{},
	}
}

// VideoIndex returns v's position in the full video list, or -1. This index
// is what default analysis filenames embed, so it is stable regardless of
// how an invocation filters videos.
func (p *Project) VideoIndex(v *Video) int {
	for i, pv := range p.Videos {
		if pv == v {
			return i
		}
	}
	return -1
}

// TrackIndex returns t's position in the track list, or -1.
func (p *Project) TrackIndex(t *Track) int {
	for i, pt := range p.Tracks {
		if pt == t {
			return i
		}
	}
	return -1
}

// FramesOf returns the labeled frames backed by v, in storage order.
func (p *Project) FramesOf(v *Video) []*LabeledFrame {
	var out []*LabeledFrame
	for _, lf := range p.Frames {
		if lf.Video == v {
			out = append(out, lf)
		}
	}
	return out
}

// LastFrameIndex returns the highest labeled frame index for v, or -1 when
// v has no labeled frames.
func (p *Project) LastFrameIndex(v *Video) int {
	last := -1
	for _, lf := range p.Frames {
		if lf.Video == v && lf.FrameIdx > last {
			last = lf.FrameIdx
		}
	}
	return last
}

// EnsureTracks guarantees the project has tracks whenever it has instances.
// Single-animal formats often carry no track annotations at all; analysis
// export needs an occupancy axis, so untracked instances are assigned
// positional pseudo-tracks (track_0, track_1, ...) by their order within
// each frame. Projects that already have tracks are left untouched.
func (p *Project) EnsureTracks() {
	if len(p.Tracks) > 0 {
		return
	}
	maxPerFrame := 0
	for _, lf := range p.Frames {
		if n := len(lf.Instances); n > maxPerFrame {
			maxPerFrame = n
		}
	}
	for i := 0; i < maxPerFrame; i++ {
		p.Tracks = append(p.Tracks, &Track{Name: fmt.Sprintf("track_%d", i)})
	}
	for _, lf := range p.Frames {
		for i, inst := range lf.Instances {
			if inst.Track == nil {
				inst.Track = p.Tracks[i]
			}
		}
	}
}
