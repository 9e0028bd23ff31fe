// Package leap imports labeled pose data from MATLAB MAT files as written
// by the LEAP toolchain. Only the v7.3 encoding is supported, where the MAT
// file is an HDF5 container; the older binary encodings are not recognized
// and fail the format probe.
package leap

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/backmassage/poseconv/internal/format"
	"github.com/backmassage/poseconv/internal/h5"
	"github.com/backmassage/poseconv/internal/pose"
)

// MATLAB arrays are column-major, so every dataset's physical dims are the
// logical dims reversed. positions is logically [nodes, 2, frames]; edges
// and framesIdx carry 1-based MATLAB indices.
const (
	dsPositions = "/positions"
	dsBoxPath   = "/boxPath"
	dsNodeNames = "/nodeNames"
	dsEdges     = "/edges"
	dsFramesIdx = "/framesIdx"
)

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (*Adapter) Name() string { return "leap" }

// Match wants the .mat extension and the HDF5 signature. A level-5 MAT file
// has neither an HDF5 signature nor any other importer, so it surfaces as an
// unsupported format rather than a parse error.
func (*Adapter) Match(path string) bool {
	return strings.HasSuffix(path, ".mat") && h5.Sniff(path)
}

func (*Adapter) Read(ctx context.Context, path string, opts format.Options) (*pose.Project, error) {
	objs, err := h5.List(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, ok := h5.FindDataset(objs, dsPositions); !ok {
		return nil, fmt.Errorf("%s: no %s dataset", path, dsPositions)
	}

	vals, dims, err := h5.ReadFloats(ctx, path, dsPositions)
	if err != nil {
		return nil, err
	}
	if len(dims) != 3 || dims[1] != 2 {
		return nil, fmt.Errorf("%s: positions dims %v, want [frames 2 nodes] on disk", path, dims)
	}
	frames, nodes := dims[0], dims[2]
	// Physical [f, c, n] holds logical positions(n, c, f).
	at := func(f, c, n int) float64 {
		return vals[(f*2+c)*nodes+n]
	}

	p := pose.NewProject()
	p.Provenance["format"] = "leap"
	p.Provenance["source"] = path

	nodeNames, err := readNodeNames(ctx, path, objs, nodes)
	if err != nil {
		return nil, err
	}
	edges, err := readEdges(ctx, path, objs, nodes)
	if err != nil {
		return nil, err
	}
	p.Skeleton = &pose.Skeleton{Name: "leap", Nodes: nodeNames, Edges: edges}

	frameIdx, err := readFrameIndices(ctx, path, objs, frames)
	if err != nil {
		return nil, err
	}
	maxIdx := -1
	for _, fi := range frameIdx {
		if fi > maxIdx {
			maxIdx = fi
		}
	}
	video := &pose.Video{Filename: videoFilename(ctx, path, objs, opts), Frames: maxIdx + 1}
	p.Videos = []*pose.Video{video}

	for f := 0; f < frames; f++ {
		inst := &pose.Instance{}
		for n := 0; n < nodes; n++ {
			x, y := at(f, 0, n), at(f, 1, n)
			inst.Points = append(inst.Points, pose.Point{
				X: x, Y: y,
				Visible: !math.IsNaN(x) && !math.IsNaN(y),
			})
		}
		p.Frames = append(p.Frames, &pose.LabeledFrame{
			Video:     video,
			FrameIdx:  frameIdx[f],
			Instances: []*pose.Instance{inst},
		})
	}
	return p, nil
}

// readNodeNames uses the stored names when present and synthesizes node_N
// otherwise. MATLAB cell arrays do not land as plain string datasets, so
// most real files take the synthesized path.
func readNodeNames(ctx context.Context, path string, objs []h5.Object, nodes int) ([]string, error) {
	if _, ok := h5.FindDataset(objs, dsNodeNames); ok {
		names, err := h5.ReadStrings(ctx, path, dsNodeNames)
		if err != nil {
			return nil, err
		}
		if len(names) != nodes {
			return nil, fmt.Errorf("%s: %d node names for %d nodes", path, len(names), nodes)
		}
		return names, nil
	}
	names := make([]string, nodes)
	for i := range names {
		names[i] = fmt.Sprintf("node_%d", i)
	}
	return names, nil
}

// readEdges converts the logical [E, 2] edge list (physical [2, E]) from
// 1-based MATLAB indices to 0-based.
func readEdges(ctx context.Context, path string, objs []h5.Object, nodes int) ([][2]int, error) {
	if _, ok := h5.FindDataset(objs, dsEdges); !ok {
		return nil, nil
	}
	vals, dims, err := h5.ReadFloats(ctx, path, dsEdges)
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 || dims[0] != 2 {
		return nil, fmt.Errorf("%s: edges dims %v, want [2 E] on disk", path, dims)
	}
	count := dims[1]
	edges := make([][2]int, 0, count)
	for e := 0; e < count; e++ {
		src := int(vals[e]) - 1
		dst := int(vals[count+e]) - 1
		if src < 0 || src >= nodes || dst < 0 || dst >= nodes {
			return nil, fmt.Errorf("%s: edge %d (%d -> %d) out of range for %d nodes", path, e, src+1, dst+1, nodes)
		}
		edges = append(edges, [2]int{src, dst})
	}
	return edges, nil
}

// readFrameIndices maps positions rows to original movie frames via the
// 1-based framesIdx vector, defaulting to the row number.
func readFrameIndices(ctx context.Context, path string, objs []h5.Object, frames int) ([]int, error) {
	idx := make([]int, frames)
	for i := range idx {
		idx[i] = i
	}
	if _, ok := h5.FindDataset(objs, dsFramesIdx); !ok {
		return idx, nil
	}
	vals, _, err := h5.ReadFloats(ctx, path, dsFramesIdx)
	if err != nil {
		return nil, err
	}
	if len(vals) != frames {
		return nil, fmt.Errorf("%s: %d frame indices for %d frames", path, len(vals), frames)
	}
	for i, v := range vals {
		idx[i] = int(v) - 1
		if idx[i] < 0 {
			return nil, fmt.Errorf("%s: frame index %v is not 1-based", path, v)
		}
	}
	return idx, nil
}

// videoFilename prefers the recorded box path, then the user's video hint,
// then the MAT file itself. The box path is resolved against the search
// dirs when possible since it usually points at the original lab machine.
func videoFilename(ctx context.Context, path string, objs []h5.Object, opts format.Options) string {
	if _, ok := h5.FindDataset(objs, dsBoxPath); ok {
		if vals, err := h5.ReadStrings(ctx, path, dsBoxPath); err == nil && len(vals) == 1 && vals[0] != "" {
			box := vals[0]
			if opts.Resolver != nil {
				if resolved, err := opts.Resolver.Resolve(box); err == nil {
					return resolved
				}
			}
			return box
		}
	}
	if opts.VideoHint != "" {
		return opts.VideoHint
	}
	return path
}
