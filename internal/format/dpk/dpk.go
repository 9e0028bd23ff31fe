// Package dpk imports DeepPoseKit data files: one HDF5 file holding
// keypoint annotations and usually the image patches they were made on.
// Unlike MATLAB sources these files are written row-major, so dataset dims
// are used as stored.
package dpk

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/backmassage/poseconv/internal/format"
	"github.com/backmassage/poseconv/internal/h5"
	"github.com/backmassage/poseconv/internal/pose"
)

const (
	dsAnnotations = "/annotations" // float [samples, nodes, 2]
	dsAnnotated   = "/annotated"   // uint8 [samples, nodes], 1 = labeled
	dsSkeleton    = "/skeleton"    // int [nodes, 2]: parent index (-1 root), swap index
	dsNodeNames   = "/node_names"  // string [nodes]
	dsImages      = "/images"      // uint8 [samples, height, width, channels]
)

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (*Adapter) Name() string { return "dpk" }

// Match wants .h5 with the HDF5 signature. Native containers share the
// extension but never reach this probe, since the native reader runs first.
func (*Adapter) Match(path string) bool {
	return strings.HasSuffix(path, ".h5") && h5.Sniff(path)
}

func (*Adapter) Read(ctx context.Context, path string, opts format.Options) (*pose.Project, error) {
	objs, err := h5.List(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, ok := h5.FindDataset(objs, dsAnnotations); !ok {
		return nil, fmt.Errorf("%s: no %s dataset", path, dsAnnotations)
	}

	vals, dims, err := h5.ReadFloats(ctx, path, dsAnnotations)
	if err != nil {
		return nil, err
	}
	if len(dims) != 3 || dims[2] != 2 {
		return nil, fmt.Errorf("%s: annotations dims %v, want [samples nodes 2]", path, dims)
	}
	samples, nodes := dims[0], dims[1]
	at := func(s, n, c int) float64 {
		return vals[(s*nodes+n)*2+c]
	}

	annotated, err := readAnnotated(ctx, path, objs, samples, nodes)
	if err != nil {
		return nil, err
	}

	p := pose.NewProject()
	p.Provenance["format"] = "dpk"
	p.Provenance["source"] = path

	names, err := readNodeNames(ctx, path, objs, nodes)
	if err != nil {
		return nil, err
	}
	edges, err := readEdges(ctx, path, objs, nodes)
	if err != nil {
		return nil, err
	}
	p.Skeleton = &pose.Skeleton{Name: "dpk", Nodes: names, Edges: edges}

	// The data file is its own media: the patches live in /images. The
	// hint still wins for callers pointing at the original movie.
	video := &pose.Video{Filename: path, Frames: samples}
	if opts.VideoHint != "" {
		video.Filename = opts.VideoHint
	}
	if img, ok := h5.FindDataset(objs, dsImages); ok && len(img.Dims) == 4 {
		video.Height = img.Dims[1]
		video.Width = img.Dims[2]
		video.Channels = img.Dims[3]
	}
	p.Videos = []*pose.Video{video}

	for s := 0; s < samples; s++ {
		inst := &pose.Instance{}
		for n := 0; n < nodes; n++ {
			x, y := at(s, n, 0), at(s, n, 1)
			vis := !math.IsNaN(x) && !math.IsNaN(y)
			if annotated != nil {
				vis = vis && annotated[s*nodes+n] != 0
			}
			inst.Points = append(inst.Points, pose.Point{X: x, Y: y, Visible: vis})
		}
		p.Frames = append(p.Frames, &pose.LabeledFrame{
			Video:     video,
			FrameIdx:  s,
			Instances: []*pose.Instance{inst},
		})
	}
	return p, nil
}

func readAnnotated(ctx context.Context, path string, objs []h5.Object, samples, nodes int) ([]int64, error) {
	if _, ok := h5.FindDataset(objs, dsAnnotated); !ok {
		return nil, nil
	}
	vals, dims, err := h5.ReadInts(ctx, path, dsAnnotated)
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 || dims[0] != samples || dims[1] != nodes {
		return nil, fmt.Errorf("%s: annotated dims %v, want [%d %d]", path, dims, samples, nodes)
	}
	return vals, nil
}

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

// readEdges derives edges from the parent column of the skeleton table:
// every non-root node is connected to its parent.
func readEdges(ctx context.Context, path string, objs []h5.Object, nodes int) ([][2]int, error) {
	if _, ok := h5.FindDataset(objs, dsSkeleton); !ok {
		return nil, nil
	}
	vals, dims, err := h5.ReadInts(ctx, path, dsSkeleton)
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 || dims[0] != nodes || dims[1] != 2 {
		return nil, fmt.Errorf("%s: skeleton dims %v, want [%d 2]", path, dims, nodes)
	}
	var edges [][2]int
	for n := 0; n < nodes; n++ {
		parent := int(vals[n*2])
		if parent < 0 {
			continue
		}
		if parent >= nodes {
			return nil, fmt.Errorf("%s: node %d has parent %d of %d", path, n, parent, nodes)
		}
		edges = append(edges, [2]int{parent, n})
	}
	return edges, nil
}
