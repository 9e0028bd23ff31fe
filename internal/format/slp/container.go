package slp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/backmassage/poseconv/internal/format"
	"github.com/backmassage/poseconv/internal/h5"
	"github.com/backmassage/poseconv/internal/pose"
)

// Dataset paths inside the native container. The project document holds
// everything except frames; those live in flat numeric tables so the bulk
// data never goes through JSON.
const (
	dsProject   = "/project"         // uint8, JSON document without frames
	dsFrames    = "/frames"          // int64 [K,2]: video index, frame index
	dsInstances = "/instances"       // int64 [M,4]: frame row, track index, point start, point count
	dsScores    = "/instance_scores" // float64 [M,2]: score, tracking score
	dsPoints    = "/points"          // float64 [P,4]: x, y, visible, score
	dsVersion   = "/format_version"  // int64 [1]
)

func readContainer(ctx context.Context, path string, opts format.Options) (*pose.Project, error) {
	if !h5.Sniff(path) {
		return nil, fmt.Errorf("%s: no HDF5 signature: %w", path, format.ErrUnrecognized)
	}
	objs, err := h5.List(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, ok := h5.FindDataset(objs, dsProject); !ok {
		return nil, fmt.Errorf("%s: no %s dataset: %w", path, dsProject, format.ErrUnrecognized)
	}

	raw, err := h5.ReadBytes(ctx, path, dsProject)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: corrupt project document: %w", path, err)
	}
	if doc.Version < 1 {
		return nil, fmt.Errorf("%s: project document has no version", path)
	}
	if doc.Version > formatVersion {
		return nil, fmt.Errorf("%s: container version %d is newer than this tool supports (max %d)",
			path, doc.Version, formatVersion)
	}
	p, err := projectFromDoc(&doc, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Empty projects omit the tables entirely; absence means zero rows.
	frameRows, err := readTableInts(ctx, path, objs, dsFrames, 2)
	if err != nil {
		return nil, err
	}
	instRows, err := readTableInts(ctx, path, objs, dsInstances, 4)
	if err != nil {
		return nil, err
	}
	scoreRows, err := readTableFloats(ctx, path, objs, dsScores, 2)
	if err != nil {
		return nil, err
	}
	pointRows, err := readTableFloats(ctx, path, objs, dsPoints, 4)
	if err != nil {
		return nil, err
	}

	nFrames := len(frameRows) / 2
	frames := make([]*pose.LabeledFrame, 0, nFrames)
	for i := 0; i < nFrames; i++ {
		vi := int(frameRows[2*i])
		if vi < 0 || vi >= len(p.Videos) {
			return nil, fmt.Errorf("%s: frame row %d references video %d of %d", path, i, vi, len(p.Videos))
		}
		fi := int(frameRows[2*i+1])
		if fi < 0 {
			return nil, fmt.Errorf("%s: frame row %d has negative frame index %d", path, i, fi)
		}
		frames = append(frames, &pose.LabeledFrame{
			Video:    p.Videos[vi],
			FrameIdx: fi,
		})
	}

	nInst := len(instRows) / 4
	if len(scoreRows) != nInst*2 {
		return nil, fmt.Errorf("%s: %d instances but %d score rows", path, nInst, len(scoreRows)/2)
	}
	nPoints := len(pointRows) / 4
	for m := 0; m < nInst; m++ {
		fr := int(instRows[4*m])
		ti := int(instRows[4*m+1])
		start := int(instRows[4*m+2])
		count := int(instRows[4*m+3])
		if fr < 0 || fr >= nFrames {
			return nil, fmt.Errorf("%s: instance %d references frame row %d of %d", path, m, fr, nFrames)
		}
		if ti < -1 || ti >= len(p.Tracks) {
			return nil, fmt.Errorf("%s: instance %d references track %d of %d", path, m, ti, len(p.Tracks))
		}
		if start < 0 || count < 0 || start+count > nPoints {
			return nil, fmt.Errorf("%s: instance %d points [%d:%d] outside table of %d", path, m, start, start+count, nPoints)
		}
		inst := &pose.Instance{
			Score:         scoreRows[2*m],
			TrackingScore: scoreRows[2*m+1],
		}
		if ti >= 0 {
			inst.Track = p.Tracks[ti]
		}
		for j := 0; j < count; j++ {
			row := pointRows[(start+j)*4 : (start+j)*4+4]
			inst.Points = append(inst.Points, pose.Point{
				X:       row[0],
				Y:       row[1],
				Visible: row[2] != 0,
				Score:   row[3],
			})
		}
		frames[fr].Instances = append(frames[fr].Instances, inst)
	}

	p.Frames = frames
	return p, nil
}

func readTableInts(ctx context.Context, path string, objs []h5.Object, dataset string, cols int) ([]int64, error) {
	if _, ok := h5.FindDataset(objs, dataset); !ok {
		return nil, nil
	}
	vals, dims, err := h5.ReadInts(ctx, path, dataset)
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 || dims[1] != cols {
		return nil, fmt.Errorf("%s %s: dims %v, want [N %d]", path, dataset, dims, cols)
	}
	return vals, nil
}

func readTableFloats(ctx context.Context, path string, objs []h5.Object, dataset string, cols int) ([]float64, error) {
	if _, ok := h5.FindDataset(objs, dataset); !ok {
		return nil, nil
	}
	vals, dims, err := h5.ReadFloats(ctx, path, dataset)
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 || dims[1] != cols {
		return nil, fmt.Errorf("%s %s: dims %v, want [N %d]", path, dataset, dims, cols)
	}
	return vals, nil
}

func writeContainer(ctx context.Context, p *pose.Project, path string) error {
	doc, err := docFromProject(p, false)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	frames := make([]int64, 0, len(p.Frames)*2)
	var instances []int64
	var scores []float64
	var points []float64
	for i, lf := range p.Frames {
		vi := p.VideoIndex(lf.Video)
		if vi < 0 {
			return fmt.Errorf("frame %d references a video not in the project", i)
		}
		frames = append(frames, int64(vi), int64(lf.FrameIdx))
		for _, inst := range lf.Instances {
			ti := int64(-1)
			if inst.Track != nil {
				idx := p.TrackIndex(inst.Track)
				if idx < 0 {
					return fmt.Errorf("frame %d references a track not in the project", i)
				}
				ti = int64(idx)
			}
			start := len(points) / 4
			for _, pt := range inst.Points {
				vis := 0.0
				if pt.Visible {
					vis = 1
				}
				points = append(points, pt.X, pt.Y, vis, pt.Score)
			}
			instances = append(instances, int64(i), ti, int64(start), int64(len(inst.Points)))
			scores = append(scores, inst.Score, inst.TrackingScore)
		}
	}

	// h5import cannot create zero-sized datasets, so empty tables are
	// omitted and the reader treats absence as empty.
	specs := []h5.DatasetSpec{
		h5.ByteDataset(dsProject, []int{len(raw)}, raw),
		h5.IntDataset(dsVersion, []int{1}, []int64{formatVersion}),
	}
	if len(frames) > 0 {
		specs = append(specs, h5.IntDataset(dsFrames, []int{len(frames) / 2, 2}, frames))
	}
	if len(instances) > 0 {
		specs = append(specs,
			h5.IntDataset(dsInstances, []int{len(instances) / 4, 4}, instances),
			h5.FloatDataset(dsScores, []int{len(scores) / 2, 2}, scores))
	}
	if len(points) > 0 {
		specs = append(specs, h5.FloatDataset(dsPoints, []int{len(points) / 4, 4}, points))
	}
	return h5.Import(ctx, path, specs)
}
