// Package analysis exports one video's tracking results to the flattened
// HDF5 layout downstream analysis scripts consume: an occupancy matrix, a
// coordinate tensor, and per-instance score matrices, plus naming and
// provenance datasets.
//
// Every numeric array is stored transposed, so the file reads column-major:
// a consumer in a row-major environment transposes each dataset to recover
// the documented logical shape.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/backmassage/poseconv/internal/h5"
	"github.com/backmassage/poseconv/internal/pose"
)

// ErrNoData reports a video with nothing to export: no labeled frames, or
// none of its instances carry a track.
var ErrNoData = errors.New("no exportable tracking data")

// Dataset names in the analysis file.
const (
	dsOccupancy      = "/track_occupancy" // logical [tracks, frames] uint8
	dsTracks         = "/tracks"          // logical [frames, nodes, 2, tracks]
	dsTrackNames     = "/track_names"
	dsNodeNames      = "/node_names"
	dsEdgeNames      = "/edge_names"
	dsEdgeInds       = "/edge_inds"       // logical [edges, 2]
	dsPointScores    = "/point_scores"    // logical [frames, nodes, tracks]
	dsInstanceScores = "/instance_scores" // logical [frames, tracks]
	dsTrackingScores = "/tracking_scores" // logical [frames, tracks]
	dsLabelsPath     = "/labels_path"
	dsVideoPath      = "/video_path"
	dsVideoInd       = "/video_ind"
	dsProvenance     = "/provenance"
)

// Write exports video's tracking data from p to an analysis file at outPath.
// With allFrames the frame axis spans 0 through the last labeled frame;
// otherwise it starts at the first labeled one. Tracks that never occupy a
// frame of this video are dropped from the export, and instances without a
// track are not representable and are skipped.
func Write(ctx context.Context, p *pose.Project, outPath, sourcePath string, allFrames bool, video *pose.Video) error {
	frames := p.FramesOf(video)
	if len(frames) == 0 {
		return fmt.Errorf("%s: %w (no labeled frames)", video.Filename, ErrNoData)
	}
	nNodes := len(p.Skeleton.Nodes)
	if nNodes == 0 {
		return fmt.Errorf("%s: %w (skeleton has no nodes)", video.Filename, ErrNoData)
	}

	first, last := frames[0].FrameIdx, frames[0].FrameIdx
	for _, lf := range frames {
		if lf.FrameIdx < first {
			first = lf.FrameIdx
		}
		if lf.FrameIdx > last {
			last = lf.FrameIdx
		}
	}
	if first < 0 {
		return fmt.Errorf("%s: negative frame index %d", video.Filename, first)
	}
	if allFrames {
		first = 0
	}
	nFrames := last - first + 1

	// Keep project track order, restricted to tracks seen on this video.
	occupied := make(map[*pose.Track]bool)
	for _, lf := range frames {
		for _, inst := range lf.Instances {
			if inst.Track != nil {
				occupied[inst.Track] = true
			}
		}
	}
	col := make(map[*pose.Track]int)
	var kept []*pose.Track
	for _, t := range p.Tracks {
		if occupied[t] {
			col[t] = len(kept)
			kept = append(kept, t)
		}
	}
	nTracks := len(kept)
	if nTracks == 0 {
		return fmt.Errorf("%s: %w (no tracked instances)", video.Filename, ErrNoData)
	}

	occ := make([]byte, nTracks*nFrames)
	instScores := nanDense(nFrames, nTracks)
	trackScores := nanDense(nFrames, nTracks)
	coords := nanSlice(nFrames * nNodes * 2 * nTracks)
	pointScores := nanSlice(nFrames * nNodes * nTracks)

	coordAt := func(f, n, c, t int) int { return ((f*nNodes+n)*2+c)*nTracks + t }
	scoreAt := func(f, n, t int) int { return (f*nNodes+n)*nTracks + t }

	for _, lf := range frames {
		f := lf.FrameIdx - first
		for _, inst := range lf.Instances {
			t, ok := col[inst.Track]
			if !ok {
				continue
			}
			if len(inst.Points) != nNodes {
				return fmt.Errorf("%s: instance has %d points, skeleton has %d nodes", video.Filename, len(inst.Points), nNodes)
			}
			occ[t*nFrames+f] = 1
			instScores.Set(f, t, inst.Score)
			trackScores.Set(f, t, inst.TrackingScore)
			for n, pt := range inst.Points {
				if !pt.Visible {
					continue
				}
				coords[coordAt(f, n, 0, t)] = pt.X
				coords[coordAt(f, n, 1, t)] = pt.Y
				pointScores[scoreAt(f, n, t)] = pt.Score
			}
		}
	}

	trackNames := make([]string, nTracks)
	for i, t := range kept {
		trackNames[i] = t.Name
	}
	prov, err := json.Marshal(p.Provenance)
	if err != nil {
		return err
	}

	occDims := []int{nTracks, nFrames}
	coordDims := []int{nFrames, nNodes, 2, nTracks}
	pscoreDims := []int{nFrames, nNodes, nTracks}
	scoreDims := []int{nFrames, nTracks}

	specs := []h5.DatasetSpec{
		h5.ByteDataset(dsOccupancy, reverseDims(occDims), transposeBytes(occ, occDims)),
		h5.FloatDataset(dsTracks, reverseDims(coordDims), transposeFloats(coords, coordDims)),
		h5.FloatDataset(dsPointScores, reverseDims(pscoreDims), transposeFloats(pointScores, pscoreDims)),
		h5.FloatDataset(dsInstanceScores, reverseDims(scoreDims), transposeFloats(denseFlat(instScores), scoreDims)),
		h5.FloatDataset(dsTrackingScores, reverseDims(scoreDims), transposeFloats(denseFlat(trackScores), scoreDims)),
		h5.StringDataset(dsTrackNames, trackNames),
		h5.StringDataset(dsNodeNames, p.Skeleton.Nodes),
		h5.ScalarString(dsLabelsPath, sourcePath),
		h5.ScalarString(dsVideoPath, video.Filename),
		h5.IntDataset(dsVideoInd, []int{1}, []int64{int64(p.VideoIndex(video))}),
		h5.ScalarString(dsProvenance, string(prov)),
	}
	// h5import cannot create zero-sized datasets, so an edgeless skeleton
	// simply omits the edge datasets.
	if nEdges := len(p.Skeleton.Edges); nEdges > 0 {
		edgeInds := make([]int64, 0, nEdges*2)
		for _, e := range p.Skeleton.Edges {
			edgeInds = append(edgeInds, int64(e[0]), int64(e[1]))
		}
		edgeDims := []int{nEdges, 2}
		specs = append(specs,
			h5.StringDataset(dsEdgeNames, p.Skeleton.EdgeNames()),
			h5.IntDataset(dsEdgeInds, reverseDims(edgeDims), transposeInts(edgeInds, edgeDims)),
		)
	}

	return h5.Import(ctx, outPath, specs)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// nanDense builds a dense matrix prefilled with NaN, the "no instance here"
// marker in score matrices.
func nanDense(rows, cols int) *mat.Dense {
	return mat.NewDense(rows, cols, nanSlice(rows*cols))
}

func denseFlat(m *mat.Dense) []float64 {
	return m.RawMatrix().Data
}
