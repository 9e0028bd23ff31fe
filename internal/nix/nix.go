// Package nix exports one video's tracking analysis to a NIX-flavored HDF5
// file: flat per-instance data arrays under /data plus identity metadata.
// Entities carry uuid identifiers the way NIX files do, though the layout
// here is reduced to plain datasets.
package nix

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/backmassage/poseconv/internal/h5"
	"github.com/backmassage/poseconv/internal/pose"
)

// ValueError is a precondition failure reported by the writer, carrying a
// message meant for the user. The pipeline downgrades it to a warning so one
// unexportable video does not abort the remaining targets.
type ValueError struct {
	Msg string
}

func (e *ValueError) Error() string { return e.Msg }

// Dataset names in the output file. Instance-level arrays under /data share
// one row per instance, in frame order.
const (
	dsFormat        = "/format"
	dsVersion       = "/version"
	dsBlockID       = "/metadata/block_id"
	dsSource        = "/metadata/source"
	dsVideo         = "/metadata/video"
	dsFrame         = "/data/frame"          // [instances] frame index
	dsPosition      = "/data/position"       // [instances, nodes, 2]
	dsTrack         = "/data/track"          // [instances] index into track_names, -1 untracked
	dsInstanceScore = "/data/instance_score" // [instances]
	dsTrackingScore = "/data/tracking_score" // [instances]
	dsPointScore    = "/data/point_score"    // [instances, nodes]
	dsTrackNames    = "/data/track_names"
	dsNodeNames     = "/data/node_names"
)

// Write exports video's instances from p to a NIX file at outPath. A nil
// video selects the project's first. Precondition failures (no videos, no
// decodable media, nothing labeled) are reported as *ValueError.
func Write(ctx context.Context, outPath string, p *pose.Project, sourcePath string, video *pose.Video) error {
	if video == nil {
		if len(p.Videos) == 0 {
			return &ValueError{Msg: "project has no videos; NIX export needs one"}
		}
		video = p.Videos[0]
	}
	if video.Frames <= 0 {
		return &ValueError{Msg: fmt.Sprintf("video %s has no readable frames; NIX export needs decodable media", video.Filename)}
	}
	nodes := len(p.Skeleton.Nodes)
	if nodes == 0 {
		return &ValueError{Msg: "skeleton has no nodes; nothing to export"}
	}

	var insts []*pose.Instance
	var frameIdx []int64
	for _, lf := range p.FramesOf(video) {
		for _, inst := range lf.Instances {
			insts = append(insts, inst)
			frameIdx = append(frameIdx, int64(lf.FrameIdx))
		}
	}
	m := len(insts)
	if m == 0 {
		return &ValueError{Msg: fmt.Sprintf("no labeled instances for video %s", video.Filename)}
	}

	positions := make([]float64, 0, m*nodes*2)
	pointScores := make([]float64, 0, m*nodes)
	trackIdx := make([]int64, 0, m)
	instScores := make([]float64, 0, m)
	trackScores := make([]float64, 0, m)
	for _, inst := range insts {
		if len(inst.Points) != nodes {
			return fmt.Errorf("instance has %d points, skeleton has %d nodes", len(inst.Points), nodes)
		}
		for _, pt := range inst.Points {
			if pt.Visible {
				positions = append(positions, pt.X, pt.Y)
				pointScores = append(pointScores, pt.Score)
			} else {
				positions = append(positions, math.NaN(), math.NaN())
				pointScores = append(pointScores, math.NaN())
			}
		}
		trackIdx = append(trackIdx, int64(p.TrackIndex(inst.Track)))
		instScores = append(instScores, inst.Score)
		trackScores = append(trackScores, inst.TrackingScore)
	}

	specs := []h5.DatasetSpec{
		h5.ScalarString(dsFormat, "nix"),
		h5.IntDataset(dsVersion, []int{3}, []int64{1, 2, 1}),
		h5.ScalarString(dsBlockID, uuid.NewString()),
		h5.ScalarString(dsSource, sourcePath),
		h5.ScalarString(dsVideo, video.Filename),
		h5.IntDataset(dsFrame, []int{m}, frameIdx),
		h5.FloatDataset(dsPosition, []int{m, nodes, 2}, positions),
		h5.IntDataset(dsTrack, []int{m}, trackIdx),
		h5.FloatDataset(dsInstanceScore, []int{m}, instScores),
		h5.FloatDataset(dsTrackingScore, []int{m}, trackScores),
		h5.FloatDataset(dsPointScore, []int{m, nodes}, pointScores),
		h5.StringDataset(dsNodeNames, p.Skeleton.Nodes),
	}
	if len(p.Tracks) > 0 {
		names := make([]string, len(p.Tracks))
		for i, t := range p.Tracks {
			names[i] = t.Name
		}
		specs = append(specs, h5.StringDataset(dsTrackNames, names))
	}
	return h5.Import(ctx, outPath, specs)
}
