package nix

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/backmassage/poseconv/internal/h5"
	"github.com/backmassage/poseconv/internal/pose"
)

func sampleProject() (*pose.Project, *pose.Video) {
	p := pose.NewProject()
	p.Skeleton = &pose.Skeleton{Name: "rodent", Nodes: []string{"head", "tail"}}

	cam := &pose.Video{Filename: "videos/camA.mp4", Frames: 100}
	p.Videos = []*pose.Video{cam}

	tr := &pose.Track{Name: "mouse_0"}
	p.Tracks = []*pose.Track{tr}

	p.Frames = []*pose.LabeledFrame{
		{Video: cam, FrameIdx: 3, Instances: []*pose.Instance{{
			Track: tr, Score: 0.9, TrackingScore: 0.7,
			Points: []pose.Point{{X: 1, Y: 2, Score: 0.5, Visible: true}, {Visible: false}},
		}}},
		{Video: cam, FrameIdx: 8, Instances: []*pose.Instance{{
			Score:  0.4,
			Points: []pose.Point{{X: 5, Y: 6, Visible: true}, {X: 7, Y: 8, Visible: true}},
		}}},
	}
	return p, cam
}

func TestWrite(t *testing.T) {
	if err := h5.LookTools(true, true); err != nil {
		t.Skipf("HDF5 tools not available: %v", err)
	}

	p, cam := sampleProject()
	out := filepath.Join(t.TempDir(), "camA.analysis.nix")
	ctx := context.Background()

	if err := Write(ctx, out, p, "proj.slp", cam); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	format, err := h5.ReadStrings(ctx, out, dsFormat)
	if err != nil || len(format) != 1 || format[0] != "nix" {
		t.Errorf("format = %v (%v)", format, err)
	}
	id, err := h5.ReadStrings(ctx, out, dsBlockID)
	if err != nil || len(id) != 1 {
		t.Fatalf("block id = %v (%v)", id, err)
	}
	if _, err := uuid.Parse(id[0]); err != nil {
		t.Errorf("block id %q is not a uuid: %v", id[0], err)
	}

	frames, dims, err := h5.ReadInts(ctx, out, dsFrame)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if len(dims) != 1 || dims[0] != 2 || frames[0] != 3 || frames[1] != 8 {
		t.Errorf("frame = %v dims %v, want [3 8]", frames, dims)
	}

	pos, dims, err := h5.ReadFloats(ctx, out, dsPosition)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if len(dims) != 3 || dims[0] != 2 || dims[1] != 2 || dims[2] != 2 {
		t.Fatalf("position dims = %v, want [2 2 2]", dims)
	}
	if pos[0] != 1 || pos[1] != 2 {
		t.Errorf("instance 0 head = (%v, %v), want (1, 2)", pos[0], pos[1])
	}
	if !math.IsNaN(pos[2]) || !math.IsNaN(pos[3]) {
		t.Errorf("invisible tail = (%v, %v), want NaN", pos[2], pos[3])
	}
	if pos[4] != 5 || pos[7] != 8 {
		t.Errorf("instance 1 = %v", pos[4:8])
	}

	track, _, err := h5.ReadInts(ctx, out, dsTrack)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if track[0] != 0 || track[1] != -1 {
		t.Errorf("track = %v, want [0 -1]", track)
	}

	scores, _, err := h5.ReadFloats(ctx, out, dsInstanceScore)
	if err != nil || scores[0] != 0.9 || scores[1] != 0.4 {
		t.Errorf("instance scores = %v (%v)", scores, err)
	}

	names, err := h5.ReadStrings(ctx, out, dsTrackNames)
	if err != nil || len(names) != 1 || names[0] != "mouse_0" {
		t.Errorf("track names = %v (%v)", names, err)
	}
	videoPath, err := h5.ReadStrings(ctx, out, dsVideo)
	if err != nil || len(videoPath) != 1 || videoPath[0] != "videos/camA.mp4" {
		t.Errorf("video = %v (%v)", videoPath, err)
	}
}

func TestWrite_NilVideoUsesFirst(t *testing.T) {
	if err := h5.LookTools(true, true); err != nil {
		t.Skipf("HDF5 tools not available: %v", err)
	}

	p, cam := sampleProject()
	out := filepath.Join(t.TempDir(), "out.nix")

	if err := Write(context.Background(), out, p, "proj.slp", nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	videoPath, err := h5.ReadStrings(context.Background(), out, dsVideo)
	if err != nil || len(videoPath) != 1 || videoPath[0] != cam.Filename {
		t.Errorf("video = %v (%v), want %q", videoPath, err, cam.Filename)
	}
}

func TestWrite_ValueErrors(t *testing.T) {
	cases := []struct {
		name  string
		setup func() (*pose.Project, *pose.Video)
	}{
		{"NoVideos", func() (*pose.Project, *pose.Video) {
			return pose.NewProject(), nil
		}},
		{"NoMedia", func() (*pose.Project, *pose.Video) {
			p, cam := sampleProject()
			cam.Frames = 0
			return p, cam
		}},
		{"NoInstances", func() (*pose.Project, *pose.Video) {
			p, _ := sampleProject()
			other := &pose.Video{Filename: "videos/camB.mp4", Frames: 10}
			p.Videos = append(p.Videos, other)
			return p, other
		}},
		{"NoNodes", func() (*pose.Project, *pose.Video) {
			p, cam := sampleProject()
			p.Skeleton = &pose.Skeleton{Name: "empty"}
			return p, cam
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, v := tc.setup()
			err := Write(context.Background(), "unused.nix", p, "proj.slp", v)
			var ve *ValueError
			if !errors.As(err, &ve) {
				t.Errorf("Write() error = %v, want *ValueError", err)
			}
		})
	}
}
