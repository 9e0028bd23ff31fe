package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/backmassage/poseconv/internal/config"
	"github.com/backmassage/poseconv/internal/format"
	"github.com/backmassage/poseconv/internal/format/slp"
	"github.com/backmassage/poseconv/internal/h5"
	"github.com/backmassage/poseconv/internal/logging"
	"github.com/backmassage/poseconv/internal/pose"
)

func testRegistry(t *testing.T) *format.Registry {
	t.Helper()
	reg, err := format.NewRegistry(slp.New())
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ColorMode = config.ColorNever
	log, err := logging.NewLogger(&cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

// sampleInput saves a two-video project as native JSON and returns its path.
// videoFrames sets both videos' frame counts; labeled controls whether any
// labeled frames exist.
func sampleInput(t *testing.T, dir string, videoFrames int, labeled bool) string {
	t.Helper()

	p := pose.NewProject()
	p.Skeleton = &pose.Skeleton{Name: "rodent", Nodes: []string{"head", "tail"}, Edges: [][2]int{{0, 1}}}
	camA := &pose.Video{Filename: "videos/camA.mp4", Frames: videoFrames}
	camB := &pose.Video{Filename: "videos/camB.mp4", Frames: videoFrames}
	p.Videos = []*pose.Video{camA, camB}
	tr := &pose.Track{Name: "mouse_0"}
	p.Tracks = []*pose.Track{tr}
	if labeled {
		p.Frames = []*pose.LabeledFrame{
			{Video: camA, FrameIdx: 0, Instances: []*pose.Instance{{
				Track:  tr,
				Points: []pose.Point{{X: 1, Y: 2, Visible: true}, {X: 3, Y: 4, Visible: true}},
			}}},
			{Video: camB, FrameIdx: 1, Instances: []*pose.Instance{{
				Track:  tr,
				Points: []pose.Point{{X: 5, Y: 6, Visible: true}, {X: 7, Y: 8, Visible: true}},
			}}},
		}
	}

	path := filepath.Join(dir, "proj.json")
	if err := slp.Save(context.Background(), p, path); err != nil {
		t.Fatalf("save fixture: %v", err)
	}
	return path
}

func runConfig(input string, f config.OutputFormat, outputs ...string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.InputPath = input
	cfg.Format = f
	cfg.Outputs = outputs
	cfg.ColorMode = config.ColorNever
	return &cfg
}

func TestRun_NativeSave(t *testing.T) {
	dir := t.TempDir()
	input := sampleInput(t, dir, 10, true)
	out := filepath.Join(dir, "copy.json")
	log := testLogger(t)

	stats, err := Run(context.Background(), runConfig(input, config.FormatJSON, out), testRegistry(t), log)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Written != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 1 written", stats)
	}

	p, err := testRegistry(t).Import(context.Background(), out, format.Options{}, log)
	if err != nil {
		t.Fatalf("reading saved output: %v", err)
	}
	if len(p.Videos) != 2 || len(p.Frames) != 2 {
		t.Errorf("round trip lost data: %d videos, %d frames", len(p.Videos), len(p.Frames))
	}
}

func TestRun_NativeDefaultName(t *testing.T) {
	dir := t.TempDir()
	input := sampleInput(t, dir, 10, true)

	if _, err := Run(context.Background(), runConfig(input, config.FormatJSON), testRegistry(t), testLogger(t)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Default native naming appends the extension to the full input path.
	if _, err := os.Stat(input + ".json"); err != nil {
		t.Errorf("expected %s.json: %v", input, err)
	}
}

func TestRun_LogsLoadedProject(t *testing.T) {
	dir := t.TempDir()
	input := sampleInput(t, dir, 10, true)
	logPath := filepath.Join(dir, "run.log")

	cfg := runConfig(input, config.FormatJSON, filepath.Join(dir, "copy.json"))
	cfg.LogFile = logPath
	log, err := logging.NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	if _, err := Run(context.Background(), cfg, testRegistry(t), log); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	// The project summary is part of the normal run output, not verbose-only.
	want := "Loaded project: 2 videos, 1 tracks, 2 skeleton nodes, 2 labeled frames"
	if !strings.Contains(string(data), want) {
		t.Errorf("log file missing %q:\n%s", want, data)
	}
}

func TestRun_DryRun(t *testing.T) {
	dir := t.TempDir()
	input := sampleInput(t, dir, 10, true)
	cfg := runConfig(input, config.FormatAnalysis)
	cfg.DryRun = true

	stats, err := Run(context.Background(), cfg, testRegistry(t), testLogger(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Written != 2 {
		t.Errorf("stats = %+v, want 2 planned writes", stats)
	}
	if _, err := os.Stat(filepath.Join(dir, "proj.000_camA.analysis.h5")); err == nil {
		t.Error("dry run wrote an output file")
	}
}

func TestRun_NixSkipsUnreadableVideos(t *testing.T) {
	dir := t.TempDir()
	// Frame counts of zero make every video unexportable to NIX.
	input := sampleInput(t, dir, 0, true)

	stats, err := Run(context.Background(), runConfig(input, config.FormatAnalysisNix), testRegistry(t), testLogger(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Skipped != 2 || stats.Written != 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want both targets skipped", stats)
	}
	if _, err := os.Stat(filepath.Join(dir, "proj.000_camA.analysis.nix")); err == nil {
		t.Error("skipped target left an output file")
	}
}

func TestRun_AnalysisNothingLabeledSkipped(t *testing.T) {
	dir := t.TempDir()
	input := sampleInput(t, dir, 10, false)

	stats, err := Run(context.Background(), runConfig(input, config.FormatAnalysis), testRegistry(t), testLogger(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Skipped != 2 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want both targets skipped", stats)
	}
}

func TestRun_VideoFilterNoMatch(t *testing.T) {
	dir := t.TempDir()
	input := sampleInput(t, dir, 10, true)
	cfg := runConfig(input, config.FormatAnalysis)
	cfg.VideoHint = "camZ"

	stats, err := Run(context.Background(), cfg, testRegistry(t), testLogger(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Planned != 0 || stats.Written != 0 {
		t.Errorf("stats = %+v, want empty plan and no writes", stats)
	}
}

func TestRun_MissingInput(t *testing.T) {
	cfg := runConfig(filepath.Join(t.TempDir(), "absent.slp"), config.FormatAnalysis)
	_, err := Run(context.Background(), cfg, testRegistry(t), testLogger(t))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Run() error = %v, want ErrNotExist", err)
	}
}

func TestRun_UnrecognizedInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(input, []byte("not a dataset"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Run(context.Background(), runConfig(input, config.FormatAnalysis), testRegistry(t), testLogger(t))
	var ufe *format.UnsupportedFormatError
	if !errors.As(err, &ufe) {
		t.Errorf("Run() error = %v, want UnsupportedFormatError", err)
	}
}

func TestRun_AnalysisExport(t *testing.T) {
	if err := h5.LookTools(true, true); err != nil {
		t.Skipf("HDF5 tools not available: %v", err)
	}

	dir := t.TempDir()
	input := sampleInput(t, dir, 10, true)

	stats, err := Run(context.Background(), runConfig(input, config.FormatAnalysis), testRegistry(t), testLogger(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Written != 2 || stats.Failed != 0 || stats.Skipped != 0 {
		t.Fatalf("stats = %+v, want 2 written", stats)
	}
	if stats.OutputBytes == 0 {
		t.Error("stats.OutputBytes = 0 after writing files")
	}
	for _, name := range []string{"proj.000_camA.analysis.h5", "proj.001_camB.analysis.h5"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected output %s: %v", name, err)
		}
	}
}

func TestRun_MixedNixOutcome(t *testing.T) {
	if err := h5.LookTools(true, true); err != nil {
		t.Skipf("HDF5 tools not available: %v", err)
	}

	dir := t.TempDir()
	p := pose.NewProject()
	p.Skeleton = &pose.Skeleton{Name: "rodent", Nodes: []string{"head"}}
	broken := &pose.Video{Filename: "videos/broken.mp4", Frames: 0}
	good := &pose.Video{Filename: "videos/good.mp4", Frames: 10}
	p.Videos = []*pose.Video{broken, good}
	tr := &pose.Track{Name: "mouse_0"}
	p.Tracks = []*pose.Track{tr}
	p.Frames = []*pose.LabeledFrame{
		{Video: broken, FrameIdx: 0, Instances: []*pose.Instance{{Track: tr, Points: []pose.Point{{X: 1, Y: 1, Visible: true}}}}},
		{Video: good, FrameIdx: 0, Instances: []*pose.Instance{{Track: tr, Points: []pose.Point{{X: 2, Y: 2, Visible: true}}}}},
	}
	input := filepath.Join(dir, "proj.json")
	if err := slp.Save(context.Background(), p, input); err != nil {
		t.Fatal(err)
	}

	stats, err := Run(context.Background(), runConfig(input, config.FormatAnalysisNix), testRegistry(t), testLogger(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// The broken video is skipped with a warning; the good one still exports.
	if stats.Skipped != 1 || stats.Written != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 1 skipped and 1 written", stats)
	}
	if _, err := os.Stat(filepath.Join(dir, "proj.001_good.analysis.nix")); err != nil {
		t.Errorf("expected output for good video: %v", err)
	}
}
