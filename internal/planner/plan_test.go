package planner

import (
	"path/filepath"
	"testing"

	"github.com/backmassage/poseconv/internal/config"
	"github.com/backmassage/poseconv/internal/pose"
)

func testProject(videoFiles ...string) *pose.Project {
	p := pose.NewProject()
	for _, f := range videoFiles {
		p.Videos = append(p.Videos, &pose.Video{Filename: f})
	}
	return p
}

func testConfig(input string, format config.OutputFormat, outputs ...string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.InputPath = input
	cfg.Format = format
	cfg.Outputs = outputs
	return &cfg
}

func pathsOf(targets []Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.Path
	}
	return out
}

func TestBuildPlan_AnalysisDefaults(t *testing.T) {
	p := testProject("videos/camA.mp4", "videos/camB.mp4")
	targets, err := BuildPlan(p, testConfig("proj.slp", config.FormatAnalysis))
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	want := []string{"proj.000_camA.analysis.h5", "proj.001_camB.analysis.h5"}
	got := pathsOf(targets)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("paths = %v, want %v", got, want)
	}
	for i, tgt := range targets {
		if tgt.Kind != KindAnalysisH5 {
			t.Errorf("target %d kind = %v, want %v", i, tgt.Kind, KindAnalysisH5)
		}
		if tgt.Video != p.Videos[i] || tgt.VideoIndex != i {
			t.Errorf("target %d video = %v index %d, want project video %d", i, tgt.Video, tgt.VideoIndex, i)
		}
	}
}

func TestBuildPlan_ExplicitThenDefault(t *testing.T) {
	p := testProject("camA.mp4", "camB.mp4")
	targets, err := BuildPlan(p, testConfig("data.json.zip", config.FormatAnalysisNix, "out.nix"))
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	want := []string{"out.nix", "data.001_camB.analysis.nix"}
	got := pathsOf(targets)
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("paths = %v, want %v", got, want)
	}
	if targets[0].Kind != KindAnalysisNix || targets[1].Kind != KindAnalysisNix {
		t.Errorf("kinds = %v, %v, want both %v", targets[0].Kind, targets[1].Kind, KindAnalysisNix)
	}
}

func TestBuildPlan_SurplusExplicitPathsUnused(t *testing.T) {
	p := testProject("camA.mp4")
	targets, err := BuildPlan(p, testConfig("proj.slp", config.FormatAnalysis, "a.h5", "b.h5", "c.h5"))
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if len(targets) != 1 || targets[0].Path != "a.h5" {
		t.Errorf("targets = %v, want single a.h5", pathsOf(targets))
	}
}

func TestBuildPlan_VideoFilter(t *testing.T) {
	p := testProject("videos/camA.mp4", "videos/camB.mp4")
	cfg := testConfig("proj.slp", config.FormatAnalysis)
	cfg.VideoHint = "camB"

	targets, err := BuildPlan(p, cfg)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("got %d targets, want 1", len(targets))
	}
	// The default name keeps the video's project-wide index even when the
	// filter selected it alone.
	if targets[0].VideoIndex != 1 || targets[0].Path != "proj.001_camB.analysis.h5" {
		t.Errorf("target = index %d path %q", targets[0].VideoIndex, targets[0].Path)
	}
}

func TestBuildPlan_VideoFilterNoMatch(t *testing.T) {
	p := testProject("videos/camA.mp4")
	cfg := testConfig("proj.slp", config.FormatAnalysis)
	cfg.VideoHint = "camZ"

	targets, err := BuildPlan(p, cfg)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if len(targets) != 0 {
		t.Errorf("got %d targets, want empty plan", len(targets))
	}
}

func TestBuildPlan_DirPreserved(t *testing.T) {
	p := testProject("camA.mp4")
	targets, err := BuildPlan(p, testConfig(filepath.Join("sessions", "proj.slp"), config.FormatAnalysis))
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	want := filepath.Join("sessions", "proj.000_camA.analysis.h5")
	if targets[0].Path != want {
		t.Errorf("path = %q, want %q", targets[0].Path, want)
	}
}

func TestBuildPlan_NativeDefault(t *testing.T) {
	p := testProject("camA.mp4", "camB.mp4")
	targets, err := BuildPlan(p, testConfig("proj.slp", config.FormatSLP))
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("got %d targets, want 1", len(targets))
	}
	tgt := targets[0]
	if tgt.Path != "proj.slp.slp" || tgt.Kind != KindNative || tgt.Video != nil || tgt.VideoIndex != -1 {
		t.Errorf("target = %+v, want native proj.slp.slp without video", tgt)
	}
}

func TestBuildPlan_NativeFormats(t *testing.T) {
	cases := []struct {
		format config.OutputFormat
		want   string
	}{
		{config.FormatSLP, "proj.slp.slp"},
		{config.FormatH5, "proj.slp.h5"},
		{config.FormatJSON, "proj.slp.json"},
	}
	for _, tc := range cases {
		targets, err := BuildPlan(testProject("camA.mp4"), testConfig("proj.slp", tc.format))
		if err != nil {
			t.Fatalf("BuildPlan(%s) error = %v", tc.format, err)
		}
		if targets[0].Path != tc.want {
			t.Errorf("format %s path = %q, want %q", tc.format, targets[0].Path, tc.want)
		}
	}
}

func TestBuildPlan_NativeExplicitPath(t *testing.T) {
	targets, err := BuildPlan(testProject("camA.mp4"), testConfig("proj.slp", config.FormatSLP, "renamed.slp", "extra.slp"))
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if len(targets) != 1 || targets[0].Path != "renamed.slp" {
		t.Errorf("targets = %v, want single renamed.slp", pathsOf(targets))
	}
}

func TestBuildPlan_DuplicateOutputRejected(t *testing.T) {
	p := testProject("camA.mp4", "camB.mp4")
	if _, err := BuildPlan(p, testConfig("proj.slp", config.FormatAnalysis, "same.h5", "same.h5")); err == nil {
		t.Error("BuildPlan() = nil error, want duplicate path complaint")
	}
}

func TestBuildPlan_SameStemVideosStayUnique(t *testing.T) {
	// The zero-padded index keeps default names apart even when two videos
	// share a base name.
	p := testProject("videos/camA.mp4", "videos/camA.mp4")
	targets, err := BuildPlan(p, testConfig("proj.slp", config.FormatAnalysis))
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if targets[0].Path == targets[1].Path {
		t.Errorf("paths collide: %v", pathsOf(targets))
	}
}
