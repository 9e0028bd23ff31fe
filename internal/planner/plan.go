// Package planner turns a loaded project plus the requested output format
// into the exact list of files to write. It is the only place output paths
// are decided; the pipeline executes the plan without second-guessing it.
package planner

import (
	"fmt"
	"strings"

	"github.com/backmassage/poseconv/internal/config"
	"github.com/backmassage/poseconv/internal/naming"
	"github.com/backmassage/poseconv/internal/pose"
)

// Kind selects the writer a target is dispatched to.
type Kind int

const (
	KindNative      Kind = iota // full project save (container or JSON, by path suffix)
	KindAnalysisH5              // per-video analysis HDF5 export
	KindAnalysisNix             // per-video analysis NIX export
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindAnalysisH5:
		return "analysis-h5"
	case KindAnalysisNix:
		return "analysis-nix"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Target is one file to write: which writer, where, and for analysis kinds
// which video it covers.
type Target struct {
	Kind       Kind
	Path       string
	Video      *pose.Video // nil for native saves
	VideoIndex int         // position in the project's full video list; -1 for native saves
}

// BuildPlan computes the complete target list for one invocation.
//
// Analysis formats produce one target per selected video: explicit -o paths
// are consumed first, in selection order, and every remaining video gets a
// default name derived from the input path. Surplus explicit paths are
// silently unused, and a --video filter that matches nothing yields an empty
// plan. Native formats produce exactly one target, either the first explicit
// path or the input path with the format extension appended.
func BuildPlan(p *pose.Project, cfg *config.Config) ([]Target, error) {
	if !cfg.Format.IsAnalysis() {
		path := naming.DefaultNativePath(cfg.InputPath, string(cfg.Format))
		if len(cfg.Outputs) > 0 {
			path = cfg.Outputs[0]
		}
		return []Target{{Kind: KindNative, Path: path, VideoIndex: -1}}, nil
	}

	kind := KindAnalysisH5
	if cfg.Format.IsNix() {
		kind = KindAnalysisNix
	}

	videos := selectVideos(p, cfg.VideoHint)

	targets := make([]Target, 0, len(videos))
	seen := make(map[string]bool, len(videos))
	for i, v := range videos {
		var path string
		if i < len(cfg.Outputs) {
			path = cfg.Outputs[i]
		} else {
			path = naming.DefaultAnalysisPath(cfg.InputPath, p.VideoIndex(v), v.Filename, cfg.Format.AnalysisSuffix())
		}
		if seen[path] {
			return nil, fmt.Errorf("two outputs map to the same path %q", path)
		}
		seen[path] = true
		targets = append(targets, Target{Kind: kind, Path: path, Video: v, VideoIndex: p.VideoIndex(v)})
	}
	return targets, nil
}

// selectVideos applies the --video filter: empty selects every project video
// in order, anything else selects the first video whose filename contains
// the filter as a substring. A filter that matches nothing selects nothing;
// the pipeline reports the empty plan rather than inventing a target.
func selectVideos(p *pose.Project, filter string) []*pose.Video {
	if filter == "" {
		return p.Videos
	}
	for _, v := range p.Videos {
		if strings.Contains(v.Filename, filter) {
			return []*pose.Video{v}
		}
	}
	return nil
}
