package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/backmassage/poseconv/internal/analysis"
	"github.com/backmassage/poseconv/internal/config"
	"github.com/backmassage/poseconv/internal/display"
	"github.com/backmassage/poseconv/internal/format"
	"github.com/backmassage/poseconv/internal/format/slp"
	"github.com/backmassage/poseconv/internal/logging"
	"github.com/backmassage/poseconv/internal/nix"
	"github.com/backmassage/poseconv/internal/planner"
	"github.com/backmassage/poseconv/internal/pose"
)

// Run is the top-level conversion entry point: import the dataset, plan the
// output targets, write each one, and report aggregate stats.
//
// Import and planning failures are terminal and returned. Writer failures
// are terminal only for native saves; analysis targets are isolated so one
// bad video never stops its siblings.
func Run(ctx context.Context, cfg *config.Config, reg *format.Registry, log *logging.Logger) (RunStats, error) {
	var stats RunStats

	logHeader(cfg, log)

	// The hint doubles as a search location for moved media; the registry
	// seeds the input file's directory on top.
	resolver := pose.NewVideoResolver()
	if cfg.VideoHint != "" {
		resolver.AddDir(filepath.Dir(cfg.VideoHint))
	}

	proj, err := reg.Import(ctx, cfg.InputPath, format.Options{
		Resolver:  resolver,
		VideoHint: cfg.VideoHint,
		Verbose:   cfg.Verbose,
	}, log)
	if err != nil {
		return stats, err
	}
	// Single-animal formats often carry no tracks; the analysis exports need
	// them, so normalize once here. Writers never mutate the project.
	proj.EnsureTracks()
	log.Info("Loaded project: %d videos, %d tracks, %d skeleton nodes, %d labeled frames",
		len(proj.Videos), len(proj.Tracks), len(proj.Skeleton.Nodes), len(proj.Frames))

	targets, err := planner.BuildPlan(proj, cfg)
	if err != nil {
		return stats, err
	}
	stats.Planned = len(targets)

	if len(targets) == 0 {
		if cfg.VideoHint != "" {
			log.Warn("Nothing to export: no video filename contains %q", cfg.VideoHint)
		} else {
			log.Warn("Nothing to export: project has no videos")
		}
		return stats, nil
	}

	if cfg.DryRun {
		for _, t := range targets {
			log.Success("[DRY] Would write %s (%s)", t.Path, t.Kind)
			stats.Written++
		}
		return stats, nil
	}

	for i, t := range targets {
		stats.Current = i + 1

		if ctx.Err() != nil {
			log.Warn("Interrupted")
			break
		}
		if err := writeTarget(ctx, cfg, log, proj, t, &stats); err != nil {
			return stats, err
		}
	}

	logSummary(log, &stats)
	return stats, nil
}

// writeTarget dispatches one planned target to its writer and updates stats.
// The returned error is non-nil only for native saves, which are fatal.
func writeTarget(ctx context.Context, cfg *config.Config, log *logging.Logger, proj *pose.Project, t planner.Target, stats *RunStats) error {
	if t.Kind == planner.KindNative {
		log.Info("Saving project to %s", t.Path)
	} else {
		log.Info("[%d/%d] %s -> %s", stats.Current, stats.Planned, filepath.Base(t.Video.Filename), t.Path)
	}

	if dir := filepath.Dir(t.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create output directory: %w", err)
		}
	}

	var err error
	switch t.Kind {
	case planner.KindNative:
		err = slp.Save(ctx, proj, t.Path)
		if err != nil {
			return err
		}
	case planner.KindAnalysisH5:
		err = analysis.Write(ctx, proj, t.Path, cfg.InputPath, true, t.Video)
	case planner.KindAnalysisNix:
		err = nix.Write(ctx, t.Path, proj, cfg.InputPath, t.Video)
	}

	var ve *nix.ValueError
	switch {
	case err == nil:
		var size int64
		if fi, statErr := os.Stat(t.Path); statErr == nil {
			size = fi.Size()
		}
		stats.OutputBytes += size
		stats.Written++
		log.Success("Wrote %s (%s)", filepath.Base(t.Path), display.FormatBytes(size))
	case errors.As(err, &ve):
		log.Warn("Skipping %s: %s", filepath.Base(t.Path), ve.Msg)
		stats.Skipped++
	case errors.Is(err, analysis.ErrNoData):
		log.Warn("Skipping %s: %v", filepath.Base(t.Path), err)
		stats.Skipped++
	default:
		log.Error("Writing %s failed: %v", filepath.Base(t.Path), err)
		stats.Failed++
	}
	return nil
}

func logHeader(cfg *config.Config, log *logging.Logger) {
	log.Info("Converting %s to %s", cfg.InputPath, cfg.Format)
	if cfg.VideoHint != "" {
		log.Info("Video filter: %q", cfg.VideoHint)
	}
	fmt.Println()
}

func logSummary(log *logging.Logger, stats *RunStats) {
	if stats.Planned <= 1 && stats.Failed == 0 {
		return
	}
	log.Info("==============================")
	log.Info("Done: %d written, %d skipped, %d failed", stats.Written, stats.Skipped, stats.Failed)
	if stats.Written > 0 {
		log.Info("  Total output: %s across %d file%s",
			display.FormatBytes(stats.OutputBytes), stats.Written, display.Plural(stats.Written))
	}
}
