// Command poseconv converts animal pose tracking datasets between formats.
//
// It reads a dataset in any supported format (native SLP containers and JSON
// documents, plus legacy LEAP, DeepLabCut, DeepPoseKit, and COCO keypoint
// files), and writes it back out as a native project or as per-video analysis
// exports.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/backmassage/poseconv/internal/check"
	"github.com/backmassage/poseconv/internal/config"
	"github.com/backmassage/poseconv/internal/display"
	"github.com/backmassage/poseconv/internal/format"
	"github.com/backmassage/poseconv/internal/format/coco"
	"github.com/backmassage/poseconv/internal/format/dlc"
	"github.com/backmassage/poseconv/internal/format/dpk"
	"github.com/backmassage/poseconv/internal/format/leap"
	"github.com/backmassage/poseconv/internal/format/slp"
	"github.com/backmassage/poseconv/internal/logging"
	"github.com/backmassage/poseconv/internal/pipeline"
)

// version and commit are injected at build time via -ldflags.
// When built with plain "go build" (no make), these retain their defaults.
var (
	version = "1.0.0"
	commit  = "unknown"
)

var cfg = config.DefaultConfig()

var rootCmd = &cobra.Command{
	Use:   "poseconv [flags] <dataset>",
	Short: "Convert animal pose tracking datasets between formats",
	Long: `poseconv converts animal pose tracking datasets between formats.

The input format is detected automatically: the file is first opened as a
native dataset (SLP container or JSON document), and failing that the legacy
importers are probed in order (leap, dlc, dpk, coco).

Native targets (slp, h5, json) save the whole project to a single file.
Analysis targets (analysis, analysis.nix) write one file per video; explicit
-o paths are used first and remaining videos get default names next to the
input.`,
	Args:          cobra.ExactArgs(1),
	RunE:          runConvert,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("poseconv v%s (%s)\n", version, commit)
	},
}

var checkCmd = &cobra.Command{
	Use:           "check",
	Short:         "Run system diagnostics (HDF5 tools, importers)",
	RunE:          runCheck,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkCmd)

	rootCmd.Flags().StringArrayVarP(&cfg.Outputs, "output", "o", nil, "output path (repeatable; consumed in order for analysis exports)")
	rootCmd.Flags().StringVarP((*string)(&cfg.Format), "format", "f", string(config.FormatSLP), "output format: slp | h5 | json | analysis | analysis.nix")
	rootCmd.Flags().StringVar(&cfg.VideoHint, "video", "", "export only the first video whose filename contains this substring")
	rootCmd.Flags().BoolVarP(&cfg.DryRun, "dry-run", "d", false, "plan outputs and print them without writing")

	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar((*string)(&cfg.ColorMode), "color", string(config.ColorAuto), "color mode: auto | always | never")
	rootCmd.PersistentFlags().StringVarP(&cfg.LogFile, "log", "l", "", "append logs to file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "poseconv: %v\n", err)
		os.Exit(1)
	}
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg.InputPath = args[0]
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	display.PrintBanner()
	log.Info("=== poseconv v%s (%s) ===", version, commit)
	if cfg.DryRun {
		log.Warn("DRY RUN: nothing will be written")
	}

	// Fail fast if the HDF5 tools this conversion needs are unavailable.
	if err := check.CheckDeps(&cfg); err != nil {
		return err
	}

	reg, err := newRegistry()
	if err != nil {
		return err
	}

	// Cancel the context on SIGINT/SIGTERM so the pipeline can stop between
	// targets without leaving partial output.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Warn("Received interrupt, finishing current target...")
		cancel()
	}()

	stats, err := pipeline.Run(ctx, &cfg, reg, log)
	if err != nil {
		return err
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d targets failed", stats.Failed, stats.Planned)
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	log, err := logging.NewLogger(&cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	display.PrintBanner()

	reg, err := newRegistry()
	if err != nil {
		return err
	}
	if !check.RunCheck(cmd.Context(), reg, log) {
		return errors.New("system check failed")
	}
	return nil
}

// newRegistry wires the native reader and the legacy importers in probe
// order. More specific formats come first so the extension-only COCO probe
// never shadows them.
func newRegistry() (*format.Registry, error) {
	return format.NewRegistry(slp.New(), leap.New(), dlc.New(), dpk.New(), coco.New())
}
