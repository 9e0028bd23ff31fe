// Package config holds runtime configuration: defaults, enum types for
// validated string fields, and validation.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// --- Enum types for validated string fields ---

// OutputFormat selects the conversion target.
type OutputFormat string

const (
	FormatSLP         OutputFormat = "slp"          // Native HDF5 container (default).
	FormatH5          OutputFormat = "h5"           // Same container, .h5 suffix.
	FormatJSON        OutputFormat = "json"         // JSON project document.
	FormatAnalysis    OutputFormat = "analysis"     // Per-video analysis HDF5 export.
	FormatAnalysisNix OutputFormat = "analysis.nix" // Per-video analysis NIX export.
)

// IsAnalysis reports whether f selects analysis export. Matching is by
// substring so both analysis variants share one planning path.
func (f OutputFormat) IsAnalysis() bool {
	return strings.Contains(string(f), "analysis")
}

// IsNix reports whether f selects the NIX variant of the analysis export.
func (f OutputFormat) IsNix() bool {
	return strings.Contains(string(f), "nix")
}

// AnalysisSuffix returns the filename suffix used for analysis outputs of
// this format: "nix" for the NIX variant, otherwise "h5".
func (f OutputFormat) AnalysisSuffix() string {
	if f.IsNix() {
		return "nix"
	}
	return "h5"
}

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Config holds all runtime settings. It is populated by [DefaultConfig] and
// then mutated by the CLI flag bindings in cmd before being passed (by
// pointer) to packages that need it.
type Config struct {
	// Conversion inputs (set from CLI args).
	InputPath string       // Dataset file to convert (positional, required).
	Outputs   []string     // Explicit output paths (-o, repeatable), consumed in order.
	Format    OutputFormat // Default: "slp".
	VideoHint string       // --video: filename substring selecting one video; also a search hint for moved videos.

	// Behavior flags.
	DryRun  bool // Plan and print targets without writing anything.
	Verbose bool

	// Display and logging.
	ColorMode ColorMode // Default: "auto".
	LogFile   string    // Optional log file path.
}

// DefaultConfig returns a Config with all defaults matching the flag
// defaults declared in cmd.
func DefaultConfig() Config {
	return Config{
		Format:    FormatSLP,
		VideoHint: "",
		DryRun:    false,
		Verbose:   false,
		ColorMode: ColorAuto,
	}
}

// Validate checks that enum fields hold valid values and that an input path
// was given. The format value is canonicalized (lowercased, trimmed) before
// checking.
func (c *Config) Validate() error {
	f, err := normalizeFormat(c.Format)
	if err != nil {
		return err
	}
	c.Format = f

	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}

	if c.InputPath == "" {
		return errors.New("need an input dataset path")
	}
	return nil
}

// normalizeFormat canonicalizes user format input and checks it against the
// closed set of supported targets.
func normalizeFormat(raw OutputFormat) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(string(raw))))
	switch f {
	case FormatSLP, FormatH5, FormatJSON, FormatAnalysis, FormatAnalysisNix:
		return f, nil
	default:
		return "", fmt.Errorf("invalid format %q (use 'slp', 'h5', 'json', 'analysis' or 'analysis.nix')", raw)
	}
}
