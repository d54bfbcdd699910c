package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// DateScope constants control where the all-dates suppression rule
	// aggregates: page by page, or across the whole document.
	DateScopePage     = "page"
	DateScopeDocument = "document"

	// Default values
	DefaultContainmentThreshold = 0.8
	DefaultEnvelopeExpansion    = 0.25
	DefaultColorTolerance       = 3
	DefaultRasterScale          = 3.0
	DefaultMinCoverWidth        = 4.0
	DefaultMinCoverHeight       = 4.0
	DefaultHeaderCutoff         = 43.0
	DefaultLogLevel             = "info"
	DefaultMaxFileSize          = 100 * 1024 * 1024 // 100MB
)

// Config holds all tuning parameters for the redaction detector. Every
// threshold the pipeline consults lives here so runs are reproducible and
// each boundary is testable.
type Config struct {
	// ContainmentThreshold is the fraction of a text span's adjusted box
	// area that must be covered by a shape group before the span counts as
	// occluded. Near-total containment, not mere touching.
	ContainmentThreshold float64

	// EnvelopeExpansion is the fraction of a span's line height added above
	// and below its nominal glyph box before intersection testing, to catch
	// ink that escapes the font-metric box.
	EnvelopeExpansion float64

	// ColorTolerance is the maximum per-channel deviation (0-255) between
	// any pixel and the first pixel for a rendered crop to count as a
	// single solid color.
	ColorTolerance int

	// RasterScale is the number of device pixels per page unit when
	// rendering verification crops.
	RasterScale float64

	// MinCoverWidth and MinCoverHeight filter out horizontal rules and
	// margin lines that are too thin to be redaction bars.
	MinCoverWidth  float64
	MinCoverHeight float64

	// HeaderCutoff ignores shapes that sit entirely within this many page
	// units of the top edge, where case-caption stamps and headers live.
	HeaderCutoff float64

	// DateScope selects whether the all-dates suppression rule looks at
	// each page independently or at the whole document.
	DateScope string

	// MaxFileSize is the largest input document accepted, in bytes.
	MaxFileSize int64

	// LogLevel controls stderr diagnostics (debug, info, warn, error).
	LogLevel string

	// Version is the build version reported by --version.
	Version string
}

// DefaultConfig returns a configuration with documented defaults.
func DefaultConfig() *Config {
	return &Config{
		ContainmentThreshold: DefaultContainmentThreshold,
		EnvelopeExpansion:    DefaultEnvelopeExpansion,
		ColorTolerance:       DefaultColorTolerance,
		RasterScale:          DefaultRasterScale,
		MinCoverWidth:        DefaultMinCoverWidth,
		MinCoverHeight:       DefaultMinCoverHeight,
		HeaderCutoff:         DefaultHeaderCutoff,
		DateScope:            DateScopePage,
		MaxFileSize:          DefaultMaxFileSize,
		LogLevel:             DefaultLogLevel,
		Version:              "1.0.0",
	}
}

// LoadFromFlags parses command line flags and environment variables and
// returns the resulting configuration. Flags win over environment variables,
// which win over defaults.
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	pflag.Parse()

	populateConfigFromViper(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("XRAY")
	viper.AutomaticEnv()

	viper.SetDefault("containment", cfg.ContainmentThreshold)
	viper.SetDefault("envelope", cfg.EnvelopeExpansion)
	viper.SetDefault("colortolerance", cfg.ColorTolerance)
	viper.SetDefault("rasterscale", cfg.RasterScale)
	viper.SetDefault("datescope", cfg.DateScope)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("loglevel", cfg.LogLevel)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.Float64("containment", cfg.ContainmentThreshold,
		"Fraction of a text box that must be covered before it counts as occluded")
	pflag.Float64("envelope", cfg.EnvelopeExpansion,
		"Fraction of line height added to glyph boxes before intersection testing")
	pflag.Int("colortolerance", cfg.ColorTolerance,
		"Per-channel tolerance (0-255) when checking crop color uniformity")
	pflag.Float64("rasterscale", cfg.RasterScale,
		"Device pixels per page unit for verification crops")
	pflag.String("datescope", cfg.DateScope,
		"Scope of the all-dates suppression rule: 'page' or 'document'")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum input size in bytes")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	_ = viper.BindPFlag("containment", pflag.Lookup("containment"))
	_ = viper.BindPFlag("envelope", pflag.Lookup("envelope"))
	_ = viper.BindPFlag("colortolerance", pflag.Lookup("colortolerance"))
	_ = viper.BindPFlag("rasterscale", pflag.Lookup("rasterscale"))
	_ = viper.BindPFlag("datescope", pflag.Lookup("datescope"))
	_ = viper.BindPFlag("maxfilesize", pflag.Lookup("maxfilesize"))
	_ = viper.BindPFlag("loglevel", pflag.Lookup("loglevel"))
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <file.pdf | https://url | ->\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nxray - find bad redactions in PDF documents\n\n")
		fmt.Fprintf(os.Stderr, "A bad redaction covers text with an opaque shape instead of removing\n")
		fmt.Fprintf(os.Stderr, "it, leaving the text recoverable. xray prints a JSON mapping from page\n")
		fmt.Fprintf(os.Stderr, "number to the bounding box and recovered text of each one found.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s filing.pdf                    # local file\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s https://example.com/doc.pdf   # download first\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  cat doc.pdf | %s -               # read from stdin\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  XRAY_CONTAINMENT     Containment threshold\n")
		fmt.Fprintf(os.Stderr, "  XRAY_ENVELOPE        Glyph envelope expansion\n")
		fmt.Fprintf(os.Stderr, "  XRAY_COLORTOLERANCE  Crop color tolerance\n")
		fmt.Fprintf(os.Stderr, "  XRAY_RASTERSCALE     Verification raster scale\n")
		fmt.Fprintf(os.Stderr, "  XRAY_DATESCOPE       Date suppression scope\n")
		fmt.Fprintf(os.Stderr, "  XRAY_MAXFILESIZE     Maximum input size\n")
		fmt.Fprintf(os.Stderr, "  XRAY_LOGLEVEL        Log level\n")
	}
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.ContainmentThreshold = viper.GetFloat64("containment")
	cfg.EnvelopeExpansion = viper.GetFloat64("envelope")
	cfg.ColorTolerance = viper.GetInt("colortolerance")
	cfg.RasterScale = viper.GetFloat64("rasterscale")
	cfg.DateScope = viper.GetString("datescope")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.LogLevel = viper.GetString("loglevel")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ContainmentThreshold <= 0 || c.ContainmentThreshold > 1 {
		return errors.New("containment threshold must be in (0, 1]")
	}
	if c.EnvelopeExpansion < 0 || c.EnvelopeExpansion > 1 {
		return errors.New("envelope expansion must be in [0, 1]")
	}
	if c.ColorTolerance < 0 || c.ColorTolerance > 255 {
		return errors.New("color tolerance must be between 0 and 255")
	}
	if c.RasterScale <= 0 {
		return errors.New("raster scale must be positive")
	}
	if c.MinCoverWidth < 0 || c.MinCoverHeight < 0 {
		return errors.New("minimum cover dimensions cannot be negative")
	}
	if c.DateScope != DateScopePage && c.DateScope != DateScopeDocument {
		return fmt.Errorf("date scope must be either %q or %q", DateScopePage, DateScopeDocument)
	}
	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Containment: %.2f, Envelope: %.2f, ColorTolerance: %d, RasterScale: %.1f, DateScope: %s, MaxFileSize: %d}",
		c.ContainmentThreshold, c.EnvelopeExpansion, c.ColorTolerance, c.RasterScale, c.DateScope, c.MaxFileSize)
}
