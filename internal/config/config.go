// Package config provides configuration management for the collocation run.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/robert-malhotra/swath-collocate/internal/enmap"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Input   InputConfig   `envPrefix:"INPUT_"`
	AOI     AOIConfig     `envPrefix:"AOI_"`
	Window  WindowConfig  `envPrefix:"WINDOW_"`
	Match   MatchConfig   `envPrefix:"MATCH_"`
	Output  OutputConfig  `envPrefix:"OUTPUT_"`
	Logging LoggingConfig `envPrefix:"LOG_"`
}

// InputConfig locates the two input datasets. Locations are afs URLs or
// local paths.
type InputConfig struct {
	EnMAPKML   string `env:"ENMAP_KML"`
	TROPOMIDir string `env:"TROPOMI_DIR"`
	// WorkDir receives local copies of remote granules.
	WorkDir          string `env:"WORK_DIR" envDefault:""`
	GranuleCacheSize int    `env:"GRANULE_CACHE_SIZE" envDefault:"16"`
	// CloudScale is the unit of the KML clouds values: auto, fraction or
	// percent.
	CloudScale string `env:"CLOUD_SCALE" envDefault:"auto"`
}

// AOIConfig selects the area of interest. File wins over BBox, BBox over WKT.
// The default WKT covers Europe.
type AOIConfig struct {
	WKT  string    `env:"WKT" envDefault:"POLYGON((-27 72,-27 34,43 34,43 72,-27 72))"`
	File string    `env:"FILE" envDefault:""` // GeoJSON
	BBox []float64 `env:"BBOX" envDefault:""` // west,south,east,north
}

// WindowConfig selects the time window. Month 0 is the whole year, day 0
// the whole month.
type WindowConfig struct {
	Year  int `env:"YEAR"`
	Month int `env:"MONTH" envDefault:"0"`
	Day   int `env:"DAY" envDefault:"0"`
}

// MatchConfig tunes the matching stage.
type MatchConfig struct {
	// Workers bounds concurrent tiles; 0 uses every CPU.
	Workers     int           `env:"WORKERS" envDefault:"0"`
	TileTimeout time.Duration `env:"TILE_TIMEOUT" envDefault:"0s"`
	// MaxPixelDistance and FootprintTolerance are in degrees.
	MaxPixelDistance   float64 `env:"MAX_PIXEL_DISTANCE" envDefault:"0.1"`
	FootprintTolerance float64 `env:"FOOTPRINT_TOLERANCE" envDefault:"0.01"`
}

// OutputConfig contains report output configuration.
type OutputConfig struct {
	Dir string `env:"DIR" envDefault:"."`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Input.EnMAPKML == "" {
		return fmt.Errorf("EnMAP KML location is required")
	}

	if c.Input.TROPOMIDir == "" {
		return fmt.Errorf("TROPOMI directory is required")
	}

	if c.Input.GranuleCacheSize < 1 {
		return fmt.Errorf("granule cache size must be at least 1, got %d", c.Input.GranuleCacheSize)
	}

	if !enmap.CloudScale(c.Input.CloudScale).Valid() {
		return fmt.Errorf("invalid cloud scale %q, must be one of: auto, fraction, percent", c.Input.CloudScale)
	}

	if c.AOI.WKT == "" && c.AOI.File == "" && len(c.AOI.BBox) == 0 {
		return fmt.Errorf("an area of interest is required")
	}

	if len(c.AOI.BBox) != 0 && len(c.AOI.BBox) != 4 {
		return fmt.Errorf("AOI bbox must have 4 values, got %d", len(c.AOI.BBox))
	}

	if _, err := c.Window.TimeWindow(); err != nil {
		return err
	}

	if c.Match.Workers < 0 {
		return fmt.Errorf("match workers must not be negative, got %d", c.Match.Workers)
	}

	if c.Match.TileTimeout < 0 {
		return fmt.Errorf("tile timeout must not be negative, got %s", c.Match.TileTimeout)
	}

	if c.Match.MaxPixelDistance <= 0 {
		return fmt.Errorf("max pixel distance must be positive, got %g", c.Match.MaxPixelDistance)
	}

	if c.Match.FootprintTolerance < 0 {
		return fmt.Errorf("footprint tolerance must not be negative, got %g", c.Match.FootprintTolerance)
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output directory is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}
