package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/robert-malhotra/swath-collocate/internal/footprint"
)

const europe = "POLYGON((-27 72,-27 34,43 34,43 72,-27 72))"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("INPUT_ENMAP_KML", "/data/enmap/tiles.kml")
	t.Setenv("INPUT_TROPOMI_DIR", "/data/tropomi")
	t.Setenv("WINDOW_YEAR", "2024")
}

func TestLoad(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/enmap/tiles.kml", cfg.Input.EnMAPKML)
	assert.Equal(t, "/data/tropomi", cfg.Input.TROPOMIDir)
	assert.Equal(t, "", cfg.Input.WorkDir)
	assert.Equal(t, 16, cfg.Input.GranuleCacheSize)
	assert.Equal(t, "auto", cfg.Input.CloudScale)
	assert.Equal(t, europe, cfg.AOI.WKT)
	assert.Empty(t, cfg.AOI.File)
	assert.Empty(t, cfg.AOI.BBox)
	assert.Equal(t, WindowConfig{Year: 2024}, cfg.Window)
	assert.Equal(t, 0, cfg.Match.Workers)
	assert.Equal(t, time.Duration(0), cfg.Match.TileTimeout)
	assert.Equal(t, 0.1, cfg.Match.MaxPixelDistance)
	assert.Equal(t, 0.01, cfg.Match.FootprintTolerance)
	assert.Equal(t, ".", cfg.Output.Dir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadWithCustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("INPUT_WORK_DIR", "/scratch")
	t.Setenv("INPUT_GRANULE_CACHE_SIZE", "4")
	t.Setenv("INPUT_CLOUD_SCALE", "percent")
	t.Setenv("AOI_BBOX", "5,45,15,55")
	t.Setenv("WINDOW_MONTH", "2")
	t.Setenv("WINDOW_DAY", "15")
	t.Setenv("MATCH_WORKERS", "8")
	t.Setenv("MATCH_TILE_TIMEOUT", "90s")
	t.Setenv("MATCH_MAX_PIXEL_DISTANCE", "0.05")
	t.Setenv("OUTPUT_DIR", "s3://bucket/results")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/scratch", cfg.Input.WorkDir)
	assert.Equal(t, 4, cfg.Input.GranuleCacheSize)
	assert.Equal(t, "percent", cfg.Input.CloudScale)
	assert.Equal(t, []float64{5, 45, 15, 55}, cfg.AOI.BBox)
	assert.Equal(t, WindowConfig{Year: 2024, Month: 2, Day: 15}, cfg.Window)
	assert.Equal(t, 8, cfg.Match.Workers)
	assert.Equal(t, 90*time.Second, cfg.Match.TileTimeout)
	assert.Equal(t, 0.05, cfg.Match.MaxPixelDistance)
	assert.Equal(t, "s3://bucket/results", cfg.Output.Dir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, missing := range []string{"INPUT_ENMAP_KML", "INPUT_TROPOMI_DIR", "WINDOW_YEAR"} {
		t.Run(missing, func(t *testing.T) {
			setRequired(t)
			os.Unsetenv(missing)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func validConfig() *Config {
	return &Config{
		Input: InputConfig{
			EnMAPKML:         "tiles.kml",
			TROPOMIDir:       "tropomi",
			GranuleCacheSize: 16,
			CloudScale:       "auto",
		},
		AOI:    AOIConfig{WKT: europe},
		Window: WindowConfig{Year: 2024, Month: 2},
		Match: MatchConfig{
			MaxPixelDistance:   0.1,
			FootprintTolerance: 0.01,
		},
		Output: OutputConfig{Dir: "."},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "valid daily window", mutate: func(c *Config) { c.Window.Day = 29 }},
		{name: "missing KML", mutate: func(c *Config) { c.Input.EnMAPKML = "" }, wantError: true},
		{name: "missing granule dir", mutate: func(c *Config) { c.Input.TROPOMIDir = "" }, wantError: true},
		{name: "zero cache", mutate: func(c *Config) { c.Input.GranuleCacheSize = 0 }, wantError: true},
		{name: "fraction clouds", mutate: func(c *Config) { c.Input.CloudScale = "fraction" }},
		{name: "unknown cloud scale", mutate: func(c *Config) { c.Input.CloudScale = "okta" }, wantError: true},
		{name: "no area", mutate: func(c *Config) { c.AOI.WKT = "" }, wantError: true},
		{name: "short bbox", mutate: func(c *Config) { c.AOI.BBox = []float64{1, 2, 3} }, wantError: true},
		{name: "day without month", mutate: func(c *Config) { c.Window = WindowConfig{Year: 2024, Day: 3} }, wantError: true},
		{name: "not a calendar date", mutate: func(c *Config) { c.Window.Day = 30 }, wantError: true},
		{name: "month out of range", mutate: func(c *Config) { c.Window.Month = 13 }, wantError: true},
		{name: "negative workers", mutate: func(c *Config) { c.Match.Workers = -1 }, wantError: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Match.TileTimeout = -time.Second }, wantError: true},
		{name: "zero pixel distance", mutate: func(c *Config) { c.Match.MaxPixelDistance = 0 }, wantError: true},
		{name: "negative tolerance", mutate: func(c *Config) { c.Match.FootprintTolerance = -1 }, wantError: true},
		{name: "missing output dir", mutate: func(c *Config) { c.Output.Dir = "" }, wantError: true},
		{name: "invalid log level", mutate: func(c *Config) { c.Logging.Level = "invalid" }, wantError: true},
		{name: "invalid log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWindowConfig_TimeWindow(t *testing.T) {
	w, err := WindowConfig{Year: 2024, Month: 2}.TimeWindow()
	require.NoError(t, err)
	assert.Equal(t, footprint.Month, w.Granularity)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), w.End)

	_, err = WindowConfig{}.TimeWindow()
	assert.True(t, errors.Is(err, footprint.ErrInvalidTimeWindow))
}

func TestAOIConfig_AreaOfInterest(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	dir := t.TempDir()

	feature := filepath.Join(dir, "area.geojson")
	require.NoError(t, os.WriteFile(feature, []byte(`{
		"type": "Feature",
		"properties": {},
		"geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,0],[2,1],[0,1],[0,0]]]}
	}`), 0o644))
	broken := filepath.Join(dir, "broken.geojson")
	require.NoError(t, os.WriteFile(broken, []byte(`{"type": "Feature"`), 0o644))

	tests := []struct {
		name    string
		cfg     AOIConfig
		bound   [4]float64
		wantErr bool
	}{
		{name: "default WKT", cfg: AOIConfig{WKT: europe}, bound: [4]float64{-27, 34, 43, 72}},
		{name: "bbox wins over WKT", cfg: AOIConfig{WKT: europe, BBox: []float64{5, 45, 15, 55}}, bound: [4]float64{5, 45, 15, 55}},
		{name: "file wins over bbox", cfg: AOIConfig{File: feature, BBox: []float64{5, 45, 15, 55}}, bound: [4]float64{0, 0, 2, 1}},
		{name: "bad WKT", cfg: AOIConfig{WKT: "POLYGON((0 0"}, wantErr: true},
		{name: "point WKT", cfg: AOIConfig{WKT: "POINT(1 2)"}, wantErr: true},
		{name: "empty bbox", cfg: AOIConfig{BBox: []float64{5, 5, 5, 5}}, wantErr: true},
		{name: "missing file", cfg: AOIConfig{File: filepath.Join(dir, "missing.geojson")}, wantErr: true},
		{name: "broken file", cfg: AOIConfig{File: broken}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aoi, err := tt.cfg.AreaOfInterest(ctx, fs)
			if tt.wantErr {
				assert.True(t, errors.Is(err, footprint.ErrInvalidAreaOfInterest), "got %v", err)
				return
			}
			require.NoError(t, err)
			b := aoi.Bound()
			assert.Equal(t, tt.bound, [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]})
		})
	}
}
