// Package collocate wires the loaders, matcher, runner and report writer
// into one run over a configuration.
package collocate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/viant/afs"

	"github.com/robert-malhotra/swath-collocate/internal/config"
	"github.com/robert-malhotra/swath-collocate/internal/enmap"
	"github.com/robert-malhotra/swath-collocate/internal/footprint"
	"github.com/robert-malhotra/swath-collocate/internal/match"
	"github.com/robert-malhotra/swath-collocate/internal/report"
	"github.com/robert-malhotra/swath-collocate/internal/runner"
	"github.com/robert-malhotra/swath-collocate/internal/scanline"
	"github.com/robert-malhotra/swath-collocate/internal/tropomi"
)

// Summary describes a completed run.
type Summary struct {
	// Output is the URL of the report written.
	Output string
	Result *runner.Result
	Stats  footprint.BuildStats

	PlacemarksSkipped int
	GranulesSkipped   int
	Elapsed           time.Duration
}

// Run loads both inputs, matches every tile and writes the report. The
// report is written even when nothing matched. Invalid inputs, an empty
// input, and cancellation of ctx are returned as errors.
func Run(ctx context.Context, cfg *config.Config, fs afs.Service, logger zerolog.Logger) (*Summary, error) {
	started := time.Now()

	window, err := cfg.Window.TimeWindow()
	if err != nil {
		return nil, err
	}
	aoi, err := cfg.AOI.AreaOfInterest(ctx, fs)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("window", window.String()).
		Str("kml", cfg.Input.EnMAPKML).
		Str("tropomi", cfg.Input.TROPOMIDir).
		Int("workers", cfg.Match.Workers).
		Msg("starting collocation")

	// EnMAP tiles
	decoded, err := enmap.Load(ctx, fs, cfg.Input.EnMAPKML, enmap.CloudScale(cfg.Input.CloudScale), logger)
	if err != nil {
		return nil, err
	}

	// TROPOMI granules
	reader, err := tropomi.NewReader(fs, tropomi.Options{
		WorkDir:            cfg.Input.WorkDir,
		CacheSize:          cfg.Input.GranuleCacheSize,
		FootprintTolerance: cfg.Match.FootprintTolerance,
	}, logger)
	if err != nil {
		return nil, err
	}
	urls, err := reader.List(ctx, cfg.Input.TROPOMIDir)
	if err != nil {
		return nil, err
	}
	loaded, err := reader.LoadAll(ctx, urls, window, cfg.Match.Workers)
	if err != nil {
		return nil, fmt.Errorf("loading granules: %w", err)
	}

	store, stats := footprint.Build(aoi, window, decoded.Tiles, loaded.Acquisitions, logger)
	logger.Info().
		Int("tiles", stats.TilesKept).
		Int("tiles_outside_window", stats.TilesOutsideWindow).
		Int("tiles_outside_area", stats.TilesOutsideArea).
		Int("tiles_invalid", stats.TilesInvalid+stats.TilesDuplicate).
		Int("acquisitions", stats.AcquisitionsKept).
		Int("days", len(store.Days())).
		Msg("built footprint store")
	for _, day := range store.Days() {
		logger.Debug().
			Str("day", day.String()).
			Int("tiles", len(store.TilesOn(day))).
			Int("candidates", len(store.Candidates(day))).
			Msg("candidates")
	}

	matcher := match.NewMatcher(reader, scanline.NewResolver(cfg.Match.MaxPixelDistance), logger)
	result, err := runner.New(matcher, cfg.Match.Workers, cfg.Match.TileTimeout, logger).Run(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("matching interrupted: %w", err)
	}

	written, err := report.WriteFile(ctx, fs, cfg.Output.Dir, window, result.Pairs)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Output:            written,
		Result:            result,
		Stats:             stats,
		PlacemarksSkipped: len(decoded.Skipped),
		GranulesSkipped:   len(loaded.Skipped),
		Elapsed:           time.Since(started),
	}
	summary.log(logger)
	return summary, nil
}

// FailedTiles returns the IDs of the tiles whose matching did not complete.
func (s *Summary) FailedTiles() []string {
	failed := make([]string, len(s.Result.Failures))
	for i, f := range s.Result.Failures {
		failed[i] = f.Tile
	}
	return failed
}

func (s *Summary) log(logger zerolog.Logger) {
	logger.Info().
		Str("output", s.Output).
		Int("pairs", len(s.Result.Pairs)).
		Int("unmatched", len(s.Result.Unmatched)).
		Strs("failed_tiles", s.FailedTiles()).
		Int("placemarks_skipped", s.PlacemarksSkipped).
		Int("granules_skipped", s.GranulesSkipped).
		Dur("elapsed", s.Elapsed).
		Msg("collocation finished")
}
