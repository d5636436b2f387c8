// Package runner drives the matcher over every tile of a store with a bounded
// pool of workers.
package runner

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/swath-collocate/internal/footprint"
	"github.com/robert-malhotra/swath-collocate/internal/match"
)

// Finder finds the closest acquisition for one tile.
type Finder interface {
	FindClosestMatch(ctx context.Context, tile *footprint.Tile, candidates []*footprint.Acquisition) (*match.Pair, error)
}

// Failure records a tile whose matching did not complete.
type Failure struct {
	Tile string
	Err  error
}

// Result is the fan-in of a run.
type Result struct {
	// Pairs is sorted by tile ID.
	Pairs     []*match.Pair
	Unmatched []string
	Failures  []Failure
}

// Runner runs a Finder over every tile.
type Runner struct {
	finder      Finder
	workers     int
	tileTimeout time.Duration
	logger      zerolog.Logger
}

// New creates a runner. workers <= 0 uses runtime.NumCPU(); tileTimeout <= 0
// disables the per-tile deadline.
func New(finder Finder, workers int, tileTimeout time.Duration, logger zerolog.Logger) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{
		finder:      finder,
		workers:     workers,
		tileTimeout: tileTimeout,
		logger:      logger,
	}
}

type outcome struct {
	pair *match.Pair
	err  error
}

// Run matches every tile of the store against its same-day candidates. A
// failing tile is logged and recorded in Result.Failures without stopping the
// others; only cancellation of ctx aborts the run.
func (r *Runner) Run(ctx context.Context, store *footprint.Store) (*Result, error) {
	tiles := store.Tiles()
	outcomes := make([]outcome, len(tiles))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, tile := range tiles {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			pair, err := r.matchTile(ctx, tile, store.Candidates(tile.Date))
			outcomes[i] = outcome{pair: pair, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{}
	for i, o := range outcomes {
		id := tiles[i].ID()
		switch {
		case o.err != nil:
			r.logger.Error().Err(o.err).Str("tile", id).Msg("tile failed")
			result.Failures = append(result.Failures, Failure{Tile: id, Err: o.err})
		case o.pair == nil:
			result.Unmatched = append(result.Unmatched, id)
		default:
			r.logger.Debug().
				Str("tile", id).
				Str("granule", o.pair.Acquisition).
				Dur("offset", o.pair.Offset).
				Msg("matched")
			result.Pairs = append(result.Pairs, o.pair)
		}
	}
	sort.Slice(result.Pairs, func(i, j int) bool { return result.Pairs[i].Tile.ID() < result.Pairs[j].Tile.ID() })
	sort.Strings(result.Unmatched)
	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].Tile < result.Failures[j].Tile })

	return result, nil
}

func (r *Runner) matchTile(ctx context.Context, tile *footprint.Tile, candidates []*footprint.Acquisition) (pair *match.Pair, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pair = nil
			err = fmt.Errorf("tile %s: panic: %v: %w", tile.ID(), rec, footprint.ErrWorkerFailure)
		}
	}()

	if r.tileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.tileTimeout)
		defer cancel()
	}

	pair, err = r.finder.FindClosestMatch(ctx, tile, candidates)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w: %w", tile.ID(), footprint.ErrWorkerFailure, err)
	}
	return pair, nil
}
