// Package match pairs each narrow-swath tile with the temporally closest
// overlapping wide-swath acquisition of the same day.
package match

import (
	"context"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/robert-malhotra/swath-collocate/internal/footprint"
	"github.com/robert-malhotra/swath-collocate/internal/scanline"
	"github.com/robert-malhotra/swath-collocate/pkg/geometry"
)

// SwathSource provides the scanline index of an acquisition. Implementations
// must be safe for concurrent use and return the same index for the same
// acquisition on every call.
type SwathSource interface {
	Swath(ctx context.Context, acq *footprint.Acquisition) (*scanline.Index, error)
}

// Pair is a tile collocated with its closest acquisition.
type Pair struct {
	Tile        *footprint.Tile
	Acquisition string

	Overlap orb.MultiPolygon

	TileTime        time.Time
	AcquisitionTime time.Time
	// Offset is the absolute difference between TileTime and AcquisitionTime.
	Offset time.Duration

	CloudFraction float64

	FirstScanline int
	LastScanline  int
}

// Matcher finds the closest acquisition for a tile.
type Matcher struct {
	source   SwathSource
	resolver *scanline.Resolver
	logger   zerolog.Logger
}

// NewMatcher creates a matcher reading swath geolocation from source.
func NewMatcher(source SwathSource, resolver *scanline.Resolver, logger zerolog.Logger) *Matcher {
	return &Matcher{
		source:   source,
		resolver: resolver,
		logger:   logger,
	}
}

// FindClosestMatch returns the pair with the smallest absolute time offset
// among the candidates that intersect the tile with positive area. Ties go to
// the lexically smaller filename. It returns nil and no error when no
// candidate intersects.
//
// A candidate whose geometry or geolocation cannot be used is dropped and the
// search continues; only context cancellation is returned as an error.
func (m *Matcher) FindClosestMatch(ctx context.Context, tile *footprint.Tile, candidates []*footprint.Acquisition) (*Pair, error) {
	ordered := make([]*footprint.Acquisition, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Filename < ordered[j].Filename })

	log := m.logger.With().Str("tile", tile.ID()).Logger()
	tileBound := tile.Footprint.Bound()
	tileTime := tile.Midpoint()

	var best *Pair
	for _, acq := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if acq.Date != tile.Date {
			continue
		}
		if !tileBound.Intersects(acq.Footprint.Bound()) {
			continue
		}

		overlap, err := geometry.Intersection(tile.Footprint, acq.Footprint)
		if err != nil {
			log.Warn().Err(err).Str("granule", acq.Filename).Msg("intersection failed")
			continue
		}
		if geometry.Area(overlap) < geometry.MinArea {
			continue
		}

		idx, err := m.source.Swath(ctx, acq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("granule", acq.Filename).Msg("granule geolocation unavailable")
			continue
		}
		res, err := m.resolver.Resolve(idx, acq.Scanlines, overlap)
		if err != nil {
			log.Debug().Err(err).Str("granule", acq.Filename).Msg("overlap has no scanline time")
			continue
		}

		offset := res.Time.Sub(tileTime)
		if offset < 0 {
			offset = -offset
		}
		log.Debug().Str("granule", acq.Filename).Dur("offset", offset).Msg("candidate")

		// Candidates arrive in filename order, so a strict comparison keeps the
		// smaller filename on ties.
		if best != nil && offset >= best.Offset {
			continue
		}
		best = &Pair{
			Tile:            tile,
			Acquisition:     acq.Filename,
			Overlap:         overlap,
			TileTime:        tileTime,
			AcquisitionTime: res.Time,
			Offset:          offset,
			CloudFraction:   tile.CloudFraction,
			FirstScanline:   res.First,
			LastScanline:    res.Last,
		}
	}
	return best, nil
}
