package footprint

import (
	"sort"

	"github.com/rs/zerolog"
)

// BuildStats counts what Build kept and why it dropped the rest.
type BuildStats struct {
	TilesIn            int
	TilesInvalid       int
	TilesDuplicate     int
	TilesOutsideWindow int
	TilesOutsideArea   int
	TilesKept          int

	AcquisitionsIn            int
	AcquisitionsInvalid       int
	AcquisitionsDuplicate     int
	AcquisitionsOutsideWindow int
	AcquisitionsOutsideArea   int
	AcquisitionsKept          int
}

// Store indexes tiles and acquisitions by acquisition day. It is built once
// and never mutated afterwards, so it can be shared by concurrent matchers
// without locking.
type Store struct {
	tiles        map[Day][]*Tile
	acquisitions map[Day][]*Acquisition
	tileCount    int
	acqCount     int
}

// Build filters tiles and acquisitions to those that are valid, fall inside
// the window and intersect the area of interest, and indexes them by day.
// Each day's tiles are sorted by ID and its acquisitions by filename.
func Build(aoi *AreaOfInterest, window TimeWindow, tiles []*Tile, acquisitions []*Acquisition, logger zerolog.Logger) (*Store, BuildStats) {
	stats := BuildStats{TilesIn: len(tiles), AcquisitionsIn: len(acquisitions)}
	s := &Store{
		tiles:        make(map[Day][]*Tile),
		acquisitions: make(map[Day][]*Acquisition),
	}

	seenTiles := make(map[string]bool, len(tiles))
	for _, t := range tiles {
		if err := t.Validate(); err != nil {
			logger.Warn().Err(err).Str("tile", t.Name).Msg("skipping invalid tile")
			stats.TilesInvalid++
			continue
		}
		if seenTiles[t.ID()] {
			logger.Warn().Str("tile", t.ID()).Msg("skipping duplicate tile")
			stats.TilesDuplicate++
			continue
		}
		seenTiles[t.ID()] = true

		if !window.Contains(t.Midpoint()) {
			stats.TilesOutsideWindow++
			continue
		}
		ok, err := aoi.Intersects(t.Footprint)
		if err != nil {
			logger.Warn().Err(err).Str("tile", t.ID()).Msg("skipping tile with unusable footprint")
			stats.TilesInvalid++
			continue
		}
		if !ok {
			stats.TilesOutsideArea++
			continue
		}

		s.tiles[t.Date] = append(s.tiles[t.Date], t)
		stats.TilesKept++
	}

	seenAcqs := make(map[string]bool, len(acquisitions))
	for _, a := range acquisitions {
		if err := a.Validate(); err != nil {
			logger.Warn().Err(err).Str("granule", a.Filename).Msg("skipping invalid acquisition")
			stats.AcquisitionsInvalid++
			continue
		}
		if seenAcqs[a.Filename] {
			logger.Warn().Str("granule", a.Filename).Msg("skipping duplicate acquisition")
			stats.AcquisitionsDuplicate++
			continue
		}
		seenAcqs[a.Filename] = true

		if !window.ContainsDay(a.Date) {
			stats.AcquisitionsOutsideWindow++
			continue
		}
		ok, err := aoi.Intersects(a.Footprint)
		if err != nil {
			logger.Warn().Err(err).Str("granule", a.Filename).Msg("skipping acquisition with unusable footprint")
			stats.AcquisitionsInvalid++
			continue
		}
		if !ok {
			stats.AcquisitionsOutsideArea++
			continue
		}

		s.acquisitions[a.Date] = append(s.acquisitions[a.Date], a)
		stats.AcquisitionsKept++
	}

	for _, ts := range s.tiles {
		sort.Slice(ts, func(i, j int) bool { return ts[i].ID() < ts[j].ID() })
	}
	for _, as := range s.acquisitions {
		sort.Slice(as, func(i, j int) bool { return as[i].Filename < as[j].Filename })
	}
	s.tileCount = stats.TilesKept
	s.acqCount = stats.AcquisitionsKept

	return s, stats
}

// Days returns every day that has at least one tile, in order.
func (s *Store) Days() []Day {
	days := make([]Day, 0, len(s.tiles))
	for d := range s.tiles {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// Tiles returns every tile, ordered by day and then ID.
func (s *Store) Tiles() []*Tile {
	out := make([]*Tile, 0, s.tileCount)
	for _, d := range s.Days() {
		out = append(out, s.tiles[d]...)
	}
	return out
}

// TilesOn returns the tiles acquired on day d.
func (s *Store) TilesOn(d Day) []*Tile {
	return s.tiles[d]
}

// Candidates returns the acquisitions of day d, ordered by filename. The
// returned slice must not be modified.
func (s *Store) Candidates(d Day) []*Acquisition {
	return s.acquisitions[d]
}

// TileCount returns the number of indexed tiles.
func (s *Store) TileCount() int {
	return s.tileCount
}

// AcquisitionCount returns the number of indexed acquisitions.
func (s *Store) AcquisitionCount() int {
	return s.acqCount
}
