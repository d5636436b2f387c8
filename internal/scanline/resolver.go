package scanline

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/robert-malhotra/swath-collocate/internal/footprint"
)

// DefaultMaxPixelDistance is the largest distance, in degrees, between an
// overlap vertex and a pixel for the pixel's scanline to count as touched.
const DefaultMaxPixelDistance = 0.1

// Resolution is the scanline range covering an overlap and its
// representative time.
type Resolution struct {
	First     int
	Last      int
	FirstTime time.Time
	LastTime  time.Time
	// Time is the midpoint of FirstTime and LastTime.
	Time time.Time
}

// Resolver derives the acquisition time of an overlap region from the
// scanlines it touches.
type Resolver struct {
	MaxPixelDistance float64
}

// NewResolver returns a resolver; a non-positive distance selects
// DefaultMaxPixelDistance.
func NewResolver(maxPixelDistance float64) *Resolver {
	if maxPixelDistance <= 0 {
		maxPixelDistance = DefaultMaxPixelDistance
	}
	return &Resolver{MaxPixelDistance: maxPixelDistance}
}

// Resolve finds the scanlines touched by overlap: those with a valid pixel
// inside it, plus the nearest scanline of each overlap vertex within
// MaxPixelDistance. The second rule catches overlaps narrower than a pixel.
// stamps must hold one timestamp per scanline of idx.
func (r *Resolver) Resolve(idx *Index, stamps []footprint.Scanline, overlap orb.MultiPolygon) (Resolution, error) {
	if len(stamps) != idx.Scanlines() {
		return Resolution{}, fmt.Errorf("%d timestamps for %d scanlines: %w",
			len(stamps), idx.Scanlines(), footprint.ErrMalformedMetadata)
	}

	first, last, ok := idx.Overlapping(overlap)
	if !ok {
		first, last = -1, -1
	}
	for _, p := range overlap {
		for _, ring := range p {
			for _, pt := range ring {
				s, d := idx.Nearest(pt)
				if s < 0 || d > r.MaxPixelDistance {
					continue
				}
				if first < 0 || s < first {
					first = s
				}
				if last < 0 || s > last {
					last = s
				}
			}
		}
	}
	if first < 0 {
		return Resolution{}, fmt.Errorf("overlap touches no scanline: %w", footprint.ErrGeometryDegenerate)
	}

	res := Resolution{
		First:     first,
		Last:      last,
		FirstTime: stamps[first].Time,
		LastTime:  stamps[last].Time,
	}
	res.Time = res.FirstTime.Add(res.LastTime.Sub(res.FirstTime) / 2)
	return res, nil
}
