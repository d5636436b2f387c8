// Package footprint holds the acquisition model shared by the loaders, the
// matcher and the report: EnMAP tiles, TROPOMI granules, the area of
// interest, and the date-indexed candidate store.
package footprint

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/robert-malhotra/swath-collocate/pkg/geometry"
)

// Tile is a single narrow-swath (EnMAP) scene.
type Tile struct {
	// Name is the placemark name the tile was read from.
	Name       string
	DatatakeID string
	TileNumber string

	Footprint orb.Polygon
	Start     time.Time
	Stop      time.Time

	// CloudFraction is passed through to the report untouched.
	CloudFraction float64

	Date Day
}

// ID returns the composite "<datatakeId>-<tileNumber>" identifier.
func (t *Tile) ID() string {
	return t.DatatakeID + "-" + t.TileNumber
}

// Midpoint returns the observation midpoint, the representative time of the
// tile.
func (t *Tile) Midpoint() time.Time {
	return t.Start.Add(t.Stop.Sub(t.Start) / 2)
}

// Validate checks identity, timing, cloud fraction and footprint.
func (t *Tile) Validate() error {
	if t.DatatakeID == "" || t.TileNumber == "" {
		return fmt.Errorf("tile %q has no datatake/tile identity: %w", t.Name, ErrMalformedMetadata)
	}
	if t.Start.IsZero() || t.Stop.IsZero() {
		return fmt.Errorf("tile %s has no observation time: %w", t.ID(), ErrMalformedMetadata)
	}
	if t.Stop.Before(t.Start) {
		return fmt.Errorf("tile %s stops (%s) before it starts (%s): %w", t.ID(), t.Stop, t.Start, ErrMalformedMetadata)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("tile %s has no acquisition date: %w", t.ID(), ErrMalformedMetadata)
	}
	if t.CloudFraction < 0 || t.CloudFraction > 1 {
		return fmt.Errorf("tile %s cloud fraction %g outside [0,1]: %w", t.ID(), t.CloudFraction, ErrMalformedMetadata)
	}
	if err := geometry.Validate(t.Footprint); err != nil {
		return fmt.Errorf("tile %s footprint: %v: %w", t.ID(), err, ErrGeometryDegenerate)
	}
	return nil
}

// Scanline is the timestamp of one along-track line of a wide-swath
// acquisition.
type Scanline struct {
	Index int
	Time  time.Time
}

// Acquisition is a single wide-swath (TROPOMI) granule.
type Acquisition struct {
	// Filename is the granule basename without extension. It identifies the
	// acquisition and breaks ties between equally close candidates.
	Filename string
	// URL locates the granule for re-reading its geolocation.
	URL string

	Footprint orb.Polygon
	Scanlines []Scanline
	Date      Day
}

// Start returns the first scanline time.
func (a *Acquisition) Start() time.Time {
	if len(a.Scanlines) == 0 {
		return time.Time{}
	}
	return a.Scanlines[0].Time
}

// Stop returns the last scanline time.
func (a *Acquisition) Stop() time.Time {
	if len(a.Scanlines) == 0 {
		return time.Time{}
	}
	return a.Scanlines[len(a.Scanlines)-1].Time
}

// Validate checks identity, the scanline sequence and the footprint.
// Scanline indices must run 0..n-1 and timestamps must be non-decreasing.
func (a *Acquisition) Validate() error {
	if a.Filename == "" {
		return fmt.Errorf("acquisition has no filename: %w", ErrMalformedMetadata)
	}
	if len(a.Scanlines) == 0 {
		return fmt.Errorf("acquisition %s has no scanlines: %w", a.Filename, ErrMalformedMetadata)
	}
	if a.Date.IsZero() {
		return fmt.Errorf("acquisition %s has no acquisition date: %w", a.Filename, ErrMalformedMetadata)
	}
	for i, s := range a.Scanlines {
		if s.Index != i {
			return fmt.Errorf("acquisition %s scanline %d has index %d: %w", a.Filename, i, s.Index, ErrMalformedMetadata)
		}
		if i > 0 && s.Time.Before(a.Scanlines[i-1].Time) {
			return fmt.Errorf("acquisition %s scanline %d time %s precedes scanline %d: %w",
				a.Filename, i, s.Time, i-1, ErrMalformedMetadata)
		}
	}
	if err := geometry.Validate(a.Footprint); err != nil {
		return fmt.Errorf("acquisition %s footprint: %v: %w", a.Filename, err, ErrGeometryDegenerate)
	}
	return nil
}

// AreaOfInterest restricts candidates to a geographic region.
type AreaOfInterest struct {
	polygons orb.MultiPolygon
}

// NewAreaOfInterest validates g (Polygon or MultiPolygon) and wraps it.
func NewAreaOfInterest(g orb.Geometry) (*AreaOfInterest, error) {
	polygons, err := geometry.Polygons(g)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidAreaOfInterest)
	}
	if err := geometry.Validate(polygons); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidAreaOfInterest)
	}
	return &AreaOfInterest{polygons: polygons}, nil
}

// Geometry returns the area as a MultiPolygon.
func (a *AreaOfInterest) Geometry() orb.MultiPolygon {
	return a.polygons
}

// Bound returns the bounding box of the area.
func (a *AreaOfInterest) Bound() orb.Bound {
	return a.polygons.Bound()
}

// Intersects reports whether the footprint overlaps the area with positive
// area.
func (a *AreaOfInterest) Intersects(footprint orb.Polygon) (bool, error) {
	if !a.Bound().Intersects(footprint.Bound()) {
		return false, nil
	}
	return geometry.Intersects(a.polygons, footprint)
}
