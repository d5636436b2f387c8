// Package scanline maps geometry onto the along-track scanlines of a
// wide-swath granule and resolves the acquisition time of an overlap.
package scanline

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/robert-malhotra/swath-collocate/internal/footprint"
	"github.com/robert-malhotra/swath-collocate/pkg/geometry"
)

// Grid is the per-pixel geolocation of a granule, stored row-major with one
// row per scanline. Pixels with a NaN coordinate are invalid and ignored.
type Grid struct {
	Scanlines    int
	GroundPixels int
	Lon          []float64
	Lat          []float64
}

// Validate checks that the coordinate arrays match the grid shape.
func (g Grid) Validate() error {
	if g.Scanlines <= 0 || g.GroundPixels <= 0 {
		return fmt.Errorf("grid shape %dx%d is empty: %w", g.Scanlines, g.GroundPixels, footprint.ErrMalformedMetadata)
	}
	n := g.Scanlines * g.GroundPixels
	if len(g.Lon) != n || len(g.Lat) != n {
		return fmt.Errorf("grid %dx%d has %d longitudes and %d latitudes: %w",
			g.Scanlines, g.GroundPixels, len(g.Lon), len(g.Lat), footprint.ErrMalformedMetadata)
	}
	return nil
}

func (g Grid) at(row, col int) (orb.Point, bool) {
	i := row*g.GroundPixels + col
	lon, lat := g.Lon[i], g.Lat[i]
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return orb.Point{}, false
	}
	return orb.Point{lon, lat}, true
}

type row struct {
	bound  orb.Bound
	points []orb.Point
}

// Index answers spatial queries against one granule's scanlines. It is
// immutable once built and safe for concurrent use.
type Index struct {
	grid Grid
	rows []row
	tree *kdtree.Tree
}

// NewIndex builds the per-scanline bounds and a kd-tree over every valid
// pixel.
func NewIndex(g Grid) (*Index, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	idx := &Index{grid: g, rows: make([]row, g.Scanlines)}
	var all pixels
	for r := 0; r < g.Scanlines; r++ {
		var pts []orb.Point
		for c := 0; c < g.GroundPixels; c++ {
			pt, ok := g.at(r, c)
			if !ok {
				continue
			}
			pts = append(pts, pt)
			all = append(all, pixel{lon: pt[0], lat: pt[1], scanline: r})
		}
		if len(pts) == 0 {
			continue
		}
		b := orb.Bound{Min: pts[0], Max: pts[0]}
		for _, pt := range pts[1:] {
			b = b.Extend(pt)
		}
		idx.rows[r] = row{bound: b, points: pts}
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("grid has no valid pixels: %w", footprint.ErrGeometryDegenerate)
	}
	idx.tree = kdtree.New(all, false)
	return idx, nil
}

// Scanlines returns the number of scanlines in the grid.
func (idx *Index) Scanlines() int {
	return idx.grid.Scanlines
}

// Nearest returns the scanline of the valid pixel closest to p and the planar
// distance to it in degrees.
func (idx *Index) Nearest(p orb.Point) (int, float64) {
	c, d := idx.tree.Nearest(pixel{lon: p[0], lat: p[1]})
	if c == nil {
		return -1, math.Inf(1)
	}
	return c.(pixel).scanline, math.Sqrt(d)
}

// Overlapping returns the first and last scanline with at least one valid
// pixel inside mp. ok is false when no pixel falls inside.
func (idx *Index) Overlapping(mp orb.MultiPolygon) (first, last int, ok bool) {
	if len(mp) == 0 {
		return 0, 0, false
	}
	b := mp.Bound()
	first, last = -1, -1
	for r, rw := range idx.rows {
		if len(rw.points) == 0 || !rw.bound.Intersects(b) {
			continue
		}
		for _, pt := range rw.points {
			if b.Contains(pt) && planar.MultiPolygonContains(mp, pt) {
				if first < 0 {
					first = r
				}
				last = r
				break
			}
		}
	}
	return first, last, first >= 0
}

// Outline traces the grid edge (first row, right column, last row, left
// column) into a polygon, simplified with the given Douglas-Peucker tolerance
// in degrees. Self-intersections are removed and the largest part is kept.
func (idx *Index) Outline(tolerance float64) (orb.Polygon, error) {
	var valid []int
	for r, rw := range idx.rows {
		if len(rw.points) > 0 {
			valid = append(valid, r)
		}
	}
	if len(valid) < 2 {
		return nil, fmt.Errorf("outline needs two scanlines with valid pixels, have %d: %w",
			len(valid), footprint.ErrGeometryDegenerate)
	}

	top, bottom := idx.rows[valid[0]].points, idx.rows[valid[len(valid)-1]].points
	edge := make([]orb.Point, 0, len(top)+len(bottom)+2*len(valid))
	edge = append(edge, top...)
	for _, r := range valid[1 : len(valid)-1] {
		pts := idx.rows[r].points
		edge = append(edge, pts[len(pts)-1])
	}
	for i := len(bottom) - 1; i >= 0; i-- {
		edge = append(edge, bottom[i])
	}
	for i := len(valid) - 2; i > 0; i-- {
		edge = append(edge, idx.rows[valid[i]].points[0])
	}

	ring := geometry.ClosedRing(edge)
	if tolerance > 0 {
		ring = simplify.DouglasPeucker(tolerance).Ring(ring)
	}
	repaired, err := geometry.MakeValid(orb.Polygon{ring})
	if err != nil {
		return nil, err
	}
	outline, ok := geometry.Largest(repaired)
	if !ok {
		return nil, fmt.Errorf("outline has no area: %w", footprint.ErrGeometryDegenerate)
	}
	return outline, nil
}

type pixel struct {
	lon, lat float64
	scanline int
}

func (p pixel) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(pixel)
	if d == 0 {
		return p.lon - q.lon
	}
	return p.lat - q.lat
}

func (p pixel) Dims() int { return 2 }

// Distance is squared planar distance.
func (p pixel) Distance(c kdtree.Comparable) float64 {
	q := c.(pixel)
	dx, dy := p.lon-q.lon, p.lat-q.lat
	return dx*dx + dy*dy
}

type pixels []pixel

func (p pixels) Index(i int) kdtree.Comparable         { return p[i] }
func (p pixels) Len() int                              { return len(p) }
func (p pixels) Pivot(d kdtree.Dim) int                { return plane{pixels: p, Dim: d}.Pivot() }
func (p pixels) Slice(start, end int) kdtree.Interface { return p[start:end] }

type plane struct {
	kdtree.Dim
	pixels
}

func (p plane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.pixels[i].lon < p.pixels[j].lon
	}
	return p.pixels[i].lat < p.pixels[j].lat
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.pixels = p.pixels[start:end]
	return p
}
func (p plane) Swap(i, j int) { p.pixels[i], p.pixels[j] = p.pixels[j], p.pixels[i] }
