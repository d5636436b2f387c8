// Package geometry provides footprint geometry utilities on top of orb:
// normalisation, validation, exact polygon intersection, and WKT/GeoJSON
// decoding.
package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// MinArea is the smallest area, in squared degrees, that counts as a
// non-degenerate polygon or overlap.
const MinArea = 1e-12

var (
	// ErrUnsupportedType is returned for geometries that are not areal.
	ErrUnsupportedType = errors.New("unsupported geometry type")

	// ErrInvalid is returned when a polygon is empty, unclosed, non-finite or
	// has no area.
	ErrInvalid = errors.New("invalid polygon")
)

// Polygons normalises an areal geometry (Ring, Polygon, MultiPolygon, Bound)
// into a MultiPolygon.
func Polygons(g orb.Geometry) (orb.MultiPolygon, error) {
	switch v := g.(type) {
	case nil:
		return nil, fmt.Errorf("geometry is nil: %w", ErrUnsupportedType)
	case orb.Ring:
		return orb.MultiPolygon{orb.Polygon{v}}, nil
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	case orb.MultiPolygon:
		return v, nil
	case orb.Bound:
		return orb.MultiPolygon{v.ToPolygon()}, nil
	default:
		return nil, fmt.Errorf("%s: %w", g.GeoJSONType(), ErrUnsupportedType)
	}
}

// NewPolygonFromBBox creates a polygon from a bounding box.
// bbox should be [west, south, east, north].
func NewPolygonFromBBox(bbox []float64) (orb.Polygon, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values [west, south, east, north], got %d", len(bbox))
	}

	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]
	if west >= east || south >= north {
		return nil, fmt.Errorf("bbox %v is empty: %w", bbox, ErrInvalid)
	}

	return orb.Polygon{orb.Ring{
		{west, south},
		{east, south},
		{east, north},
		{west, north},
		{west, south},
	}}, nil
}

// ClosedRing returns the points as a ring whose last point repeats the first.
func ClosedRing(points []orb.Point) orb.Ring {
	ring := make(orb.Ring, len(points), len(points)+1)
	copy(ring, points)
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// Area returns the unsigned planar area of an areal geometry.
func Area(g orb.Geometry) float64 {
	if g == nil {
		return 0
	}
	return math.Abs(planar.Area(g))
}

// Validate checks every polygon of g: exterior ring closed with at least four
// points, finite coordinates, and an area of at least MinArea.
func Validate(g orb.Geometry) error {
	polygons, err := Polygons(g)
	if err != nil {
		return err
	}
	if len(polygons) == 0 {
		return fmt.Errorf("empty geometry: %w", ErrInvalid)
	}

	for i, p := range polygons {
		if len(p) == 0 || len(p[0]) < 4 {
			return fmt.Errorf("polygon %d: exterior ring needs at least 4 points: %w", i, ErrInvalid)
		}
		if !p[0].Closed() {
			return fmt.Errorf("polygon %d: exterior ring is not closed: %w", i, ErrInvalid)
		}
		for _, ring := range p {
			for _, pt := range ring {
				if !finite(pt) {
					return fmt.Errorf("polygon %d: non-finite coordinate %v: %w", i, pt, ErrInvalid)
				}
			}
		}
	}

	if Area(polygons) < MinArea {
		return fmt.Errorf("area below %g: %w", MinArea, ErrInvalid)
	}
	return nil
}

// Intersection computes the exact intersection of two areal geometries.
// An empty MultiPolygon is returned when they do not overlap.
func Intersection(a, b orb.Geometry) (orb.MultiPolygon, error) {
	pa, err := Polygons(a)
	if err != nil {
		return nil, err
	}
	pb, err := Polygons(b)
	if err != nil {
		return nil, err
	}

	if !pa.Bound().Intersects(pb.Bound()) {
		return orb.MultiPolygon{}, nil
	}

	result := toClip(pa).Construct(polyclip.INTERSECTION, toClip(pb))
	return fromClip(result), nil
}

// Intersects reports whether two areal geometries overlap with an area of at
// least MinArea. Touching boundaries do not count.
func Intersects(a, b orb.Geometry) (bool, error) {
	overlap, err := Intersection(a, b)
	if err != nil {
		return false, err
	}
	return Area(overlap) >= MinArea, nil
}

// MakeValid removes self-intersections and repeated edges.
func MakeValid(g orb.Geometry) (orb.MultiPolygon, error) {
	polygons, err := Polygons(g)
	if err != nil {
		return nil, err
	}
	return fromClip(toClip(polygons).MakeValid()), nil
}

// Largest returns the polygon with the largest area.
func Largest(mp orb.MultiPolygon) (orb.Polygon, bool) {
	var (
		best     orb.Polygon
		bestArea float64
	)
	for _, p := range mp {
		if area := Area(p); area > bestArea {
			best, bestArea = p, area
		}
	}
	return best, best != nil
}

// FromWKT parses a WKT POLYGON or MULTIPOLYGON.
func FromWKT(s string) (orb.MultiPolygon, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse WKT: %w", err)
	}
	return Polygons(g)
}

// FromGeoJSON parses a GeoJSON Geometry, Feature or FeatureCollection and
// returns the union of its polygons as a MultiPolygon.
func FromGeoJSON(data []byte) (orb.MultiPolygon, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("failed to decode GeoJSON: %w", err)
	}

	var geometries []orb.Geometry
	switch header.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode FeatureCollection: %w", err)
		}
		for _, f := range fc.Features {
			geometries = append(geometries, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode Feature: %w", err)
		}
		geometries = append(geometries, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode geometry: %w", err)
		}
		geometries = append(geometries, g.Geometry())
	}

	var out orb.MultiPolygon
	for _, g := range geometries {
		polygons, err := Polygons(g)
		if err != nil {
			return nil, err
		}
		out = append(out, polygons...)
	}
	return out, nil
}

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}

// toClip converts polygons into polyclip contours. Closing points are
// dropped; polyclip treats every contour as implicitly closed.
func toClip(mp orb.MultiPolygon) polyclip.Polygon {
	var out polyclip.Polygon
	for _, p := range mp {
		for _, ring := range p {
			n := len(ring)
			if n > 1 && ring[0] == ring[n-1] {
				n--
			}
			if n < 3 {
				continue
			}
			contour := make(polyclip.Contour, n)
			for i := 0; i < n; i++ {
				contour[i] = polyclip.Point{X: ring[i][0], Y: ring[i][1]}
			}
			out = append(out, contour)
		}
	}
	return out
}

// fromClip rebuilds polygons from polyclip contours, which carry no shell/hole
// structure. A contour nested inside an odd number of larger contours is a hole
// of the smallest shell that contains it.
func fromClip(p polyclip.Polygon) orb.MultiPolygon {
	type contour struct {
		ring orb.Ring
		area float64
	}

	contours := make([]contour, 0, len(p))
	for _, c := range p {
		if len(c) < 3 {
			continue
		}
		ring := make(orb.Ring, 0, len(c)+1)
		for _, pt := range c {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		ring = append(ring, ring[0])
		if area := Area(ring); area > 0 {
			contours = append(contours, contour{ring: ring, area: area})
		}
	}
	sort.SliceStable(contours, func(i, j int) bool { return contours[i].area > contours[j].area })

	var (
		out     orb.MultiPolygon
		shellOf = make([]int, len(contours))
	)
	for i, c := range contours {
		depth, parent := 0, -1
		for j := 0; j < i; j++ {
			if planar.RingContains(contours[j].ring, c.ring[0]) {
				depth++
				if shellOf[j] >= 0 {
					parent = j
				}
			}
		}

		if depth%2 == 0 {
			if c.ring.Orientation() != orb.CCW {
				c.ring.Reverse()
			}
			shellOf[i] = len(out)
			out = append(out, orb.Polygon{c.ring})
			continue
		}

		shellOf[i] = -1
		if parent < 0 {
			continue
		}
		if c.ring.Orientation() != orb.CW {
			c.ring.Reverse()
		}
		idx := shellOf[parent]
		out[idx] = append(out[idx], c.ring)
	}
	return out
}
