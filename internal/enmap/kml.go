// Package enmap reads EnMAP tile metadata from KML exports.
package enmap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/robert-malhotra/swath-collocate/internal/footprint"
	"github.com/robert-malhotra/swath-collocate/pkg/geometry"
)

type placemark struct {
	Name     string       `xml:"name"`
	Data     []data       `xml:"ExtendedData>Data"`
	Polygon  []kmlPolygon `xml:"Polygon"`
	Polygons []kmlPolygon `xml:"MultiGeometry>Polygon"`
}

type data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type kmlPolygon struct {
	Coordinates string `xml:"outerBoundaryIs>LinearRing>coordinates"`
}

var (
	// ENMAP01-____L1B-DT0000004950_20240215T100003Z_003_V010400_...
	productName = regexp.MustCompile(`(?i)DT(\d+)_(?:\d{8}T\d{6}Z_)?(\d+)`)
	// 0000004950-003
	shortName = regexp.MustCompile(`^([A-Za-z0-9]+)[-_](\d+)$`)
)

// Decoded is the result of reading one KML document.
type Decoded struct {
	Tiles []*footprint.Tile
	// Skipped holds one ErrMalformedMetadata error per placemark that could
	// not be turned into a tile.
	Skipped    []error
	Placemarks int
}

// CloudScale is the unit of the clouds values in a KML document.
type CloudScale string

const (
	// CloudScaleAuto reads the whole document as percentages when any value
	// exceeds 1, and as fractions otherwise.
	CloudScaleAuto     CloudScale = "auto"
	CloudScaleFraction CloudScale = "fraction"
	CloudScalePercent  CloudScale = "percent"
)

// Valid reports whether s is a known scale.
func (s CloudScale) Valid() bool {
	switch s {
	case CloudScaleAuto, CloudScaleFraction, CloudScalePercent:
		return true
	}
	return false
}

// divisor returns the factor every unsuffixed clouds value of the document
// is divided by.
func (s CloudScale) divisor(pms []placemark) (float64, error) {
	switch s {
	case CloudScaleFraction:
		return 1, nil
	case CloudScalePercent:
		return 100, nil
	case CloudScaleAuto, "":
		for i := range pms {
			if v, pct, err := ParseCloudCover(pms[i].field("clouds")); err == nil && (pct || v > 1) {
				return 100, nil
			}
		}
		return 1, nil
	default:
		return 0, fmt.Errorf("unknown cloud scale %q", string(s))
	}
}

// Decode streams every Placemark of a KML document, at any nesting depth,
// into tiles. The clouds unit is settled once for the whole document by
// scale. Malformed placemarks are reported in Decoded.Skipped; only a broken
// XML stream or an unknown scale is returned as an error.
func Decode(r io.Reader, scale CloudScale) (*Decoded, error) {
	dec := xml.NewDecoder(r)
	out := &Decoded{}
	var pms []placemark
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("failed to read KML: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Placemark" {
			continue
		}
		var pm placemark
		if err := dec.DecodeElement(&pm, &start); err != nil {
			return out, fmt.Errorf("failed to read KML placemark %d: %w", len(pms)+1, err)
		}
		pms = append(pms, pm)
	}
	out.Placemarks = len(pms)

	divisor, err := scale.divisor(pms)
	if err != nil {
		return out, err
	}
	for i := range pms {
		tile, err := pms[i].tile(divisor)
		if err != nil {
			out.Skipped = append(out.Skipped, fmt.Errorf("placemark %d (%q): %w", i+1, pms[i].Name, err))
			continue
		}
		out.Tiles = append(out.Tiles, tile)
	}
	return out, nil
}

func (pm *placemark) field(name string) string {
	for _, d := range pm.Data {
		if strings.EqualFold(d.Name, name) {
			return strings.TrimSpace(d.Value)
		}
	}
	return ""
}

func (pm *placemark) tile(cloudDivisor float64) (*footprint.Tile, error) {
	name := strings.TrimSpace(pm.Name)
	datatake, number, err := pm.identity(name)
	if err != nil {
		return nil, err
	}

	start, stop, err := pm.times()
	if err != nil {
		return nil, err
	}

	clouds, pct, err := ParseCloudCover(pm.field("clouds"))
	if err != nil {
		return nil, err
	}
	if pct {
		clouds /= 100
	} else {
		clouds /= cloudDivisor
	}

	var coords string
	switch {
	case len(pm.Polygon) > 0:
		coords = pm.Polygon[0].Coordinates
	case len(pm.Polygons) > 0:
		coords = pm.Polygons[0].Coordinates
	default:
		return nil, fmt.Errorf("no polygon: %w", footprint.ErrMalformedMetadata)
	}
	ring, err := ParseCoordinates(coords)
	if err != nil {
		return nil, err
	}

	t := &footprint.Tile{
		Name:          name,
		DatatakeID:    datatake,
		TileNumber:    number,
		Footprint:     orb.Polygon{ring},
		Start:         start,
		Stop:          stop,
		CloudFraction: clouds,
	}
	t.Date = footprint.DayOf(t.Midpoint())
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (pm *placemark) identity(name string) (string, string, error) {
	if dt, tile := pm.field("datatakeId"), pm.field("tileId"); dt != "" && tile != "" {
		return dt, tile, nil
	}
	if m := productName.FindStringSubmatch(name); m != nil {
		return m[1], m[2], nil
	}
	if m := shortName.FindStringSubmatch(name); m != nil {
		return m[1], m[2], nil
	}
	return "", "", fmt.Errorf("no datatake/tile identity in name %q: %w", name, footprint.ErrMalformedMetadata)
}

// times prefers explicit start/stop fields and falls back to the single
// date+time stamp, giving a zero-length observation.
func (pm *placemark) times() (time.Time, time.Time, error) {
	if s, e := pm.field("startTime"), pm.field("stopTime"); s != "" && e != "" {
		start, err := ParseTime(s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("startTime: %v: %w", err, footprint.ErrMalformedMetadata)
		}
		stop, err := ParseTime(e)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("stopTime: %v: %w", err, footprint.ErrMalformedMetadata)
		}
		return start, stop, nil
	}

	t, err := ParseDateTime(pm.field("date"), pm.field("time"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%v: %w", err, footprint.ErrMalformedMetadata)
	}
	return t, t, nil
}

// ParseCloudCover reads a raw clouds value. pct reports an explicit "%"
// suffix. The value is not rescaled; negative values and values above 100
// are rejected.
func ParseCloudCover(s string) (value float64, pct bool, err error) {
	s = strings.TrimSpace(s)
	if trimmed := strings.TrimSuffix(s, "%"); trimmed != s {
		s, pct = strings.TrimSpace(trimmed), true
	}
	if s == "" {
		return 0, false, fmt.Errorf("missing cloud cover: %w", footprint.ErrMalformedMetadata)
	}
	value, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cloud cover %q: %v: %w", s, err, footprint.ErrMalformedMetadata)
	}
	if value < 0 || value > 100 || math.IsNaN(value) {
		return 0, false, fmt.Errorf("cloud cover %g out of range: %w", value, footprint.ErrMalformedMetadata)
	}
	return value, pct, nil
}

// ParseCoordinates reads a KML coordinates string of whitespace-separated
// lon,lat[,alt] tuples into a closed ring.
func ParseCoordinates(s string) (orb.Ring, error) {
	fields := strings.Fields(s)
	points := make([]orb.Point, 0, len(fields))
	for _, f := range fields {
		parts := strings.Split(f, ",")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("coordinate %q is not lon,lat[,alt]: %w", f, footprint.ErrMalformedMetadata)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("longitude %q: %w", parts[0], footprint.ErrMalformedMetadata)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("latitude %q: %w", parts[1], footprint.ErrMalformedMetadata)
		}
		points = append(points, orb.Point{lon, lat})
	}
	if len(points) < 3 {
		return nil, fmt.Errorf("footprint has %d points: %w", len(points), footprint.ErrMalformedMetadata)
	}
	return geometry.ClosedRing(points), nil
}
