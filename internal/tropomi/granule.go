// Package tropomi reads Sentinel-5P TROPOMI granules: per-pixel geolocation,
// per-scanline timestamps, and the swath footprint.
package tropomi

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/robert-malhotra/swath-collocate/internal/footprint"
	"github.com/robert-malhotra/swath-collocate/internal/scanline"
)

// Variable names in the PRODUCT group of a TROPOMI L2 granule.
const (
	ProductGroup = "PRODUCT"
	LatitudeVar  = "latitude"
	LongitudeVar = "longitude"
	DeltaTimeVar = "delta_time"
	TimeVar      = "time"
)

// Epoch is the reference of the PRODUCT/time variable.
var Epoch = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

// fillThreshold catches the netCDF default float fill (9.96921e36) when a
// variable carries no _FillValue attribute.
const fillThreshold = 1e30

// Granule is the geolocation content of one granule file.
type Granule struct {
	Grid      scanline.Grid
	Scanlines []footprint.Scanline
}

// ReadGranule reads the geolocation grid and scanline times of the granule
// at path. Fill-valued pixels become NaN in the grid.
func ReadGranule(path string) (*Granule, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v: %w", path, err, footprint.ErrMalformedMetadata)
	}
	defer nc.Close()

	product, err := nc.GetGroup(ProductGroup)
	if err != nil {
		return nil, fmt.Errorf("%s: no %s group: %v: %w", path, ProductGroup, err, footprint.ErrMalformedMetadata)
	}
	defer product.Close()

	lat, latShape, err := readVar(product, LatitudeVar)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	lon, lonShape, err := readVar(product, LongitudeVar)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !reflect.DeepEqual(latShape, lonShape) || len(latShape) < 2 {
		return nil, fmt.Errorf("%s: latitude %v and longitude %v shapes differ: %w",
			path, latShape, lonShape, footprint.ErrMalformedMetadata)
	}
	rows, cols := latShape[len(latShape)-2], latShape[len(latShape)-1]
	// Only the first time step is used; TROPOMI granules have one.
	n := rows * cols

	delta, _, err := readVar(product, DeltaTimeVar)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ref, _, err := readVar(product, TimeVar)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(ref) == 0 || math.IsNaN(ref[0]) {
		return nil, fmt.Errorf("%s: empty reference time: %w", path, footprint.ErrMalformedMetadata)
	}
	if len(delta) < rows {
		return nil, fmt.Errorf("%s: %d delta times for %d scanlines: %w", path, len(delta), rows, footprint.ErrMalformedMetadata)
	}

	base := Epoch.Add(time.Duration(ref[0] * float64(time.Second)))
	stamps := make([]footprint.Scanline, rows)
	for i := 0; i < rows; i++ {
		if math.IsNaN(delta[i]) {
			return nil, fmt.Errorf("%s: scanline %d has no delta time: %w", path, i, footprint.ErrMalformedMetadata)
		}
		stamps[i] = footprint.Scanline{
			Index: i,
			Time:  base.Add(time.Duration(delta[i] * float64(time.Millisecond))),
		}
	}

	return &Granule{
		Grid: scanline.Grid{
			Scanlines:    rows,
			GroundPixels: cols,
			Lon:          lon[:n],
			Lat:          lat[:n],
		},
		Scanlines: stamps,
	}, nil
}

// readVar reads a numeric variable as a flat row-major slice plus its shape.
// Values equal to _FillValue, or beyond fillThreshold, become NaN.
func readVar(g api.Group, name string) ([]float64, []int, error) {
	v, err := g.GetVariable(name)
	if err != nil {
		return nil, nil, fmt.Errorf("variable %s: %v: %w", name, err, footprint.ErrMalformedMetadata)
	}

	values, shape, err := flatten(v.Values)
	if err != nil {
		return nil, nil, fmt.Errorf("variable %s: %v: %w", name, err, footprint.ErrMalformedMetadata)
	}

	fill := math.NaN()
	if v.Attributes != nil {
		if raw, ok := v.Attributes.Get("_FillValue"); ok {
			if f, _, err := flatten(raw); err == nil && len(f) > 0 {
				fill = f[0]
			}
		}
	}
	for i, x := range values {
		if x == fill || math.Abs(x) > fillThreshold {
			values[i] = math.NaN()
		}
	}
	return values, shape, nil
}

var errNotNumeric = errors.New("not a numeric array")

// flatten walks nested slices of a numeric type. The shape is taken from the
// first element at each depth; ragged input is rejected.
func flatten(v any) ([]float64, []int, error) {
	rv := reflect.ValueOf(v)
	var shape []int
	for t := rv; t.Kind() == reflect.Slice || t.Kind() == reflect.Array; {
		shape = append(shape, t.Len())
		if t.Len() == 0 {
			break
		}
		t = t.Index(0)
	}

	size := 1
	for _, d := range shape {
		size *= d
	}
	out := make([]float64, 0, size)

	var walk func(reflect.Value, int) error
	walk = func(x reflect.Value, depth int) error {
		if depth < len(shape) {
			if x.Kind() != reflect.Slice && x.Kind() != reflect.Array {
				return errNotNumeric
			}
			if x.Len() != shape[depth] {
				return fmt.Errorf("ragged array at depth %d", depth)
			}
			for i := 0; i < x.Len(); i++ {
				if err := walk(x.Index(i), depth+1); err != nil {
					return err
				}
			}
			return nil
		}
		switch x.Kind() {
		case reflect.Float32, reflect.Float64:
			out = append(out, x.Float())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out = append(out, float64(x.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out = append(out, float64(x.Uint()))
		default:
			return errNotNumeric
		}
		return nil
	}
	if err := walk(rv, 0); err != nil {
		return nil, nil, err
	}
	return out, shape, nil
}
