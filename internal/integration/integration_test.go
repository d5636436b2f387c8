// Package integration runs collocate.Run end to end on generated KML and
// HDF5 inputs.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/robert-malhotra/swath-collocate/internal/collocate"
	"github.com/robert-malhotra/swath-collocate/internal/config"
	"github.com/robert-malhotra/swath-collocate/internal/footprint"
	"github.com/robert-malhotra/swath-collocate/internal/report"
	"github.com/robert-malhotra/swath-collocate/internal/tropomi"
	"github.com/robert-malhotra/swath-collocate/pkg/geometry"
)

const tilesKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2"><Document>
  <Placemark>
    <name>5001-001</name>
    <ExtendedData>
      <Data name="date"><value>2024-02-15</value></Data>
      <Data name="time"><value>10:00:00</value></Data>
      <Data name="clouds"><value>12</value></Data>
    </ExtendedData>
    <Polygon><outerBoundaryIs><LinearRing><coordinates>
      10.0,50.0 10.3,50.0 10.3,50.3 10.0,50.3 10.0,50.0
    </coordinates></LinearRing></outerBoundaryIs></Polygon>
  </Placemark>
  <Placemark>
    <name>5001-002</name>
    <ExtendedData>
      <Data name="date"><value>2024-02-15</value></Data>
      <Data name="time"><value>10:00:05</value></Data>
      <Data name="clouds"><value>0</value></Data>
    </ExtendedData>
    <Polygon><outerBoundaryIs><LinearRing><coordinates>
      30.0,50.0 30.3,50.0 30.3,50.3 30.0,50.3 30.0,50.0
    </coordinates></LinearRing></outerBoundaryIs></Polygon>
  </Placemark>
  <Placemark>
    <name>5002-001</name>
    <ExtendedData>
      <Data name="date"><value>2024-02-16</value></Data>
      <Data name="time"><value>10:00:00</value></Data>
      <Data name="clouds"><value>0.5</value></Data>
    </ExtendedData>
    <Polygon><outerBoundaryIs><LinearRing><coordinates>
      10.0,50.0 10.3,50.0 10.3,50.3 10.0,50.3 10.0,50.0
    </coordinates></LinearRing></outerBoundaryIs></Polygon>
  </Placemark>
</Document></kml>`

func granuleName(start time.Time) string {
	stamp := start.UTC().Format("20060102T150405")
	return "S5P_OFFL_L2__CH4____" + stamp + "_" + stamp + "_32800_03_020600_20240217T020000.nc"
}

// writeGranule writes a 30x30 swath over lon 9..11.9, lat 49..51.9 with
// scanline r along latitude 49+r*0.1, sensed start+r seconds.
func writeGranule(t *testing.T, path string, start time.Time) {
	t.Helper()

	const n = 30
	lat := make([][]float32, n)
	lon := make([][]float32, n)
	delta := make([]int32, n)
	for r := 0; r < n; r++ {
		lat[r] = make([]float32, n)
		lon[r] = make([]float32, n)
		for c := 0; c < n; c++ {
			lat[r][c] = float32(49 + float64(r)*0.1)
			lon[r][c] = float32(9 + float64(c)*0.1)
		}
		delta[r] = int32(r * 1000)
	}

	w, err := netcdf.OpenWriter(path, netcdf.KindHDF5)
	require.NoError(t, err)
	product, err := w.CreateGroup(tropomi.ProductGroup)
	require.NoError(t, err)

	grid := []string{"time", "scanline", "ground_pixel"}
	require.NoError(t, product.AddVar(tropomi.LatitudeVar, api.Variable{Values: [][][]float32{lat}, Dimensions: grid}))
	require.NoError(t, product.AddVar(tropomi.LongitudeVar, api.Variable{Values: [][][]float32{lon}, Dimensions: grid}))
	require.NoError(t, product.AddVar(tropomi.DeltaTimeVar, api.Variable{Values: [][]int32{delta}, Dimensions: []string{"time", "scanline"}}))
	require.NoError(t, product.AddVar(tropomi.TimeVar, api.Variable{
		Values:     []int32{int32(start.Sub(tropomi.Epoch) / time.Second)},
		Dimensions: []string{"time"},
	}))
	require.NoError(t, w.Close())
}

type pipeline struct {
	cfg  *config.Config
	logs bytes.Buffer
}

// setupPipeline writes the inputs under a temp dir and loads configuration
// pointing at them.
func setupPipeline(t *testing.T, granules ...time.Time) *pipeline {
	t.Helper()
	dir := t.TempDir()

	kml := filepath.Join(dir, "tiles.kml")
	require.NoError(t, os.WriteFile(kml, []byte(tilesKML), 0o644))

	granuleDir := filepath.Join(dir, "tropomi")
	require.NoError(t, os.Mkdir(granuleDir, 0o755))
	for _, start := range granules {
		writeGranule(t, filepath.Join(granuleDir, granuleName(start)), start)
	}

	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(outDir, 0o755))

	t.Setenv("INPUT_ENMAP_KML", kml)
	t.Setenv("INPUT_TROPOMI_DIR", granuleDir)
	t.Setenv("INPUT_WORK_DIR", filepath.Join(dir, "work"))
	t.Setenv("WINDOW_YEAR", "2024")
	t.Setenv("WINDOW_MONTH", "2")
	t.Setenv("MATCH_WORKERS", "2")
	t.Setenv("OUTPUT_DIR", outDir)

	cfg, err := config.Load()
	require.NoError(t, err)

	return &pipeline{cfg: cfg}
}

func (p *pipeline) run(ctx context.Context) (*collocate.Summary, error) {
	return collocate.Run(ctx, p.cfg, afs.New(), zerolog.New(zerolog.SyncWriter(&p.logs)))
}

// finished returns the final summary log entry.
func (p *pipeline) finished(t *testing.T) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(p.logs.Bytes()))
	for dec.More() {
		var entry map[string]any
		require.NoError(t, dec.Decode(&entry))
		if entry["message"] == "collocation finished" {
			return entry
		}
	}
	t.Fatal("no summary log entry")
	return nil
}

func TestPipeline(t *testing.T) {
	early := time.Date(2024, 2, 15, 9, 59, 0, 0, time.UTC)
	late := time.Date(2024, 2, 15, 10, 5, 0, 0, time.UTC)
	p := setupPipeline(t, late, early)

	summary, err := p.run(context.Background())
	require.NoError(t, err)
	result := summary.Result

	assert.Equal(t, "closest_pairs_output_2024_2.txt", filepath.Base(summary.Output))
	assert.Empty(t, result.Failures)
	assert.Equal(t, []string{"5001-002", "5002-001"}, result.Unmatched)
	require.Len(t, result.Pairs, 1)

	f, err := os.Open(filepath.Join(p.cfg.Output.Dir, filepath.Base(summary.Output)))
	require.NoError(t, err)
	defer f.Close()
	records, err := report.Parse(f)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	earlyName := granuleName(early)
	assert.Equal(t, "5001-001", rec.TileID)
	assert.Equal(t, earlyName[:len(earlyName)-len(tropomi.Extension)], rec.Granule)
	assert.Equal(t, time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC), rec.TileTime)
	// 12 in the same document makes every clouds value a percentage.
	assert.InDelta(t, 0.12, rec.CloudFraction, 1e-9)
	// Overlapping scanlines 10..13 put the granule at 09:59:11.5.
	assert.InDelta(t, 48.5/60, rec.TimeDifference, 0.05)
	assert.InDelta(t, 0.09, geometry.Area(rec.Overlap), 1e-6)

	b := rec.Overlap.Bound()
	assert.InDelta(t, 10.0, b.Min.X(), 1e-6)
	assert.InDelta(t, 50.3, b.Max.Y(), 1e-6)

	logged := p.finished(t)
	assert.EqualValues(t, 1, logged["pairs"])
	assert.EqualValues(t, 2, logged["unmatched"])
	assert.Equal(t, []any{}, logged["failed_tiles"])
}

func TestPipeline_NoGranules(t *testing.T) {
	p := setupPipeline(t)

	_, err := p.run(context.Background())
	assert.True(t, errors.Is(err, footprint.ErrNoInput), "got %v", err)
}

func TestPipeline_NothingInWindow(t *testing.T) {
	p := setupPipeline(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	summary, err := p.run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Result.Pairs)
	assert.Len(t, summary.Result.Unmatched, 3)

	data, err := os.ReadFile(filepath.Join(p.cfg.Output.Dir, filepath.Base(summary.Output)))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestPipeline_TileTimeouts(t *testing.T) {
	p := setupPipeline(t, time.Date(2024, 2, 15, 9, 59, 0, 0, time.UTC))
	p.cfg.Match.TileTimeout = time.Nanosecond

	summary, err := p.run(context.Background())
	require.NoError(t, err)

	// Tiles with same-day candidates time out; the run still completes.
	assert.Equal(t, []string{"5001-001", "5001-002"}, summary.FailedTiles())
	assert.Equal(t, []string{"5002-001"}, summary.Result.Unmatched)
	for _, f := range summary.Result.Failures {
		assert.True(t, errors.Is(f.Err, footprint.ErrWorkerFailure), "got %v", f.Err)
	}

	data, err := os.ReadFile(filepath.Join(p.cfg.Output.Dir, filepath.Base(summary.Output)))
	require.NoError(t, err)
	assert.Empty(t, data)

	logged := p.finished(t)
	assert.Equal(t, []any{"5001-001", "5001-002"}, logged["failed_tiles"])
	assert.EqualValues(t, 0, logged["pairs"])
}

func TestPipeline_Canceled(t *testing.T) {
	p := setupPipeline(t, time.Date(2024, 2, 15, 9, 59, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.run(ctx)
	assert.Error(t, err)
}
