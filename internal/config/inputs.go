package config

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/viant/afs"

	"github.com/robert-malhotra/swath-collocate/internal/footprint"
	"github.com/robert-malhotra/swath-collocate/pkg/geometry"
)

// TimeWindow returns the configured window.
func (w WindowConfig) TimeWindow() (footprint.TimeWindow, error) {
	return footprint.NewTimeWindow(w.Year, w.Month, w.Day)
}

// AreaOfInterest resolves the configured area. A GeoJSON file is read
// through fs, so it may live anywhere fs can reach.
func (a AOIConfig) AreaOfInterest(ctx context.Context, fs afs.Service) (*footprint.AreaOfInterest, error) {
	var (
		g   orb.Geometry
		err error
	)
	switch {
	case a.File != "":
		g, err = loadGeoJSON(ctx, fs, a.File)
	case len(a.BBox) > 0:
		g, err = geometry.NewPolygonFromBBox(a.BBox)
	default:
		g, err = geometry.FromWKT(a.WKT)
	}
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, footprint.ErrInvalidAreaOfInterest)
	}
	return footprint.NewAreaOfInterest(g)
}

func loadGeoJSON(ctx context.Context, fs afs.Service, URL string) (orb.MultiPolygon, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read area file %q: %w", URL, err)
	}
	g, err := geometry.FromGeoJSON(data)
	if err != nil {
		return nil, fmt.Errorf("area file %q: %w", URL, err)
	}
	return g, nil
}
