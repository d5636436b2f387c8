package enmap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/viant/afs"

	"github.com/robert-malhotra/swath-collocate/internal/footprint"
)

// Load downloads and decodes the KML at URL, reading clouds values on the
// given scale. Skipped placemarks are logged
// as warnings. A document that cannot be read, or that holds no placemarks at
// all, is ErrNoInput.
func Load(ctx context.Context, fs afs.Service, URL string, scale CloudScale, logger zerolog.Logger) (*Decoded, error) {
	reader, err := fs.OpenURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open EnMAP metadata %s: %v: %w", URL, err, footprint.ErrNoInput)
	}
	defer reader.Close()

	decoded, err := Decode(reader, scale)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", URL, err, footprint.ErrNoInput)
	}
	if decoded.Placemarks == 0 {
		return nil, fmt.Errorf("%s has no placemarks: %w", URL, footprint.ErrNoInput)
	}

	for _, skipped := range decoded.Skipped {
		logger.Warn().Err(skipped).Str("source", URL).Msg("skipping placemark")
	}
	logger.Info().
		Str("source", URL).
		Int("placemarks", decoded.Placemarks).
		Int("tiles", len(decoded.Tiles)).
		Int("skipped", len(decoded.Skipped)).
		Msg("loaded EnMAP tiles")

	return decoded, nil
}
