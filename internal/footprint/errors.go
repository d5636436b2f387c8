package footprint

import "errors"

var (
	// ErrMalformedMetadata is returned when a single source record cannot be
	// parsed. The record is skipped; the load continues.
	ErrMalformedMetadata = errors.New("malformed metadata")

	// ErrGeometryDegenerate is returned when an intersection, centroid or
	// scanline lookup yields an empty or invalid geometry. The candidate pair
	// is dropped.
	ErrGeometryDegenerate = errors.New("degenerate geometry")

	// ErrWorkerFailure is returned when a per-tile unit fails unexpectedly
	// (panic or timeout). The tile is omitted from the output.
	ErrWorkerFailure = errors.New("worker failure")

	// ErrInvalidAreaOfInterest is returned when the area of interest cannot be
	// used. The run aborts.
	ErrInvalidAreaOfInterest = errors.New("invalid area of interest")

	// ErrInvalidTimeWindow is returned for an impossible year/month/day
	// combination. The run aborts.
	ErrInvalidTimeWindow = errors.New("invalid time window")

	// ErrNoInput is returned when no input records or files are found at all.
	// The run aborts.
	ErrNoInput = errors.New("no input found")
)
