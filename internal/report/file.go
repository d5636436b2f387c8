package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/robert-malhotra/swath-collocate/internal/footprint"
	"github.com/robert-malhotra/swath-collocate/internal/match"
)

// WriteFile writes the pairs to <dir>/Filename(window) and returns the URL
// written. dir may be a local path or any URL the storage service supports.
// The file is written even when there are no pairs.
func WriteFile(ctx context.Context, fs afs.Service, dir string, window footprint.TimeWindow, pairs []*match.Pair) (string, error) {
	records := make([]Record, len(pairs))
	for i, p := range pairs {
		records[i] = FromPair(p)
	}

	var buf bytes.Buffer
	if err := Write(&buf, records); err != nil {
		return "", err
	}

	dest := url.Join(dir, Filename(window))
	if err := fs.Upload(ctx, dest, file.DefaultFileOsMode, &buf); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return dest, nil
}
