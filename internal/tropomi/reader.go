package tropomi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/robert-malhotra/swath-collocate/internal/footprint"
	"github.com/robert-malhotra/swath-collocate/internal/scanline"
)

// Extension is the granule file extension.
const Extension = ".nc"

// DefaultFootprintTolerance is the Douglas-Peucker tolerance, in degrees,
// applied to the swath outline.
const DefaultFootprintTolerance = 0.01

// Options configures a Reader.
type Options struct {
	// WorkDir receives copies of granules that are not on the local disk.
	WorkDir string
	// CacheSize is the number of scanline indexes kept in memory.
	CacheSize int
	// FootprintTolerance simplifies the swath outline.
	FootprintTolerance float64
}

// Reader loads granules through a storage service and keeps the scanline
// indexes of recently used granules. It is safe for concurrent use.
type Reader struct {
	fs       afs.Service
	opts     Options
	indexes  *lru.Cache[string, *scanline.Index]
	inflight singleflight.Group
	logger   zerolog.Logger
}

// NewReader creates a reader.
func NewReader(fs afs.Service, opts Options, logger zerolog.Logger) (*Reader, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 16
	}
	if opts.FootprintTolerance < 0 {
		opts.FootprintTolerance = DefaultFootprintTolerance
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "swath-collocate")
	}
	cache, err := lru.New[string, *scanline.Index](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create granule cache: %w", err)
	}
	return &Reader{
		fs:      fs,
		opts:    opts,
		indexes: cache,
		logger:  logger,
	}, nil
}

// List returns the URLs of every granule directly under dirURL, sorted.
func (r *Reader) List(ctx context.Context, dirURL string) ([]string, error) {
	objects, err := r.fs.List(ctx, dirURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %v: %w", dirURL, err, footprint.ErrNoInput)
	}
	var urls []string
	for _, o := range objects {
		if o.IsDir() || !strings.HasSuffix(strings.ToLower(o.Name()), Extension) {
			continue
		}
		urls = append(urls, o.URL())
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no %s granules under %s: %w", Extension, dirURL, footprint.ErrNoInput)
	}
	sort.Strings(urls)
	return urls, nil
}

// Load reads one granule into an acquisition. The acquisition date comes
// from the file name, or from the first scanline when the name carries none.
func (r *Reader) Load(ctx context.Context, URL string) (*footprint.Acquisition, error) {
	g, err := r.read(ctx, URL)
	if err != nil {
		return nil, err
	}
	idx, err := scanline.NewIndex(g.Grid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", URL, err)
	}
	outline, err := idx.Outline(r.opts.FootprintTolerance)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", URL, err)
	}
	r.indexes.Add(URL, idx)

	acq := &footprint.Acquisition{
		Filename:  Basename(URL),
		URL:       URL,
		Footprint: outline,
		Scanlines: g.Scanlines,
	}
	if start, err := FilenameStart(URL); err == nil {
		acq.Date = footprint.DayOf(start)
	} else {
		acq.Date = footprint.DayOf(acq.Start())
	}
	return acq, nil
}

// LoadResult is the outcome of LoadAll.
type LoadResult struct {
	// Acquisitions is ordered like the input URLs.
	Acquisitions  []*footprint.Acquisition
	Skipped       []error
	OutsideWindow int
}

// LoadAll loads granules in parallel with at most workers in flight.
// Granules whose file name dates them outside the window are not opened.
// A granule that fails to load is logged and skipped.
func (r *Reader) LoadAll(ctx context.Context, urls []string, window footprint.TimeWindow, workers int) (*LoadResult, error) {
	result := &LoadResult{}
	var todo []string
	for _, u := range urls {
		if start, err := FilenameStart(u); err == nil && !window.ContainsDay(footprint.DayOf(start)) {
			result.OutsideWindow++
			continue
		}
		todo = append(todo, u)
	}

	acqs := make([]*footprint.Acquisition, len(todo))
	errs := make([]error, len(todo))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, u := range todo {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			acqs[i], errs[i] = r.Load(gctx, u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, u := range todo {
		if errs[i] != nil {
			r.logger.Warn().Err(errs[i]).Str("granule", u).Msg("skipping granule")
			result.Skipped = append(result.Skipped, errs[i])
			continue
		}
		result.Acquisitions = append(result.Acquisitions, acqs[i])
	}
	r.logger.Info().
		Int("granules", len(urls)).
		Int("loaded", len(result.Acquisitions)).
		Int("skipped", len(result.Skipped)).
		Int("outside_window", result.OutsideWindow).
		Msg("loaded TROPOMI granules")
	return result, nil
}

// Swath returns the scanline index of an acquisition, re-reading the
// granule if it is no longer cached. Concurrent requests for one granule
// share a single read.
func (r *Reader) Swath(ctx context.Context, acq *footprint.Acquisition) (*scanline.Index, error) {
	if idx, ok := r.indexes.Get(acq.URL); ok {
		return idx, nil
	}
	v, err, _ := r.inflight.Do(acq.URL, func() (any, error) {
		if idx, ok := r.indexes.Get(acq.URL); ok {
			return idx, nil
		}
		g, err := r.read(ctx, acq.URL)
		if err != nil {
			return nil, err
		}
		idx, err := scanline.NewIndex(g.Grid)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", acq.URL, err)
		}
		r.indexes.Add(acq.URL, idx)
		r.logger.Debug().Str("granule", acq.Filename).Msg("re-read granule geolocation")
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*scanline.Index), nil
}

func (r *Reader) read(ctx context.Context, URL string) (*Granule, error) {
	local, err := r.localPath(ctx, URL)
	if err != nil {
		return nil, err
	}
	return ReadGranule(local)
}

// localPath returns a file system path for URL, downloading remote granules
// into the work directory once.
func (r *Reader) localPath(ctx context.Context, URL string) (string, error) {
	if url.Scheme(URL, file.Scheme) == file.Scheme {
		return url.Path(URL), nil
	}

	dest := filepath.Join(r.opts.WorkDir, filepath.Base(url.Path(URL)))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}
	if err := os.MkdirAll(r.opts.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	data, err := r.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", URL, err)
	}
	// Written under a temporary name so a concurrent reader never opens a
	// partial file.
	tmp, err := os.CreateTemp(r.opts.WorkDir, filepath.Base(dest)+".*")
	if err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", URL, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to stage %s: %w", URL, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", URL, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", URL, err)
	}
	return dest, nil
}
