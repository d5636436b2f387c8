package tropomi

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/robert-malhotra/swath-collocate/internal/footprint"
)

// S5P_OFFL_L2__CH4____20240215T095950_20240215T114120_32800_03_020600_20240217T020000.nc
var startStamp = regexp.MustCompile(`_(\d{8}T\d{6})_`)

// Basename returns the granule name: the last path element of the URL up to
// its first dot.
func Basename(URL string) string {
	base := path.Base(URL)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}

// FilenameStart returns the sensing start encoded in a granule file name.
func FilenameStart(name string) (time.Time, error) {
	m := startStamp.FindStringSubmatch(path.Base(name))
	if m == nil {
		return time.Time{}, fmt.Errorf("no start stamp in %q: %w", name, footprint.ErrMalformedMetadata)
	}
	t, err := time.Parse("20060102T150405", m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("start stamp %q: %v: %w", m[1], err, footprint.ErrMalformedMetadata)
	}
	return t, nil
}
