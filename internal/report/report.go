// Package report writes collocated pairs as line-oriented text blocks and
// parses them back.
//
// Each matched tile produces one block:
//
//	Overlap: POLYGON((10.1 50.2,10.4 50.2,10.4 50.5,10.1 50.5,10.1 50.2))
//	EnMAP File: Filename 0000004950-003, Datetime: 2024-02-15T10:00:03.000Z
//	TROPOMI File: Filename S5P_OFFL_L2__CH4____20240215T095950_..., Datetime: 2024-02-15T10:00:00.000Z
//	Cloud Fraction (EnMAP): 0.25
//	Time Difference: 0.05
//	--------------------
//
// Time Difference is in minutes.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/robert-malhotra/swath-collocate/internal/footprint"
	"github.com/robert-malhotra/swath-collocate/internal/match"
)

// TimeLayout is RFC 3339 with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Separator ends every block.
const Separator = "--------------------"

// ErrMalformedRecord is returned by Parse for text that is not a sequence of
// well-formed blocks.
var ErrMalformedRecord = errors.New("malformed record")

// Record is one serialised pair.
type Record struct {
	// Overlap is an orb.Polygon or orb.MultiPolygon.
	Overlap       orb.Geometry
	TileID        string
	TileTime      time.Time
	Granule       string
	GranuleTime   time.Time
	CloudFraction float64
	// TimeDifference is the absolute offset in minutes.
	TimeDifference float64
}

// FromPair converts a pair. A single-part overlap is written as a POLYGON.
func FromPair(p *match.Pair) Record {
	var overlap orb.Geometry = p.Overlap
	if len(p.Overlap) == 1 {
		overlap = p.Overlap[0]
	}
	return Record{
		Overlap:        overlap,
		TileID:         p.Tile.ID(),
		TileTime:       p.TileTime.UTC().Truncate(time.Millisecond),
		Granule:        p.Acquisition,
		GranuleTime:    p.AcquisitionTime.UTC().Truncate(time.Millisecond),
		CloudFraction:  p.CloudFraction,
		TimeDifference: p.Offset.Minutes(),
	}
}

// Write serialises records in order.
func Write(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		fmt.Fprintf(bw, "Overlap: %s\n", wkt.MarshalString(r.Overlap))
		fmt.Fprintf(bw, "EnMAP File: Filename %s, Datetime: %s\n", r.TileID, r.TileTime.UTC().Format(TimeLayout))
		fmt.Fprintf(bw, "TROPOMI File: Filename %s, Datetime: %s\n", r.Granule, r.GranuleTime.UTC().Format(TimeLayout))
		fmt.Fprintf(bw, "Cloud Fraction (EnMAP): %s\n", formatFloat(r.CloudFraction))
		fmt.Fprintf(bw, "Time Difference: %s\n", formatFloat(r.TimeDifference))
		fmt.Fprintln(bw, Separator)
	}
	return bw.Flush()
}

var (
	overlapLine  = regexp.MustCompile(`^Overlap: (.+)$`)
	enmapLine    = regexp.MustCompile(`^EnMAP File: Filename (.+?), Datetime: (\S+)$`)
	tropomiLine  = regexp.MustCompile(`^TROPOMI File: Filename (.+?), Datetime: (\S+)$`)
	cloudLine    = regexp.MustCompile(`^Cloud Fraction \(EnMAP\): (\S+)$`)
	timeDiffLine = regexp.MustCompile(`^Time Difference: (\S+)$`)
)

// Parse reads blocks written by Write.
func Parse(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var (
		records []Record
		block   []string
		lineNo  int
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == Separator {
			rec, err := parseBlock(block)
			if err != nil {
				return nil, fmt.Errorf("block ending at line %d: %w", lineNo, err)
			}
			records = append(records, rec)
			block = block[:0]
			continue
		}
		if line == "" && len(block) == 0 {
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(block) > 0 {
		return nil, fmt.Errorf("unterminated block at end of input: %w", ErrMalformedRecord)
	}
	return records, nil
}

func parseBlock(lines []string) (Record, error) {
	if len(lines) != 5 {
		return Record{}, fmt.Errorf("block has %d lines, want 5: %w", len(lines), ErrMalformedRecord)
	}

	var (
		rec Record
		err error
	)

	m := overlapLine.FindStringSubmatch(lines[0])
	if m == nil {
		return Record{}, fmt.Errorf("bad overlap line %q: %w", lines[0], ErrMalformedRecord)
	}
	if rec.Overlap, err = wkt.Unmarshal(m[1]); err != nil {
		return Record{}, fmt.Errorf("overlap: %v: %w", err, ErrMalformedRecord)
	}

	if rec.TileID, rec.TileTime, err = parseFile(enmapLine, lines[1]); err != nil {
		return Record{}, err
	}
	if rec.Granule, rec.GranuleTime, err = parseFile(tropomiLine, lines[2]); err != nil {
		return Record{}, err
	}
	if rec.CloudFraction, err = parseFloat(cloudLine, lines[3]); err != nil {
		return Record{}, err
	}
	if rec.TimeDifference, err = parseFloat(timeDiffLine, lines[4]); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func parseFile(re *regexp.Regexp, line string) (string, time.Time, error) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return "", time.Time{}, fmt.Errorf("bad file line %q: %w", line, ErrMalformedRecord)
	}
	t, err := time.Parse(TimeLayout, m[2])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("datetime %q: %v: %w", m[2], err, ErrMalformedRecord)
	}
	return m[1], t.UTC(), nil
}

func parseFloat(re *regexp.Regexp, line string) (float64, error) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return 0, fmt.Errorf("bad line %q: %w", line, ErrMalformedRecord)
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("number %q: %v: %w", m[1], err, ErrMalformedRecord)
	}
	return f, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Filename returns the output file name for a window:
// closest_pairs_output_<year>[_<month>][_<day>].txt, without zero padding.
func Filename(window footprint.TimeWindow) string {
	start := window.Start
	name := fmt.Sprintf("closest_pairs_output_%d", start.Year())
	switch window.Granularity {
	case footprint.Month:
		name += fmt.Sprintf("_%d", int(start.Month()))
	case footprint.Daily:
		name += fmt.Sprintf("_%d_%d", int(start.Month()), start.Day())
	}
	return name + ".txt"
}
