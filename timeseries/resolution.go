package timeseries

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	// ErrInvalidResolution means the resolution string is not a supported
	// bucket width.
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrInvalidTimeRange means start does not lie before end once both are
	// rounded to the resolution grid.
	ErrInvalidTimeRange = errors.New("invalid time range")
)

// Resolution is the fixed width of an aggregation bucket.
type Resolution time.Duration

// resolutionRe matches the flux duration units we accept. The strict shape
// also keeps the value safe for interpolation into a flux query.
var resolutionRe = regexp.MustCompile(`^([0-9]+)(s|m|h|d|w)$`)

var unitDurations = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

// ParseResolution parses a bucket width such as "15m" or "1h".
func ParseResolution(str string) (Resolution, error) {
	m := resolutionRe.FindStringSubmatch(str)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidResolution, str)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidResolution, str)
	}
	return Resolution(time.Duration(n) * unitDurations[m[2]]), nil
}

func (r Resolution) Duration() time.Duration {
	return time.Duration(r)
}

// Flux formats the resolution as a flux duration literal.
func (r Resolution) Flux() string {
	d := time.Duration(r)
	switch {
	case d%(7*24*time.Hour) == 0:
		return fmt.Sprintf("%dw", d/(7*24*time.Hour))
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}

func (r Resolution) String() string {
	return r.Flux()
}

// NormalizeRange rounds both ends of a query window to the nearest multiple
// of the resolution, in UTC. The rounded start must lie before the rounded
// end.
func NormalizeRange(start, end time.Time, res Resolution) (time.Time, time.Time, error) {
	s := start.UTC().Round(res.Duration())
	e := end.UTC().Round(res.Duration())
	if !s.Before(e) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s to %s at %s", ErrInvalidTimeRange, start, end, res)
	}
	return s, e, nil
}
