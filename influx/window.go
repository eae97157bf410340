package influx

import (
	"time"

	"github.com/angas/netload-go/timeseries"
)

// WindowCorrection compensates for flux labelling every aggregateWindow
// bucket with its right (closing) edge instead of its left edge.
//
// The aggregated load query runs two stacked aggregateWindow passes, so the
// labels end up two periods to the right of where the caller expects them,
// and the final buckets of the requested range would fall outside the query
// stop. The fix is a strict three-step sequence: widen the query stop by
// Periods resolution steps before fetching (WidenStop), then shift the whole
// result back by the same amount and drop the rows that now land before the
// requested start (Apply). Reordering or skipping a step gives silently
// off-by-one-bucket results.
type WindowCorrection struct {
	Periods int
}

// DefaultWindowCorrection matches the two stacked aggregateWindow calls in
// the aggregated load query.
var DefaultWindowCorrection = WindowCorrection{Periods: 2}

func (w WindowCorrection) WidenStop(stop time.Time, res timeseries.Resolution) time.Time {
	return stop.Add(time.Duration(w.Periods) * res.Duration())
}

func (w WindowCorrection) Apply(s timeseries.Series, res timeseries.Resolution, start time.Time) timeseries.Series {
	shifted := s.ShiftBack(time.Duration(w.Periods) * res.Duration())
	return shifted.TrimBefore(start)
}
