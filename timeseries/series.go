package timeseries

import (
	"sort"
	"time"
)

// Point is a single sample. Timestamps are always UTC.
type Point struct {
	Time  time.Time
	Value float64
}

// Series is a time-ordered list of samples with unique timestamps. A gap in
// the data is an absent point, never a zero or NaN filler.
type Series []Point

// Aggregate is the result of an aggregated range query: the summed load per
// bucket and the number of samples that went into each bucket.
type Aggregate struct {
	Load    Series
	Entries Series
}

func (s Series) IsEmpty() bool {
	return len(s) == 0
}

func (s Series) First() Point {
	return s[0]
}

func (s Series) Last() Point {
	return s[len(s)-1]
}

// Scale returns a copy of the series with every value multiplied by f.
func (s Series) Scale(f float64) Series {
	out := make(Series, len(s))
	for i, p := range s {
		out[i] = Point{Time: p.Time, Value: p.Value * f}
	}
	return out
}

// ShiftBack returns a copy of the series with every timestamp moved back by d.
func (s Series) ShiftBack(d time.Duration) Series {
	out := make(Series, len(s))
	for i, p := range s {
		out[i] = Point{Time: p.Time.Add(-d), Value: p.Value}
	}
	return out
}

// TrimBefore drops all points with a timestamp before t.
func (s Series) TrimBefore(t time.Time) Series {
	i := sort.Search(len(s), func(i int) bool {
		return !s[i].Time.Before(t)
	})
	return append(Series{}, s[i:]...)
}

// Resample buckets the series to the given resolution, labelling each bucket
// with its left edge and averaging the samples that fall into it.
func (s Series) Resample(res Resolution) Series {
	if len(s) == 0 {
		return Series{}
	}

	sums := make(map[int64]float64)
	counts := make(map[int64]int)
	for _, p := range s {
		b := p.Time.Truncate(res.Duration()).UnixNano()
		sums[b] += p.Value
		counts[b]++
	}

	out := make(Series, 0, len(sums))
	for b, sum := range sums {
		out = append(out, Point{
			Time:  time.Unix(0, b).UTC(),
			Value: sum / float64(counts[b]),
		})
	}
	out.sortByTime()
	return out
}

// SumOuter merges the given series with an outer join on timestamp and sums
// each row. A timestamp present in any input is present in the output; inputs
// without a sample at that timestamp contribute nothing to the row, they are
// not defaulted to zero. The operation is commutative.
func SumOuter(cols ...Series) Series {
	sums := make(map[int64]float64)
	for _, col := range cols {
		for _, p := range col {
			sums[p.Time.UnixNano()] += p.Value
		}
	}

	out := make(Series, 0, len(sums))
	for ns, v := range sums {
		out = append(out, Point{Time: time.Unix(0, ns).UTC(), Value: v})
	}
	out.sortByTime()
	return out
}

func (s Series) sortByTime() {
	sort.Slice(s, func(i, j int) bool {
		return s[i].Time.Before(s[j].Time)
	})
}
