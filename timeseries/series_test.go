package timeseries

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func mkSeries(start time.Time, step time.Duration, values ...float64) Series {
	s := make(Series, len(values))
	for i, v := range values {
		s[i] = Point{Time: start.Add(time.Duration(i) * step), Value: v}
	}
	return s
}

func TestSumOuterAligned(t *testing.T) {
	a := mkSeries(t0, 15*time.Minute, 10, 10, 10, 10)
	b := mkSeries(t0, 15*time.Minute, -5, -5, -5, -5)

	got := SumOuter(a, b)
	if len(got) != 4 {
		t.Fatalf("got %d points, wanted 4", len(got))
	}
	for i, p := range got {
		if p.Value != 5 {
			t.Errorf("point %d: got %f, wanted 5", i, p.Value)
		}
		want := t0.Add(time.Duration(i) * 15 * time.Minute)
		if !p.Time.Equal(want) {
			t.Errorf("point %d: got time %s, wanted %s", i, p.Time, want)
		}
	}
}

func TestSumOuterGaps(t *testing.T) {
	// b has no sample at t0+15m; that row must carry only a's value,
	// not a's value plus a defaulted zero pulling the sum around.
	a := mkSeries(t0, 15*time.Minute, 1, 2, 3)
	b := Series{
		{Time: t0, Value: 10},
		{Time: t0.Add(30 * time.Minute), Value: 30},
		{Time: t0.Add(45 * time.Minute), Value: 40},
	}

	got := SumOuter(a, b)
	want := Series{
		{Time: t0, Value: 11},
		{Time: t0.Add(15 * time.Minute), Value: 2},
		{Time: t0.Add(30 * time.Minute), Value: 33},
		{Time: t0.Add(45 * time.Minute), Value: 40},
	}
	assertSeriesEqual(t, got, want)
}

func TestSumOuterCommutative(t *testing.T) {
	a := mkSeries(t0, time.Hour, 1, 2)
	b := mkSeries(t0.Add(time.Hour), time.Hour, 5, 6)
	c := mkSeries(t0, time.Hour, -1)

	ab := SumOuter(a, b, c)
	ba := SumOuter(c, b, a)
	assertSeriesEqual(t, ab, ba)
}

func TestSumOuterEmpty(t *testing.T) {
	got := SumOuter(Series{}, Series{})
	if !got.IsEmpty() {
		t.Errorf("got %d points, wanted empty series", len(got))
	}
}

func TestScale(t *testing.T) {
	s := mkSeries(t0, time.Hour, 1, -2, 3)
	got := s.Scale(-2)
	want := mkSeries(t0, time.Hour, -2, 4, -6)
	assertSeriesEqual(t, got, want)

	// original must be untouched
	if s[0].Value != 1 {
		t.Errorf("scale mutated its receiver: %f", s[0].Value)
	}
}

func TestShiftBackTrimBefore(t *testing.T) {
	s := mkSeries(t0, 15*time.Minute, 1, 2, 3, 4)

	shifted := s.ShiftBack(30 * time.Minute)
	if !shifted.First().Time.Equal(t0.Add(-30 * time.Minute)) {
		t.Errorf("got first time %s, wanted %s", shifted.First().Time, t0.Add(-30*time.Minute))
	}

	trimmed := shifted.TrimBefore(t0)
	want := Series{
		{Time: t0, Value: 3},
		{Time: t0.Add(15 * time.Minute), Value: 4},
	}
	assertSeriesEqual(t, trimmed, want)
}

func TestResample(t *testing.T) {
	// two 5m samples per 15m bucket, plus a lone sample in the next bucket
	s := Series{
		{Time: t0, Value: 10},
		{Time: t0.Add(5 * time.Minute), Value: 20},
		{Time: t0.Add(15 * time.Minute), Value: 8},
	}

	got := s.Resample(Resolution(15 * time.Minute))
	want := Series{
		{Time: t0, Value: 15},
		{Time: t0.Add(15 * time.Minute), Value: 8},
	}
	assertSeriesEqual(t, got, want)
}

func TestResampleEmpty(t *testing.T) {
	got := Series{}.Resample(Resolution(15 * time.Minute))
	if !got.IsEmpty() {
		t.Errorf("got %d points, wanted empty series", len(got))
	}
}

func assertSeriesEqual(t *testing.T, got, want Series) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d points, wanted %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Time.Equal(want[i].Time) {
			t.Errorf("point %d: got time %s, wanted %s", i, got[i].Time, want[i].Time)
		}
		if math.Abs(got[i].Value-want[i].Value) > 1e-9 {
			t.Errorf("point %d: got %f, wanted %f", i, got[i].Value, want[i].Value)
		}
	}
}
