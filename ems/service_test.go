package ems

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/angas/netload-go/timeseries"
	"github.com/angas/netload-go/types"
)

var (
	t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

type fakeCatalog struct {
	systems []types.System
	err     error
}

func (c *fakeCatalog) SystemsForJob(ctx context.Context, jobID int) ([]types.System, error) {
	return c.systems, c.err
}

// fakeSource mimics the store: raw queries return the fixture samples per
// system, aggregated queries compute sum-of-per-system-bucket-means the way
// the real store does, with empty buckets absent.
type fakeSource struct {
	data     map[string]timeseries.Series
	err      error
	rawCalls int
	aggCalls int
}

func (f *fakeSource) QueryRaw(ctx context.Context, sids []string, start, end time.Time) (map[string]timeseries.Series, error) {
	f.rawCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]timeseries.Series)
	for _, sid := range sids {
		if s, ok := f.data[sid]; ok {
			if clipped := clip(s, start, end); !clipped.IsEmpty() {
				out[sid] = clipped
			}
		}
	}
	return out, nil
}

func (f *fakeSource) QueryAggregated(ctx context.Context, sids []string, start, end time.Time, r timeseries.Resolution) (timeseries.Aggregate, error) {
	f.aggCalls++
	if f.err != nil {
		return timeseries.Aggregate{}, f.err
	}

	var cols []timeseries.Series
	for _, sid := range sids {
		if s, ok := f.data[sid]; ok {
			if clipped := clip(s, start, end); !clipped.IsEmpty() {
				cols = append(cols, clipped.Resample(r))
			}
		}
	}

	load := timeseries.SumOuter(cols...)
	counts := make(map[int64]float64)
	for _, col := range cols {
		for _, p := range col {
			counts[p.Time.UnixNano()]++
		}
	}
	entries := make(timeseries.Series, 0, len(counts))
	for _, p := range load {
		entries = append(entries, timeseries.Point{Time: p.Time, Value: counts[p.Time.UnixNano()]})
	}
	return timeseries.Aggregate{Load: load, Entries: entries}, nil
}

func clip(s timeseries.Series, start, end time.Time) timeseries.Series {
	var out timeseries.Series
	for _, p := range s {
		if !p.Time.Before(start) && !p.Time.After(end) {
			out = append(out, p)
		}
	}
	return out
}

func quarterHours(start time.Time, values ...float64) timeseries.Series {
	s := make(timeseries.Series, len(values))
	for i, v := range values {
		s[i] = timeseries.Point{Time: start.Add(time.Duration(i) * 15 * time.Minute), Value: v}
	}
	return s
}

func newTestEms(systems []types.System, data map[string]timeseries.Series) (*Ems, *fakeSource) {
	source := &fakeSource{data: data}
	return New(&fakeCatalog{systems: systems}, source), source
}

func TestNetLoadOppositePolarities(t *testing.T) {
	// A adds twice its measured value, B subtracts twice its own:
	// 2*10 - 2*5 = 10 per bucket.
	systems := []types.System{
		{ID: "A", Polarity: 1, Factor: 2},
		{ID: "B", Polarity: -1, Factor: 2},
	}
	data := map[string]timeseries.Series{
		"A": quarterHours(t0, 10, 10, 10, 10),
		"B": quarterHours(t0, 5, 5, 5, 5),
	}

	for _, direct := range []bool{false, true} {
		t.Run(fmt.Sprintf("direct=%v", direct), func(t *testing.T) {
			e, source := newTestEms(systems, data)
			got, err := e.NetLoad(context.Background(), 1, t0, t1, "15m", NetLoadOptions{Direct: direct})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != 4 {
				t.Fatalf("got %d points, wanted 4", len(got))
			}
			for i, p := range got {
				if math.Abs(p.Value-10) > 1e-6 {
					t.Errorf("point %d: got %f, wanted 10", i, p.Value)
				}
			}
			if !direct && source.aggCalls != 2 {
				// effective factors 2 and -2 are distinct groups
				t.Errorf("got %d aggregated queries, wanted 2", source.aggCalls)
			}
		})
	}
}

func TestNetLoadSharedFactorGroupsOnce(t *testing.T) {
	// A and C share effective factor 3, so the grouped path must fetch them
	// in a single aggregated query and still match 3*A + 3*C.
	systems := []types.System{
		{ID: "A", Polarity: 1, Factor: 3},
		{ID: "C", Polarity: 1, Factor: 3},
	}
	data := map[string]timeseries.Series{
		"A": quarterHours(t0, 1, 2, 3, 4),
		"C": quarterHours(t0, 10, 20, 30, 40),
	}

	e, source := newTestEms(systems, data)
	got, err := e.NetLoad(context.Background(), 1, t0, t1, "15m", NetLoadOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.aggCalls != 1 {
		t.Errorf("got %d aggregated queries, wanted 1", source.aggCalls)
	}

	want := []float64{33, 66, 99, 132}
	if len(got) != len(want) {
		t.Fatalf("got %d points, wanted %d", len(got), len(want))
	}
	for i, p := range got {
		if math.Abs(p.Value-want[i]) > 1e-6 {
			t.Errorf("point %d: got %f, wanted %f", i, p.Value, want[i])
		}
	}
}

func TestNetLoadPathEquivalence(t *testing.T) {
	// Mixed polarities, shared and distinct factors, an unset polarity and
	// a gap in one series: the two code paths must agree bucket for bucket.
	systems := []types.System{
		{ID: "a", Polarity: 1, Factor: 2},
		{ID: "b", Polarity: -1, Factor: 2},
		{ID: "c", Polarity: 1, Factor: 2},
		{ID: "d", Polarity: 0, Factor: 0.5},
		{ID: "e", Polarity: 1, Factor: 0},
	}
	gappy := quarterHours(t0, 7, 8)
	gappy = append(gappy, timeseries.Point{Time: t0.Add(45 * time.Minute), Value: 9})
	data := map[string]timeseries.Series{
		"a": quarterHours(t0, 10, 11, 12, 13),
		"b": quarterHours(t0, 1, 2, 3, 4),
		"c": gappy,
		"d": quarterHours(t0, 100, 100, 100, 100),
		"e": quarterHours(t0, 55, 55, 55, 55),
	}

	eGrouped, _ := newTestEms(systems, data)
	grouped, err := eGrouped.NetLoad(context.Background(), 1, t0, t1, "15m", NetLoadOptions{})
	if err != nil {
		t.Fatalf("grouped path: %v", err)
	}

	eDirect, _ := newTestEms(systems, data)
	direct, err := eDirect.NetLoad(context.Background(), 1, t0, t1, "15m", NetLoadOptions{Direct: true})
	if err != nil {
		t.Fatalf("direct path: %v", err)
	}

	if len(grouped) != len(direct) {
		t.Fatalf("grouped has %d points, direct has %d", len(grouped), len(direct))
	}
	for i := range grouped {
		if !grouped[i].Time.Equal(direct[i].Time) {
			t.Errorf("point %d: grouped time %s, direct time %s", i, grouped[i].Time, direct[i].Time)
		}
		if math.Abs(grouped[i].Value-direct[i].Value) > 1e-6 {
			t.Errorf("point %d: grouped %f, direct %f", i, grouped[i].Value, direct[i].Value)
		}
	}
}

func TestNetLoadIgnoreFactor(t *testing.T) {
	systems := []types.System{
		{ID: "a", Polarity: 1, Factor: 100},
		{ID: "b", Polarity: -1, Factor: 100},
	}
	data := map[string]timeseries.Series{
		"a": quarterHours(t0, 8, 8, 8, 8),
		"b": quarterHours(t0, 3, 3, 3, 3),
	}

	e, source := newTestEms(systems, data)
	got, err := e.NetLoad(context.Background(), 1, t0, t1, "15m", NetLoadOptions{IgnoreFactor: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// polarity still applies, factor must not
	for i, p := range got {
		if math.Abs(p.Value-5) > 1e-6 {
			t.Errorf("point %d: got %f, wanted 5", i, p.Value)
		}
	}
	if source.aggCalls != 0 {
		t.Errorf("ignore-factor must use the raw path, got %d aggregated queries", source.aggCalls)
	}
}

func TestNetLoadZeroFactorPreserved(t *testing.T) {
	// An explicit factor of 0 weighs the system out; it must not be
	// rewritten to 1 on either path.
	systems := []types.System{
		{ID: "a", Polarity: 1, Factor: 1},
		{ID: "z", Polarity: 1, Factor: 0},
	}
	data := map[string]timeseries.Series{
		"a": quarterHours(t0, 4, 4, 4, 4),
		"z": quarterHours(t0, 1000, 1000, 1000, 1000),
	}

	for _, direct := range []bool{false, true} {
		t.Run(fmt.Sprintf("direct=%v", direct), func(t *testing.T) {
			e, _ := newTestEms(systems, data)
			got, err := e.NetLoad(context.Background(), 1, t0, t1, "15m", NetLoadOptions{Direct: direct})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for i, p := range got {
				if math.Abs(p.Value-4) > 1e-6 {
					t.Errorf("point %d: got %f, wanted 4", i, p.Value)
				}
			}
		})
	}
}

func TestNetLoadMissingSystemsTolerated(t *testing.T) {
	systems := []types.System{
		{ID: "up", Polarity: 1, Factor: 1},
		{ID: "offline", Polarity: 1, Factor: 1},
	}
	data := map[string]timeseries.Series{
		"up": quarterHours(t0, 6, 6, 6, 6),
	}

	e, _ := newTestEms(systems, data)
	got, err := e.NetLoad(context.Background(), 1, t0, t1, "15m", NetLoadOptions{Direct: true})
	if err != nil {
		t.Fatalf("a system without data must not fail the call: %v", err)
	}
	if got.IsEmpty() {
		t.Fatal("got empty series, wanted the load of the remaining system")
	}
	for i, p := range got {
		if math.Abs(p.Value-6) > 1e-6 {
			t.Errorf("point %d: got %f, wanted 6", i, p.Value)
		}
	}
}

func TestNetLoadNoDataIsEmptyAndRepeatable(t *testing.T) {
	systems := []types.System{{ID: "a", Polarity: 1, Factor: 1}}

	for _, direct := range []bool{false, true} {
		t.Run(fmt.Sprintf("direct=%v", direct), func(t *testing.T) {
			e, _ := newTestEms(systems, map[string]timeseries.Series{})

			first, err := e.NetLoad(context.Background(), 1, t0, t1, "15m", NetLoadOptions{Direct: direct})
			if err != nil {
				t.Fatalf("no data must not be an error: %v", err)
			}
			if first == nil || !first.IsEmpty() {
				t.Fatalf("got %v, wanted an explicitly empty series", first)
			}

			second, err := e.NetLoad(context.Background(), 1, t0, t1, "15m", NetLoadOptions{Direct: direct})
			if err != nil {
				t.Fatalf("repeat call: %v", err)
			}
			if !second.IsEmpty() {
				t.Errorf("repeat call returned %d points, wanted the same empty result", len(second))
			}
		})
	}
}

func TestNetLoadErrors(t *testing.T) {
	data := map[string]timeseries.Series{"a": quarterHours(t0, 1, 1, 1, 1)}
	systems := []types.System{{ID: "a", Polarity: 1, Factor: 1}}

	t.Run("unknown job", func(t *testing.T) {
		e := New(&fakeCatalog{err: fmt.Errorf("job 42: %w", ErrJobNotFound)}, &fakeSource{data: data})
		_, err := e.NetLoad(context.Background(), 42, t0, t1, "15m", NetLoadOptions{})
		if !errors.Is(err, ErrJobNotFound) {
			t.Errorf("got %v, wanted ErrJobNotFound", err)
		}
	})

	t.Run("job without systems", func(t *testing.T) {
		e := New(&fakeCatalog{}, &fakeSource{data: data})
		_, err := e.NetLoad(context.Background(), 1, t0, t1, "15m", NetLoadOptions{})
		if !errors.Is(err, ErrEmptySystemSet) {
			t.Errorf("got %v, wanted ErrEmptySystemSet", err)
		}
	})

	t.Run("bad resolution", func(t *testing.T) {
		e, _ := newTestEms(systems, data)
		_, err := e.NetLoad(context.Background(), 1, t0, t1, "15T", NetLoadOptions{})
		if !errors.Is(err, timeseries.ErrInvalidResolution) {
			t.Errorf("got %v, wanted ErrInvalidResolution", err)
		}
	})

	t.Run("bad time range", func(t *testing.T) {
		e, _ := newTestEms(systems, data)
		_, err := e.NetLoad(context.Background(), 1, t1, t0, "15m", NetLoadOptions{})
		if !errors.Is(err, timeseries.ErrInvalidTimeRange) {
			t.Errorf("got %v, wanted ErrInvalidTimeRange", err)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		source := &fakeSource{err: errors.New("connection refused")}
		e := New(&fakeCatalog{systems: systems}, source)
		_, err := e.NetLoad(context.Background(), 1, t0, t1, "15m", NetLoadOptions{})
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("got %v, wanted ErrUpstreamUnavailable", err)
		}
	})
}

func TestAggregatedLoadAverageOutput(t *testing.T) {
	data := map[string]timeseries.Series{
		"a": quarterHours(t0, 10, 20, 30, 40),
		"b": quarterHours(t0, 30, 40, 50, 60),
	}
	e, _ := newTestEms(nil, data)

	agg, err := e.AggregatedLoad(context.Background(), []string{"a", "b"}, t0, t1, "15m", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []float64{20, 30, 40, 50}
	if len(agg.Load) != len(want) {
		t.Fatalf("got %d points, wanted %d", len(agg.Load), len(want))
	}
	for i, p := range agg.Load {
		if math.Abs(p.Value-want[i]) > 1e-6 {
			t.Errorf("point %d: got %f, wanted %f", i, p.Value, want[i])
		}
	}
}

func TestLoadForSystems(t *testing.T) {
	data := map[string]timeseries.Series{
		"a": quarterHours(t0, 1, 2, 3, 4),
	}
	e, _ := newTestEms(nil, data)

	got, err := e.LoadForSystems(context.Background(), []string{"a", "gone"}, t0, t1, "15m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d series, wanted 1", len(got))
	}
	if _, ok := got["gone"]; ok {
		t.Error("series for a system without data must be absent, not empty")
	}
	if len(got["a"]) != 4 {
		t.Errorf("got %d points for a, wanted 4", len(got["a"]))
	}
}
