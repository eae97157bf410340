package ems

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/angas/netload-go/timeseries"
	"github.com/angas/netload-go/types"
)

// SystemCatalog resolves a prediction job to its member systems.
type SystemCatalog interface {
	SystemsForJob(ctx context.Context, jobID int) ([]types.System, error)
}

// MeasurementSource executes windowed range queries against the measurement
// store. QueryRaw returns one series per system id at native cadence, with
// absent ids for systems without data. QueryAggregated returns the combined
// load of all given systems, bucketed to the resolution and already corrected
// for the store's window boundary convention.
type MeasurementSource interface {
	QueryRaw(ctx context.Context, sids []string, start, end time.Time) (map[string]timeseries.Series, error)
	QueryAggregated(ctx context.Context, sids []string, start, end time.Time, res timeseries.Resolution) (timeseries.Aggregate, error)
}

// Ems computes net load curves from the measurements of a job's systems.
// It holds no state between calls and is safe for concurrent use.
type Ems struct {
	catalog SystemCatalog
	source  MeasurementSource
	logger  *slog.Logger
}

func New(catalog SystemCatalog, source MeasurementSource) *Ems {
	return &Ems{
		catalog: catalog,
		source:  source,
		logger:  slog.Default().With("module", "ems"),
	}
}

func (e *Ems) SetLogger(logger *slog.Logger) {
	e.logger = logger
}

type NetLoadOptions struct {
	// IgnoreFactor applies only the polarity, not the factor. Implies the
	// per-system code path.
	IgnoreFactor bool
	// Direct forces the per-system code path instead of the grouped one.
	// Both paths produce the same curve; the grouped path just needs far
	// fewer store queries for jobs with many systems.
	Direct bool
}

// NetLoad computes the sign- and scale-corrected net load for a prediction
// job over the given window. Each system's measurements are multiplied by its
// polarity and factor and the results are summed per bucket.
//
// Systems without any data in the window are logged and skipped. When no
// system has data at all the result is an empty series, not an error, so
// downstream pipelines can apply their own fallback.
func (e *Ems) NetLoad(ctx context.Context, jobID int, start, end time.Time, resolution string, opts NetLoadOptions) (timeseries.Series, error) {
	res, err := timeseries.ParseResolution(resolution)
	if err != nil {
		return nil, err
	}
	start, end, err = timeseries.NormalizeRange(start, end, res)
	if err != nil {
		return nil, err
	}

	systems, err := e.catalog.SystemsForJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("resolving systems for job %d: %w", jobID, err)
	}
	if len(systems) == 0 {
		return nil, fmt.Errorf("job %d: %w", jobID, ErrEmptySystemSet)
	}

	if opts.Direct || opts.IgnoreFactor {
		return e.netLoadDirect(ctx, jobID, systems, start, end, res, opts.IgnoreFactor)
	}
	return e.netLoadGrouped(ctx, jobID, systems, start, end, res)
}

// netLoadGrouped issues one aggregated query per distinct effective factor:
// the store sums the per-system bucket means within a group, and the group's
// single multiplier is applied afterwards.
func (e *Ems) netLoadGrouped(ctx context.Context, jobID int, systems []types.System, start, end time.Time, res timeseries.Resolution) (timeseries.Series, error) {
	groups := GroupByEffectiveFactor(systems)

	cols := make([]timeseries.Series, 0, len(groups))
	for _, g := range groups {
		agg, err := e.source.QueryAggregated(ctx, g.SystemIDs(), start, end, res)
		if err != nil {
			return nil, fmt.Errorf("aggregated load for job %d (factor %g): %w: %w",
				jobID, float64(g.Factor), ErrUpstreamUnavailable, err)
		}
		if agg.Load.IsEmpty() {
			// A group without data contributes nothing; it must not
			// pull the other groups' buckets towards zero.
			continue
		}
		cols = append(cols, agg.Load.Scale(float64(g.Factor)))
	}

	return e.sumColumns(jobID, cols), nil
}

// netLoadDirect fetches every system's raw series in one query and applies
// the multipliers per system before summing.
func (e *Ems) netLoadDirect(ctx context.Context, jobID int, systems []types.System, start, end time.Time, res timeseries.Resolution, ignoreFactor bool) (timeseries.Series, error) {
	sids := make([]string, len(systems))
	for i, s := range systems {
		sids[i] = s.ID
	}

	bySID, err := e.rawLoad(ctx, sids, start, end, res)
	if err != nil {
		return nil, fmt.Errorf("raw load for job %d: %w: %w", jobID, ErrUpstreamUnavailable, err)
	}

	var missing []string
	for _, s := range systems {
		if _, ok := bySID[s.ID]; !ok {
			missing = append(missing, s.ID)
		}
	}
	if len(missing) > 0 {
		e.logger.Warn("ignoring systems without load data",
			slog.Int("job", jobID),
			slog.Int("count", len(missing)),
			slog.Any("systems", missing))
	}

	cols := make([]timeseries.Series, 0, len(systems))
	for _, s := range systems {
		col, ok := bySID[s.ID]
		if !ok {
			continue
		}

		sign := s.Polarity
		if sign == 0 {
			e.logger.Warn("system polarity not set, assuming positive",
				slog.Int("job", jobID), slog.String("system", s.ID))
			sign = 1
		}
		multiplier := float64(sign)
		if !ignoreFactor {
			multiplier *= s.Factor
		}

		cols = append(cols, col.Scale(multiplier))
	}

	return e.sumColumns(jobID, cols), nil
}

// sumColumns is the shared tail of both code paths: outer join on timestamp,
// row-wise sum.
func (e *Ems) sumColumns(jobID int, cols []timeseries.Series) timeseries.Series {
	total := timeseries.SumOuter(cols...)
	if total.IsEmpty() {
		e.logger.Warn("no load data available, returning empty series", slog.Int("job", jobID))
		return timeseries.Series{}
	}
	return total
}

// LoadForSystems returns the measured load per system id, resampled to the
// resolution. Systems without data in the window are absent from the result.
func (e *Ems) LoadForSystems(ctx context.Context, sids []string, start, end time.Time, resolution string) (map[string]timeseries.Series, error) {
	res, err := timeseries.ParseResolution(resolution)
	if err != nil {
		return nil, err
	}
	start, end, err = timeseries.NormalizeRange(start, end, res)
	if err != nil {
		return nil, err
	}

	bySID, err := e.rawLoad(ctx, sids, start, end, res)
	if err != nil {
		return nil, fmt.Errorf("raw load for %d systems: %w: %w", len(sids), ErrUpstreamUnavailable, err)
	}
	if len(bySID) == 0 {
		e.logger.Warn("no load data for any of the requested systems",
			slog.Any("systems", sids))
	}
	return bySID, nil
}

// AggregatedLoad returns the summed load of the given systems per bucket.
// With averageOutput the sum is divided by the number of contributing
// samples, turning the curve into a mean.
func (e *Ems) AggregatedLoad(ctx context.Context, sids []string, start, end time.Time, resolution string, averageOutput bool) (timeseries.Aggregate, error) {
	res, err := timeseries.ParseResolution(resolution)
	if err != nil {
		return timeseries.Aggregate{}, err
	}
	start, end, err = timeseries.NormalizeRange(start, end, res)
	if err != nil {
		return timeseries.Aggregate{}, err
	}

	agg, err := e.source.QueryAggregated(ctx, sids, start, end, res)
	if err != nil {
		return timeseries.Aggregate{}, fmt.Errorf("aggregated load for %d systems: %w: %w",
			len(sids), ErrUpstreamUnavailable, err)
	}
	if agg.Load.IsEmpty() {
		e.logger.Warn("no load data for any of the requested systems",
			slog.Any("systems", sids))
		return agg, nil
	}

	if averageOutput {
		agg.Load = divideByEntries(agg.Load, agg.Entries)
	}
	return agg, nil
}

func (e *Ems) rawLoad(ctx context.Context, sids []string, start, end time.Time, res timeseries.Resolution) (map[string]timeseries.Series, error) {
	bySID, err := e.source.QueryRaw(ctx, sids, start, end)
	if err != nil {
		return nil, err
	}
	out := make(map[string]timeseries.Series, len(bySID))
	for sid, col := range bySID {
		out[sid] = col.Resample(res)
	}
	return out, nil
}

func divideByEntries(load, entries timeseries.Series) timeseries.Series {
	counts := make(map[int64]float64, len(entries))
	for _, p := range entries {
		counts[p.Time.UnixNano()] = p.Value
	}

	out := make(timeseries.Series, 0, len(load))
	for _, p := range load {
		n, ok := counts[p.Time.UnixNano()]
		if !ok || n == 0 {
			continue
		}
		out = append(out, timeseries.Point{Time: p.Time, Value: p.Value / n})
	}
	return out
}
