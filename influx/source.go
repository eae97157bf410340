package influx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/angas/netload-go/timeseries"
)

// Source reads and writes realised power measurements in InfluxDB. Every
// measured sample lives in the "power" measurement under the "output" field,
// tagged with the system id.
type Source struct {
	client influxdb2.Client
	query  api.QueryAPI
	write  api.WriteAPIBlocking
	bucket string
	logger *slog.Logger
	window WindowCorrection
}

func New(url, token, org, bucket string) *Source {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(30))

	return &Source{
		client: client,
		query:  client.QueryAPI(org),
		write:  client.WriteAPIBlocking(org, bucket),
		bucket: bucket,
		logger: slog.Default().With("module", "influx"),
		window: DefaultWindowCorrection,
	}
}

func (s *Source) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetWindowCorrection overrides the default boundary correction. Only needed
// when talking to a store with a different window-closing convention.
func (s *Source) SetWindowCorrection(w WindowCorrection) {
	s.window = w
}

func (s *Source) Close() {
	s.client.Close()
}

func (s *Source) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("pinging influx: %w", err)
	}
	if !ok {
		return fmt.Errorf("influx at %s is not ready", s.client.ServerURL())
	}
	return nil
}

// QueryRaw fetches the measured samples for every given system over the
// window, at their native cadence. The result holds one series per system id;
// systems without any data in the window are simply absent from the map.
func (s *Source) QueryRaw(ctx context.Context, sids []string, start, end time.Time) (map[string]timeseries.Series, error) {
	q := rawQuery(s.bucket, sids, start, end)
	s.logger.Debug("running raw load query", slog.Int("systems", len(sids)))

	result, err := s.query.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("executing raw load query: %w", err)
	}

	cols := make(map[string]timeseries.Series)
	for result.Next() {
		rec := result.Record()
		sid, ok := rec.ValueByKey("system").(string)
		if !ok {
			continue
		}
		v, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		cols[sid] = append(cols[sid], timeseries.Point{Time: rec.Time().UTC(), Value: v})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading raw load query result: %w", err)
	}

	return cols, nil
}

// QueryAggregated fetches the combined load of the given systems, bucketed to
// the resolution: per-system bucket means are summed across systems, and the
// sample count per bucket is reported alongside. Empty buckets are absent
// rows, not zeros.
//
// Flux anchors aggregate windows on their right edge, so the query stop is
// widened before fetching and the result shifted and trimmed afterwards; see
// WindowCorrection.
func (s *Source) QueryAggregated(ctx context.Context, sids []string, start, end time.Time, res timeseries.Resolution) (timeseries.Aggregate, error) {
	stop := s.window.WidenStop(end, res)
	q := aggregatedQuery(s.bucket, sids, start, stop, res)
	s.logger.Debug("running aggregated load query",
		slog.Int("systems", len(sids)),
		slog.String("resolution", res.String()))

	result, err := s.query.Query(ctx, q)
	if err != nil {
		return timeseries.Aggregate{}, fmt.Errorf("executing aggregated load query: %w", err)
	}

	var load, entries timeseries.Series
	for result.Next() {
		rec := result.Record()
		v, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		p := timeseries.Point{Time: rec.Time().UTC(), Value: v}
		switch rec.Result() {
		case "load":
			load = append(load, p)
		case "entries":
			entries = append(entries, p)
		}
	}
	if err := result.Err(); err != nil {
		return timeseries.Aggregate{}, fmt.Errorf("reading aggregated load query result: %w", err)
	}

	return timeseries.Aggregate{
		Load:    s.window.Apply(load, res, start),
		Entries: s.window.Apply(entries, res, start),
	}, nil
}

// WriteRealised stores measured power samples for a single system.
func (s *Source) WriteRealised(ctx context.Context, sid string, points timeseries.Series) error {
	if len(points) == 0 {
		return nil
	}

	pts := make([]*write.Point, 0, len(points))
	for _, p := range points {
		pts = append(pts, influxdb2.NewPoint(
			"power",
			map[string]string{"system": sid},
			map[string]interface{}{"output": p.Value},
			p.Time))
	}

	if err := s.write.WritePoint(ctx, pts...); err != nil {
		return fmt.Errorf("writing %d realised samples for %s: %w", len(pts), sid, err)
	}

	s.logger.Debug("wrote realised samples", slog.String("system", sid), slog.Int("count", len(pts)))
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
