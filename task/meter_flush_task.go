package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/angas/netload-go/influx"
	"github.com/angas/netload-go/meter"
	"github.com/angas/netload-go/timeseries"
)

// NewMeterFlushTask drains the reading buffer and writes the batches to the
// measurement store, one write per system. Failed batches go back into the
// buffer for the next run.
func NewMeterFlushTask(logger *slog.Logger, source *influx.Source, buffer *meter.Buffer) func() {
	return func() {
		readings := buffer.Drain()
		if len(readings) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		bySID := make(map[string]timeseries.Series)
		for _, r := range readings {
			bySID[r.SystemID] = append(bySID[r.SystemID], timeseries.Point{Time: r.Timestamp, Value: r.Value})
		}

		flushed := 0
		for sid, points := range bySID {
			if err := source.WriteRealised(ctx, sid, points); err != nil {
				logger.Error("writing meter readings",
					slog.String("system", sid), slog.Any("error", err))
				for _, p := range points {
					buffer.Add(meter.Reading{SystemID: sid, Timestamp: p.Time, Value: p.Value})
				}
				continue
			}
			flushed += len(points)
		}

		if flushed > 0 {
			logger.Debug("meter readings flushed", slog.Int("count", flushed))
		}
	}
}
