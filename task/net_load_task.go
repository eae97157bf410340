package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/angas/netload-go/config"
	"github.com/angas/netload-go/database"
	"github.com/angas/netload-go/ems"
)

// NewNetLoadTask recomputes the recent net load of every active prediction
// job and persists the curves. One failing job does not stop the others.
func NewNetLoadTask(logger *slog.Logger, db *database.Database, engine *ems.Ems, cnfg config.AppConfigNetLoad) func() {
	return func() {
		logger.Debug("running net load task...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		jobs, err := db.ActivePredictionJobs(ctx)
		if err != nil {
			logger.Error("fetching active prediction jobs", slog.Any("error", err))
			return
		}

		end := time.Now().UTC()
		start := end.Add(-time.Duration(cnfg.GetHistoryHours()) * time.Hour)

		for _, job := range jobs {
			resolution := job.Resolution
			if resolution == "" {
				resolution = cnfg.GetResolution()
			}

			load, err := engine.NetLoad(ctx, job.ID, start, end, resolution, ems.NetLoadOptions{})
			if err != nil {
				logger.Error("computing net load",
					slog.Int("job", job.ID), slog.Any("error", err))
				continue
			}
			if load.IsEmpty() {
				logger.Warn("no net load to store", slog.Int("job", job.ID))
				continue
			}

			if err := db.SaveNetLoad(ctx, job.ID, load); err != nil {
				logger.Error("saving net load",
					slog.Int("job", job.ID), slog.Any("error", err))
				continue
			}

			logger.Info("net load stored",
				slog.Int("job", job.ID), slog.Int("buckets", len(load)))
		}
	}
}
