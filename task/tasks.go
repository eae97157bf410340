package task

import (
	"context"
	"log/slog"

	"github.com/angas/netload-go/config"
	"github.com/angas/netload-go/database"
	"github.com/angas/netload-go/ems"
	"github.com/angas/netload-go/influx"
	"github.com/angas/netload-go/meter"
	"github.com/robfig/cron/v3"
)

type Tasks struct {
	cron            *cron.Cron
	cnfg            *config.AppConfig
	NetLoadTask     func()
	MeterFlushTask  func()
	MaintenanceTask func()
}

func NewTasks(
	db *database.Database,
	engine *ems.Ems,
	source *influx.Source,
	buffer *meter.Buffer,
	cnfg *config.AppConfig,
) *Tasks {
	logger := slog.Default().With("module", "tasks")
	return &Tasks{
		cron:            cron.New(),
		cnfg:            cnfg,
		NetLoadTask:     NewNetLoadTask(logger.With(slog.String("task", "net_load")), db, engine, cnfg.NetLoad),
		MeterFlushTask:  NewMeterFlushTask(logger.With(slog.String("task", "meter_flush")), source, buffer),
		MaintenanceTask: NewMaintenanceTask(logger.With(slog.String("task", "maintenance")), db, cnfg),
	}
}

func (t *Tasks) Run() {
	_, err := t.cron.AddFunc(t.cnfg.NetLoad.RunAt, t.NetLoadTask)
	if err != nil {
		panic(err)
	}
	_, err = t.cron.AddFunc("@every 1m", t.MeterFlushTask)
	if err != nil {
		panic(err)
	}
	_, err = t.cron.AddFunc("30 2 * * *", t.MaintenanceTask)
	if err != nil {
		panic(err)
	}
	t.cron.Start()
}

func (t *Tasks) Stop() context.Context {
	return t.cron.Stop()
}
