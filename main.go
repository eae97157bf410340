package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/angas/netload-go/config"
	"github.com/angas/netload-go/database"
	"github.com/angas/netload-go/ems"
	"github.com/angas/netload-go/influx"
	"github.com/angas/netload-go/logging"
	"github.com/angas/netload-go/meter"
	"github.com/angas/netload-go/task"
	"github.com/lmittmann/tint"
)

var Version = "?.?.?"

func main() {
	defer func() {
		if err := recover(); err != nil {
			exitWithError(slog.Default(), fmt.Errorf("application panicked: %v", err))
		} else {
			slog.Default().Info("application is shutting down...")
		}
	}()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cnfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consoleHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cnfg.Logging.GetConsoleLevel(),
		TimeFormat: time.RFC3339,
	})
	slog.New(consoleHandler).Debug("netload is starting...", slog.String("version", Version))

	db, err := database.New(ctx, cnfg.Database.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to connect to database: %v", err))
	}
	defer db.Close()

	logger := slog.New(logging.NewMultiHandler(
		consoleHandler,
		logging.NewSQLiteHandler(db, cnfg.Logging.GetDbLevel())))
	slog.SetDefault(logger)

	// Now we can use the logger to log database operations into the database itself
	db.SetLogger(logger.With("module", "database"))

	source := influx.New(cnfg.Influx.Url, cnfg.Influx.Token, cnfg.Influx.Org, cnfg.Influx.Bucket)
	defer source.Close()
	source.SetLogger(logger.With("module", "influx"))
	source.SetWindowCorrection(influx.WindowCorrection{Periods: cnfg.Influx.GetWindowCorrectionPeriods()})

	if err := source.Ping(ctx); err != nil {
		logger.Warn("measurement store not reachable at startup", slog.Any("error", err))
	}

	engine := ems.New(db, source)
	engine.SetLogger(logger.With("module", "ems"))

	buffer := meter.NewBuffer()
	ingestor := meter.New(
		cnfg.Mqtt.Host,
		cnfg.Mqtt.Port,
		cnfg.Mqtt.Username,
		cnfg.Mqtt.Password,
		cnfg.Mqtt.GetTopic())
	ingestor.SetLogger(logger.With("module", "meter"))
	ingestor.OnReading = buffer.Add

	if isDevMode() {
		logger.Info("dev mode, skipping meter connection")
	} else {
		if err := ingestor.Connect(); err != nil {
			panic(fmt.Sprintf("meter connection error: %v", err))
		}
		defer ingestor.Disconnect()
	}

	tasks := task.NewTasks(db, engine, source, buffer, cnfg)
	if isDevMode() {
		logger.Info("dev mode, skipping task scheduling")
	} else {
		tasks.Run()
		defer tasks.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("main context done")
	case sig := <-sigCh:
		logger.Info("received signal", slog.Any("signal", sig))
		cancel()
	}
}

func isDevMode() bool {
	return strings.EqualFold(os.Getenv("APP_ENV"), "development")
}

func exitWithError(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("application shutting down with error", slog.Any("error", err))
	}

	time.Sleep(2 * time.Second)
	os.Exit(1)
}
