package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/angas/netload-go/config"
	"github.com/angas/netload-go/database"
	"github.com/angas/netload-go/ems"
	"github.com/angas/netload-go/influx"
	"github.com/lmittmann/tint"
)

// One-shot net load query: computes the curve for a single job and prints it
// as CSV on stdout.
func main() {
	configPath := flag.String("config", "", "path to config file")
	jobID := flag.Int("job", 0, "prediction job id")
	startStr := flag.String("start", "", "window start (RFC3339)")
	endStr := flag.String("end", "", "window end (RFC3339), default now")
	resolution := flag.String("resolution", "", "bucket size, e.g. 15m (default from job)")
	direct := flag.Bool("direct", false, "query each system separately instead of grouped")
	ignoreFactor := flag.Bool("ignore-factor", false, "apply only the polarity, not the factor")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelWarn,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(logger)

	if *jobID == 0 || *startStr == "" {
		flag.Usage()
		os.Exit(2)
	}

	start, err := time.Parse(time.RFC3339, *startStr)
	if err != nil {
		fatal(fmt.Errorf("parsing start: %w", err))
	}
	end := time.Now().UTC()
	if *endStr != "" {
		end, err = time.Parse(time.RFC3339, *endStr)
		if err != nil {
			fatal(fmt.Errorf("parsing end: %w", err))
		}
	}

	cnfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}

	ctx := context.Background()

	db, err := database.New(ctx, cnfg.Database.Path)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	source := influx.New(cnfg.Influx.Url, cnfg.Influx.Token, cnfg.Influx.Org, cnfg.Influx.Bucket)
	defer source.Close()
	source.SetWindowCorrection(influx.WindowCorrection{Periods: cnfg.Influx.GetWindowCorrectionPeriods()})

	res := *resolution
	if res == "" {
		job, err := db.GetPredictionJob(ctx, *jobID)
		if err != nil {
			fatal(err)
		}
		res = job.Resolution
	}

	engine := ems.New(db, source)
	load, err := engine.NetLoad(ctx, *jobID, start, end, res, ems.NetLoadOptions{
		Direct:       *direct,
		IgnoreFactor: *ignoreFactor,
	})
	if err != nil {
		fatal(err)
	}

	fmt.Println("timestamp,load")
	for _, p := range load {
		fmt.Printf("%s,%g\n", p.Time.UTC().Format(time.RFC3339), p.Value)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
