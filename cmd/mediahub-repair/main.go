package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/mediahub/pkg/config"
	"github.com/platinummonkey/mediahub/pkg/observability"
	"github.com/platinummonkey/mediahub/pkg/storage/postgres"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

var (
	runOnce  = flag.Bool("once", false, "Repair every team once and exit")
	schedule = flag.String("schedule", "", "Cron schedule for repairs (defaults to repair.schedule from config)")
	teamID   = flag.String("team", "", "Repair a single team. Only used with -once")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)

	if cfg.Database.URL == "" {
		logger.Error("MEDIAHUB_DATABASE_URL is required for storage repair")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cm, err := postgres.NewConnectionManager(ctx, postgres.DefaultConnectionConfig(cfg.Database.URL), logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer cm.Close()

	store := postgres.NewStore(cm.Primary())
	repairer := teams.NewRepairer(store, store, cfg.Repair.Concurrency)

	if *runOnce {
		if err := repair(ctx, repairer, *teamID, logger); err != nil {
			logger.WithError(err).Error("Storage repair failed")
			os.Exit(1)
		}
		return
	}

	sched := *schedule
	if sched == "" {
		sched = cfg.Repair.Schedule
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = c.AddFunc(sched, func() {
		defer observability.RecoverPanic(logger, "scheduled repair")
		runCtx, cancel := context.WithTimeout(ctx, time.Hour)
		defer cancel()
		if err := repair(runCtx, repairer, "", logger); err != nil {
			logger.WithError(err).Error("Scheduled storage repair failed")
		}
	})
	if err != nil {
		logger.WithError(err).WithField("schedule", sched).Error("Invalid repair schedule")
		os.Exit(1)
	}

	c.Start()
	logger.WithField("schedule", sched).Info("Storage repair scheduler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down storage repair scheduler")

	cancel()
	<-c.Stop().Done()
}

// repair recomputes used bytes for one team, or for every team when teamID is empty
func repair(ctx context.Context, repairer *teams.Repairer, teamID string, logger *observability.Logger) error {
	start := time.Now()

	var results []*teams.RepairResult
	if teamID != "" {
		res, err := repairer.Repair(ctx, teamID)
		if err != nil {
			return err
		}
		results = []*teams.RepairResult{res}
	} else {
		all, err := repairer.RepairAll(ctx)
		if err != nil {
			return err
		}
		results = all
	}

	corrected := 0
	for _, res := range results {
		if res.Drift() == 0 {
			continue
		}
		corrected++
		logger.WithFields(map[string]interface{}{
			"team_id":        res.TeamID,
			"previous_bytes": res.Previous,
			"total_bytes":    res.TotalBytes,
			"drift_bytes":    res.Drift(),
		}).Info("Corrected storage usage drift")
	}

	logger.WithFields(map[string]interface{}{
		"teams":     len(results),
		"corrected": corrected,
		"duration":  time.Since(start).String(),
	}).Info("Storage repair complete")
	return nil
}
