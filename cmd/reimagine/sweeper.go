package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"reimagine/internal/config"
	"reimagine/internal/gallery"
)

type orphanSweeper interface {
	SweepOrphans(ctx context.Context, apply bool, minAge time.Duration) (gallery.SweepResult, error)
}

// startSweeper schedules the orphan sweep when sweep.schedule is set. The
// returned stop func waits for a running sweep to finish.
func startSweeper(cfg *config.Config, svc orphanSweeper, logger *slog.Logger) (func(), error) {
	schedule := strings.TrimSpace(cfg.Sweep.Schedule)
	if schedule == "" {
		return func() {}, nil
	}
	minAge, err := cfg.SweepMinAge()
	if err != nil {
		return nil, err
	}
	logger = logger.With("component", "sweeper")

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		runSweep(context.Background(), svc, minAge, logger)
	}); err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}
	c.Start()
	logger.Info("orphan sweep scheduled", "schedule", schedule, "min_age", minAge)

	return func() {
		<-c.Stop().Done()
	}, nil
}

func runSweep(ctx context.Context, svc orphanSweeper, minAge time.Duration, logger *slog.Logger) {
	started := time.Now()
	result, err := svc.SweepOrphans(ctx, true, minAge)
	if err != nil {
		logger.Error("orphan sweep failed", "err", err)
		return
	}
	logger.Info("orphan sweep finished",
		"candidates", result.CandidateCount,
		"deleted", result.DeletedCount,
		"failed", result.FailedCount,
		"reclaimed_bytes", result.ReclaimedBytes,
		"duration", time.Since(started),
	)
}
