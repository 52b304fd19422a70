package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ecomsimply/repricer/internal/advisor"
	"github.com/ecomsimply/repricer/internal/apply"
	"github.com/ecomsimply/repricer/internal/config"
	"github.com/ecomsimply/repricer/internal/logger"
	"github.com/ecomsimply/repricer/internal/storage"
	"github.com/ecomsimply/repricer/internal/telegram"
)

// Scheduler drives the periodic repricing loop: every interval it applies
// all active rules, and once a day it purges expired history and pushes an
// activity summary.
type Scheduler struct {
	applier  *apply.Applier
	repo     *storage.Repository
	advisor  *advisor.Advisor
	notifier *telegram.Notifier
	config   *config.Config
	logger   *logger.Logger

	lastMaintenance time.Time
}

func NewScheduler(
	applier *apply.Applier,
	repo *storage.Repository,
	adv *advisor.Advisor,
	notifier *telegram.Notifier,
	cfg *config.Config,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		applier:  applier,
		repo:     repo,
		advisor:  adv,
		notifier: notifier,
		config:   cfg,
		logger:   log,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	interval := s.config.PricingInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", interval.String())

	// Run immediately on start
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in repricing cycle", "panic", fmt.Sprint(r))
			s.notifier.NotifyError("repricing cycle panic", fmt.Errorf("%v", r))
		}
	}()

	s.logger.Info("starting repricing cycle")

	rules, err := s.repo.ListActiveRules()
	if err != nil {
		s.logger.Error("list active rules", "error", err)
		return
	}
	s.logger.Info("active rules loaded", "count", len(rules))

	var applied, failed, skipped int
	for i := range rules {
		if ctx.Err() != nil {
			s.logger.Info("cycle interrupted", "applied", applied)
			return
		}
		res := s.applier.Apply(ctx, &rules[i], s.config.Pricing.AutoPublish)
		switch {
		case res.Skipped:
			skipped++
		case res.Error != "":
			failed++
		default:
			applied++
		}
	}

	s.logger.Info("repricing cycle completed",
		"applied", applied, "failed", failed, "skipped", skipped)

	if time.Since(s.lastMaintenance) >= 24*time.Hour {
		s.runMaintenance(ctx)
		s.lastMaintenance = time.Now()
	}
}

func (s *Scheduler) runMaintenance(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.HistoryRetention())
	purged, err := s.repo.PurgeHistoryBefore(cutoff)
	if err != nil {
		s.logger.Error("purge history", "error", err)
	} else if purged > 0 {
		s.logger.Info("purged expired history", "records", purged, "cutoff", cutoff.Format(time.RFC3339))
	}

	if !s.advisor.Enabled() {
		return
	}

	entries, err := s.repo.ListHistory("", "", 100)
	if err != nil {
		s.logger.Error("load history for summary", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	summary, err := s.advisor.Summarize(ctx, entries)
	if err != nil {
		s.logger.Error("advisor summary", "error", err)
		return
	}
	s.notifier.NotifyStatus("📊 " + summary)
}
