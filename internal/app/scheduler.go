package app

import (
	"context"
	"fmt"
	"time"

	"github.com/segyhp/loan-origination/internal/config"
	"github.com/segyhp/loan-origination/internal/service"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

// NewScheduler registers the offer expiry and SLA scan jobs. Runs of the
// same job never overlap.
func NewScheduler(cfg *config.Config, wf *service.Workflow, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLocation(cfg.GetSchedulerLocation()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	if _, err := c.AddFunc(cfg.Scheduler.OfferExpiryCron, func() {
		ExpireOffers(wf, logger)
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule offer expiry: %w", err)
	}

	if _, err := c.AddFunc(cfg.Scheduler.SLAScanCron, func() {
		ScanSLABreaches(wf, logger)
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule SLA scan: %w", err)
	}

	logger.Info("Cron jobs scheduled successfully",
		zap.String("offer_expiry", cfg.Scheduler.OfferExpiryCron),
		zap.String("sla_scan", cfg.Scheduler.SLAScanCron),
	)
	return c, nil
}

// ExpireOffers runs one offer expiry pass
func ExpireOffers(wf *service.Workflow, logger *zap.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	expired, err := wf.ExpireOffers(ctx)
	if err != nil {
		logger.Error("offer expiry job failed", zap.Int("expired", expired), zap.Error(err))
		return expired
	}
	logger.Info("offer expiry job finished", zap.Int("expired", expired))
	return expired
}

// ScanSLABreaches runs one SLA scan pass
func ScanSLABreaches(wf *service.Workflow, logger *zap.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	breaches, err := wf.ScanSLABreaches(ctx)
	if err != nil {
		logger.Error("SLA scan job failed", zap.Error(err))
		return 0
	}
	logger.Info("SLA scan job finished", zap.Int("breaches", len(breaches)))
	return len(breaches)
}
