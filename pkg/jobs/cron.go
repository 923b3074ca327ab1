// Package jobs runs the scheduled maintenance of the affiliate program.
package jobs

import (
	"context"
	"time"

	"github.com/jordanlanch/directorist-affiliate/pkg/affiliate"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Schedules
const (
	ExpireCodesSchedule  = "0 * * * *" // hourly
	DailySummarySchedule = "0 8 * * *" // daily at 08:00
)

// CodeExpirer sweeps codes past their expiry
type CodeExpirer interface {
	ExpireCodes(ctx context.Context) (int, error)
}

// OverviewSource provides program totals
type OverviewSource interface {
	Overview(ctx context.Context) (*affiliate.Overview, error)
}

// PayoutCounter counts payouts by status
type PayoutCounter interface {
	Count(ctx context.Context, status domain.PayoutStatus) (int, error)
}

// CronManager manages scheduled jobs
type CronManager struct {
	cron     *cron.Cron
	codes    CodeExpirer
	reporter *Reporter
	logger   logger.Logger
}

// NewCronManager creates a new cron manager. reporter may be nil to skip the daily summary.
func NewCronManager(codes CodeExpirer, reporter *Reporter, log logger.Logger) *CronManager {
	if log == nil {
		log = logger.Nop()
	}
	return &CronManager{
		cron:     cron.New(),
		codes:    codes,
		reporter: reporter,
		logger:   log.With("component", "jobs"),
	}
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs() error {
	if _, err := cm.cron.AddFunc(ExpireCodesSchedule, cm.runExpireCodes); err != nil {
		return err
	}

	if cm.reporter != nil {
		if _, err := cm.cron.AddFunc(DailySummarySchedule, cm.runDailySummary); err != nil {
			return err
		}
	}

	cm.logger.Info("cron jobs configured", "entries", len(cm.cron.Entries()))
	return nil
}

func (cm *CronManager) runExpireCodes() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := cm.codes.ExpireCodes(ctx)
	if err != nil {
		cm.logger.Error("code expiry sweep failed", "error", err)
		return
	}
	cm.logger.Info("code expiry sweep completed", "expired", n)
}

func (cm *CronManager) runDailySummary() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := cm.reporter.Send(ctx); err != nil {
		cm.logger.Error("daily summary failed", "error", err)
	}
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.logger.Info("starting cron scheduler")
	cm.cron.Start()
}

// Stop stops the scheduler and waits for running jobs
func (cm *CronManager) Stop() {
	cm.logger.Info("stopping cron scheduler")
	<-cm.cron.Stop().Done()
}
