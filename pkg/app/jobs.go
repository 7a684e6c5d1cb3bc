package app

import (
	"context"

	"github.com/amirasaad/settlement/pkg/config"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/scheduler"
	"github.com/amirasaad/settlement/pkg/service/billing"
)

// Job names accepted by the scheduler and the admin trigger route.
const (
	JobOutbox          = "outbox"
	JobReconcile       = "reconcile"
	JobWebhooks        = "webhooks"
	JobCollectionGuard = "collection-guard"
	JobRollover        = "rollover"
	JobSentinel        = "sentinel"
	JobRepair          = "repair"
	JobMetrics         = "metrics"
)

// Jobs returns the periodic jobs with the configured intervals.
func (a *App) Jobs() []scheduler.Job {
	every := &config.Scheduler{}
	if a.Config != nil && a.Config.Scheduler != nil {
		every = a.Config.Scheduler
	}
	return []scheduler.Job{
		{Name: JobOutbox, Every: every.Outbox, Run: func(ctx context.Context) (any, error) {
			return a.Disbursement.RunOutboxCycle(ctx)
		}},
		{Name: JobReconcile, Every: every.Reconcile, Run: func(ctx context.Context) (any, error) {
			return a.Disbursement.RunReconcileCycle(ctx)
		}},
		{Name: JobWebhooks, Every: every.Webhooks, Run: func(ctx context.Context) (any, error) {
			return a.Disbursement.ProcessWebhookEvents(ctx, 0)
		}},
		{Name: JobCollectionGuard, Every: every.CollectionGuard, Run: func(ctx context.Context) (any, error) {
			return a.Billing.RunCollectionGuard(ctx, billing.GuardParams{AdminUserID: ops.SystemActor})
		}},
		{Name: JobRollover, Every: every.Rollover, Run: func(ctx context.Context) (any, error) {
			return a.Billing.RunRolloverCycle(ctx)
		}},
		{Name: JobSentinel, Every: every.Sentinel, Run: func(ctx context.Context) (any, error) {
			return a.Sentinel.Run(ctx)
		}},
		{Name: JobRepair, Every: every.Repair, Run: func(ctx context.Context) (any, error) {
			return a.Repair.Run(ctx)
		}},
		{Name: JobMetrics, Every: every.Metrics, Run: func(ctx context.Context) (any, error) {
			return nil, a.Metrics.RollupPrevious(ctx)
		}},
	}
}
