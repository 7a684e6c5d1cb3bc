package integrity

import (
	"context"
	"log/slog"
	"time"

	"github.com/amirasaad/settlement/pkg/config"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/service/opslog"
)

const repairBatch = 100

// Repair heals rows that workers left behind.
type Repair struct {
	raiser
	audit        *opslog.Recorder
	staleSending time.Duration
	silentSent   time.Duration
}

func NewRepair(deps config.Deps, audit *opslog.Recorder) *Repair {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repair{
		raiser:       raiser{uow: deps.Uow, bus: deps.EventBus, now: deps.Now, logger: logger.With("job", "repair")},
		audit:        audit,
		staleSending: 15 * time.Minute,
		silentSent:   24 * time.Hour,
	}
	if deps.Config != nil && deps.Config.Integrity != nil {
		if d := deps.Config.Integrity.StaleSending; d > 0 {
			r.staleSending = d
		}
		if d := deps.Config.Integrity.SilentSent; d > 0 {
			r.silentSent = d
		}
	}
	return r
}

// RepairReport counts what one run changed.
type RepairReport struct {
	StaleReset        int `json:"staleReset"`
	OutboxMissing     int `json:"outboxMissing"`
	ReconcileRequired int `json:"reconcileRequired"`
}

// Run resets stale SENDING outbox rows, flags QUEUED payouts without an
// outbox row and hands silent SENT payouts to manual reconciliation.
func (r *Repair) Run(ctx context.Context) (RepairReport, error) {
	var rep RepairReport
	var err error
	if rep.StaleReset, err = r.resetStaleSending(ctx); err != nil {
		return rep, err
	}
	if rep.OutboxMissing, err = r.flagMissingOutbox(ctx); err != nil {
		return rep, err
	}
	if rep.ReconcileRequired, err = r.markSilentSent(ctx); err != nil {
		return rep, err
	}
	if rep != (RepairReport{}) {
		r.logger.Info("repair finished",
			"stale_reset", rep.StaleReset, "outbox_missing", rep.OutboxMissing, "reconcile_required", rep.ReconcileRequired)
	}
	return rep, nil
}

// resetStaleSending puts abandoned claims back to PENDING. The attempt
// counts, so a row that keeps stalling still reaches the retry ceiling.
// The conditional update on updated_at resets a row once per stale window.
func (r *Repair) resetStaleSending(ctx context.Context) (int, error) {
	before := r.now().Add(-r.staleSending)
	rows, err := r.uow.Outbox().ListStaleSending(ctx, before, repairBatch)
	if err != nil {
		return 0, err
	}
	reset := 0
	for _, o := range rows {
		attempts := o.AttemptCount + 1
		var ok bool
		err := r.uow.Do(ctx, func(uow repository.UnitOfWork) error {
			var err error
			ok, err = uow.Claimer().CompareAndSwapStale(ctx, repository.ClaimOutbox, o.ID,
				string(payout.OutboxSending), before, string(payout.OutboxPending),
				map[string]any{"attempt_count": attempts, "next_retry_at": nil})
			if err != nil || !ok {
				return err
			}
			return r.audit.Append(ctx, uow, ops.LogEntry{
				TenantID:   o.Payload.SellerTenantID,
				Actor:      ops.SystemActor,
				Action:     ops.ActionOutboxStaleReset,
				EntityType: "payout_outbox",
				EntityID:   o.ID,
				Severity:   ops.SeverityWarning,
				Payload:    ops.OutboxAttempt{Attempts: attempts, LastError: o.LastError},
			})
		})
		if err != nil {
			return reset, err
		}
		if ok {
			reset++
		}
	}
	return reset, nil
}

func (r *Repair) flagMissingOutbox(ctx context.Context) (int, error) {
	payouts, err := r.uow.ProviderPayouts().ListQueuedWithoutOutbox(ctx, repairBatch)
	if err != nil {
		return 0, err
	}
	flagged := 0
	for _, po := range payouts {
		created, err := r.raise(ctx, ops.AlertOutboxMissing, ops.SeverityCritical, po.ID, map[string]any{
			"providerPayoutId": po.ProviderPayoutID,
			"shipmentId":       po.ShipmentID,
		})
		if err != nil {
			return flagged, err
		}
		if created {
			flagged++
		}
	}
	return flagged, nil
}

func (r *Repair) markSilentSent(ctx context.Context) (int, error) {
	payouts, err := r.uow.ProviderPayouts().List(ctx, repository.PayoutFilter{
		Statuses:      []payout.ProviderStatus{payout.ProviderSent},
		UpdatedBefore: r.now().Add(-r.silentSent),
		Limit:         repairBatch,
	})
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, po := range payouts {
		var ok bool
		err := r.uow.Do(ctx, func(uow repository.UnitOfWork) error {
			var err error
			ok, err = uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimProviderPayout, po.ID,
				[]string{string(payout.ProviderSent)}, string(payout.ProviderReconcileRequired), nil)
			if err != nil || !ok {
				return err
			}
			return r.audit.Append(ctx, uow, ops.LogEntry{
				TenantID:   po.SellerTenantID,
				Actor:      ops.SystemActor,
				Action:     ops.ActionReconcileRequired,
				EntityType: "provider_payout",
				EntityID:   po.ProviderPayoutID,
				Severity:   ops.SeverityWarning,
				Payload:    ops.Transition{From: string(payout.ProviderSent), To: string(payout.ProviderReconcileRequired), Reason: "silent after dispatch"},
			})
		})
		if err != nil {
			return marked, err
		}
		if !ok {
			continue
		}
		marked++
		if _, err := r.raise(ctx, ops.AlertReconcileRequired, ops.SeverityWarning, po.ID, map[string]any{
			"providerPayoutId": po.ProviderPayoutID,
			"sentAt":           po.SentAt,
		}); err != nil {
			return marked, err
		}
	}
	return marked, nil
}
