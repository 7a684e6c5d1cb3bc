package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/billing"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/service/idempotency"
)

// errMoved aborts a transition whose row changed under the scan.
var errMoved = errors.New("invoice moved")

// GuardParams tunes one collection guard run. Zero values use the configured
// grace period and scan every invoice.
type GuardParams struct {
	AdminUserID string `json:"adminUserId"`
	GraceDays   int    `json:"graceDays"`
	InvoiceID   string `json:"invoiceId"`
}

// GuardReport counts the transitions made by a run.
type GuardReport struct {
	Graced  int `json:"graced"`
	Overdue int `json:"overdue"`
	Blocked int `json:"blocked"`
}

type overdueOutcome struct {
	Blocked        bool   `json:"blocked"`
	SubscriptionID string `json:"subscriptionId"`
}

// RunCollectionGuard moves unpaid invoices from CURRENT to GRACE once due,
// then to OVERDUE once grace ends. An overdue invoice blocks its
// subscription and pauses boost for the tenant.
func (s *Service) RunCollectionGuard(ctx context.Context, p GuardParams) (GuardReport, error) {
	var rep GuardReport
	actor := p.AdminUserID
	if actor == "" {
		actor = ops.SystemActor
	}
	graceDays := p.GraceDays
	if graceDays <= 0 {
		graceDays = s.graceDays
	}
	now := s.now()

	toGrace, err := s.scan(ctx, p.InvoiceID, repository.InvoiceFilter{
		Statuses:         []billing.InvoiceStatus{billing.InvoiceIssued},
		CollectionStatus: billing.CollectionCurrent,
		DueBefore:        now,
	})
	if err != nil {
		return rep, err
	}
	for _, inv := range toGrace {
		graceEnds := now.AddDate(0, 0, graceDays)
		_, fresh, err := idempotency.Run(ctx, s.guard, "COLLECTION_GUARD_GRACE:"+inv.ID, "boost_invoice", actor,
			func(uow repository.UnitOfWork) (bool, error) {
				ok, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimInvoiceCollection, inv.ID,
					[]string{string(billing.CollectionCurrent)}, string(billing.CollectionGrace),
					map[string]any{"grace_ends_at": graceEnds})
				if err != nil {
					return false, err
				}
				if !ok {
					return false, errMoved
				}
				return true, s.audit.Append(ctx, uow, ops.LogEntry{
					TenantID:   inv.TenantID,
					Actor:      actor,
					Action:     ops.ActionBoostInvoiceGraceStarted,
					EntityType: "boost_invoice",
					EntityID:   inv.ID,
					Severity:   ops.SeverityWarning,
					Payload:    ops.Transition{From: string(billing.CollectionCurrent), To: string(billing.CollectionGrace), Reason: graceEnds.Format("2006-01-02")},
				})
			})
		if errors.Is(err, errMoved) {
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("grace invoice %s: %w", inv.ID, err)
		}
		if fresh {
			rep.Graced++
			s.emitInvoice(ctx, inv, string(billing.CollectionCurrent), string(billing.CollectionGrace))
		}
	}

	toOverdue, err := s.scan(ctx, p.InvoiceID, repository.InvoiceFilter{
		Statuses:         []billing.InvoiceStatus{billing.InvoiceIssued},
		CollectionStatus: billing.CollectionGrace,
		GraceEndsBefore:  now,
	})
	if err != nil {
		return rep, err
	}
	for _, inv := range toOverdue {
		out, fresh, err := idempotency.Run(ctx, s.guard, "COLLECTION_GUARD_OVERDUE:"+inv.ID, "boost_invoice", actor,
			func(uow repository.UnitOfWork) (overdueOutcome, error) {
				return s.markOverdue(ctx, uow, actor, inv)
			})
		if errors.Is(err, errMoved) {
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("overdue invoice %s: %w", inv.ID, err)
		}
		if !fresh {
			continue
		}
		rep.Overdue++
		s.emitInvoice(ctx, inv, string(billing.CollectionGrace), string(billing.CollectionOverdue))
		if out.Blocked {
			rep.Blocked++
			s.invalidate(ctx, inv.TenantID)
			s.emit(ctx, &billing.Subscription{ID: out.SubscriptionID, TenantID: inv.TenantID}, inv.ID,
				string(billing.SubscriptionActive), string(billing.SubscriptionPaused))
		}
	}
	if rep != (GuardReport{}) {
		s.logger.Info("collection guard finished", "graced", rep.Graced, "overdue", rep.Overdue, "blocked", rep.Blocked)
	}
	return rep, nil
}

func (s *Service) scan(ctx context.Context, invoiceID string, f repository.InvoiceFilter) ([]*billing.Invoice, error) {
	invoices, err := s.uow.Billing().ListInvoices(ctx, f)
	if err != nil || invoiceID == "" {
		return invoices, err
	}
	for _, inv := range invoices {
		if inv.ID == invoiceID {
			return []*billing.Invoice{inv}, nil
		}
	}
	return nil, nil
}

func (s *Service) markOverdue(
	ctx context.Context,
	uow repository.UnitOfWork,
	actor string,
	inv *billing.Invoice,
) (overdueOutcome, error) {
	now := s.now()
	out := overdueOutcome{SubscriptionID: inv.SubscriptionID}
	ok, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimInvoiceCollection, inv.ID,
		[]string{string(billing.CollectionGrace)}, string(billing.CollectionOverdue),
		map[string]any{"overdue_at": now})
	if err != nil {
		return out, err
	}
	if !ok {
		return out, errMoved
	}
	if err := s.audit.Append(ctx, uow, ops.LogEntry{
		TenantID:   inv.TenantID,
		Actor:      actor,
		Action:     ops.ActionBoostInvoiceOverdue,
		EntityType: "boost_invoice",
		EntityID:   inv.ID,
		Severity:   ops.SeverityCritical,
		Payload:    ops.Money{Amount: inv.Amount, Currency: inv.Currency, Reference: inv.PeriodKey},
	}); err != nil {
		return out, err
	}

	sub, err := uow.Billing().GetSubscription(ctx, inv.SubscriptionID)
	if err != nil {
		return out, err
	}
	if sub.BillingBlocked {
		return out, nil
	}
	if err := uow.Billing().UpdateSubscription(ctx, sub.ID, map[string]any{
		"billing_blocked": true,
		"status":          string(billing.SubscriptionPaused),
		"blocked_at":      now,
		"updated_at":      now,
	}); err != nil {
		return out, err
	}
	if err := uow.Policies().SetBoostPaused(ctx, inv.TenantID, true, now); err != nil {
		return out, err
	}
	out.Blocked = true
	return out, s.audit.Append(ctx, uow, ops.LogEntry{
		TenantID:   inv.TenantID,
		Actor:      actor,
		Action:     ops.ActionBoostSubscriptionBlocked,
		EntityType: "boost_subscription",
		EntityID:   sub.ID,
		Severity:   ops.SeverityCritical,
		Payload:    ops.Transition{From: string(sub.Status), To: string(billing.SubscriptionPaused), Reason: inv.ID},
	})
}

// MarkInvoicePaid settles an ISSUED invoice against provider clearing,
// returns it to CURRENT and unblocks its subscription once none of the
// subscription's other invoices is OVERDUE. Boost is resumed for the tenant
// when no other invoice of the tenant is OVERDUE.
func (s *Service) MarkInvoicePaid(ctx context.Context, actor, invoiceID string) (*billing.Invoice, error) {
	key := "BOOST_INVOICE_PAYMENT:" + invoiceID
	var unblocked bool
	inv, fresh, err := idempotency.Run(ctx, s.guard, key, "boost_invoice", actor,
		func(uow repository.UnitOfWork) (*billing.Invoice, error) {
			inv, err := uow.Billing().GetInvoice(ctx, invoiceID)
			if errors.Is(err, domain.ErrNotFound) {
				return nil, billing.ErrInvoiceNotFound
			}
			if err != nil {
				return nil, err
			}
			if inv.Status == billing.InvoicePaid {
				return inv, nil
			}
			if inv.Status != billing.InvoiceIssued {
				return nil, billing.ErrInvoiceNotPayable
			}
			now := s.now()
			g, err := s.poster.PostGroup(ctx, uow, ledger.GroupInput{
				TenantID:       s.platform,
				Type:           ledger.GroupBoostPayment,
				IdempotencyKey: key,
				Description:    "boost payment " + inv.PeriodKey,
				Lines: []ledger.Line{
					s.line(ledger.AccountProviderClearing, ledger.Debit, inv),
					s.line(ledger.AccountReceivable, ledger.Credit, inv),
				},
			})
			if err != nil {
				return nil, err
			}
			ok, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimInvoice, inv.ID,
				[]string{string(billing.InvoiceIssued)}, string(billing.InvoicePaid),
				map[string]any{"paid_at": now, "collection_status": string(billing.CollectionCurrent)})
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, billing.ErrInvoiceNotPayable
			}

			overdue := func(f repository.InvoiceFilter) (int64, error) {
				f.Statuses = []billing.InvoiceStatus{billing.InvoiceIssued}
				f.CollectionStatus = billing.CollectionOverdue
				f.ExcludeInvoiceID = inv.ID
				return uow.Billing().CountInvoices(ctx, f)
			}
			subOverdue, err := overdue(repository.InvoiceFilter{SubscriptionID: inv.SubscriptionID})
			if err != nil {
				return nil, err
			}
			sub, err := uow.Billing().GetSubscription(ctx, inv.SubscriptionID)
			if err != nil {
				return nil, err
			}
			if sub.BillingBlocked && subOverdue == 0 {
				fields := map[string]any{"billing_blocked": false, "blocked_at": nil, "updated_at": now}
				if sub.Status == billing.SubscriptionPaused {
					fields["status"] = string(billing.SubscriptionActive)
				}
				if err := uow.Billing().UpdateSubscription(ctx, sub.ID, fields); err != nil {
					return nil, err
				}
				unblocked = true
			}
			others, err := overdue(repository.InvoiceFilter{TenantID: inv.TenantID})
			if err != nil {
				return nil, err
			}
			if others == 0 {
				if err := uow.Policies().SetBoostPaused(ctx, inv.TenantID, false, now); err != nil {
					return nil, err
				}
			}
			if err := s.audit.Append(ctx, uow, ops.LogEntry{
				TenantID:   inv.TenantID,
				Actor:      actor,
				Action:     ops.ActionBoostInvoicePaid,
				EntityType: "boost_invoice",
				EntityID:   inv.ID,
				Payload:    ops.Money{Amount: inv.Amount, Currency: inv.Currency, LedgerGroupID: g.ID, Reference: inv.PeriodKey},
			}); err != nil {
				return nil, err
			}
			prev := inv.CollectionStatus
			inv.Status = billing.InvoicePaid
			inv.CollectionStatus = billing.CollectionCurrent
			inv.PaidAt = &now
			inv.UpdatedAt = now
			if prev != billing.CollectionCurrent {
				s.logger.Info("overdue invoice paid", "invoice_id", inv.ID, "was", prev)
			}
			return inv, nil
		})
	if err != nil {
		return nil, err
	}
	if fresh {
		s.invalidate(ctx, inv.TenantID)
		s.emitInvoice(ctx, inv, string(billing.InvoiceIssued), string(billing.InvoicePaid))
		if unblocked {
			s.emit(ctx, &billing.Subscription{ID: inv.SubscriptionID, TenantID: inv.TenantID}, inv.ID,
				string(billing.SubscriptionPaused), string(billing.SubscriptionActive))
		}
	}
	return inv, nil
}

// RolloverReport counts what a rollover cycle did.
type RolloverReport struct {
	Renewed int `json:"renewed"`
	Expired int `json:"expired"`
	Errors  int `json:"errors"`
}

type rollover struct {
	Expired   bool   `json:"expired"`
	PeriodKey string `json:"periodKey"`
	InvoiceID string `json:"invoiceId,omitempty"`
}

// RunRolloverCycle advances ACTIVE subscriptions whose period ended. Auto
// renewing ones start the next period and get its invoice, the rest expire.
// A failing subscription is counted and skipped.
func (s *Service) RunRolloverCycle(ctx context.Context) (RolloverReport, error) {
	var rep RolloverReport
	subs, err := s.uow.Billing().ListSubscriptionsEndingBefore(ctx, s.now(), rolloverBatch)
	if err != nil {
		return rep, err
	}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		periodKey := billing.PeriodKey(sub.CurrentPeriodEnd)
		key := "ROLL_OVER:" + sub.ID + ":" + periodKey
		out, fresh, err := idempotency.Run(ctx, s.guard, key, "boost_subscription", ops.SystemActor,
			func(uow repository.UnitOfWork) (rollover, error) {
				return s.rollover(ctx, uow, sub, periodKey)
			})
		if err != nil {
			rep.Errors++
			s.logger.Error("subscription rollover failed", "subscription_id", sub.ID, "error", err)
			continue
		}
		if !fresh {
			continue
		}
		if out.Expired {
			rep.Expired++
			s.emit(ctx, sub, "", string(billing.SubscriptionActive), string(billing.SubscriptionExpired))
			continue
		}
		rep.Renewed++
		s.invalidate(ctx, sub.TenantID)
		if out.InvoiceID != "" {
			s.emit(ctx, sub, out.InvoiceID, "", string(billing.InvoiceIssued))
		}
	}
	return rep, nil
}

func (s *Service) rollover(
	ctx context.Context,
	uow repository.UnitOfWork,
	sub *billing.Subscription,
	periodKey string,
) (rollover, error) {
	out := rollover{PeriodKey: periodKey}
	if !sub.AutoRenew {
		ok, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimSubscription, sub.ID,
			[]string{string(billing.SubscriptionActive)}, string(billing.SubscriptionExpired), nil)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, billing.ErrSubscriptionInactive
		}
		out.Expired = true
		return out, s.audit.Append(ctx, uow, ops.LogEntry{
			TenantID:   sub.TenantID,
			Actor:      ops.SystemActor,
			Action:     ops.ActionBoostSubscriptionChanged,
			EntityType: "boost_subscription",
			EntityID:   sub.ID,
			Payload:    ops.Transition{From: string(billing.SubscriptionActive), To: string(billing.SubscriptionExpired)},
		})
	}

	existing, err := uow.Billing().FindInvoice(ctx, sub.ID, periodKey)
	if err != nil {
		return out, err
	}
	if existing == nil {
		inv, err := s.issue(ctx, uow, ops.SystemActor, sub, periodKey)
		if err != nil {
			return out, err
		}
		out.InvoiceID = inv.ID
	}
	start := sub.CurrentPeriodEnd
	end := start.AddDate(0, 1, 0)
	if err := uow.Billing().UpdateSubscription(ctx, sub.ID, map[string]any{
		"current_period_start": start,
		"current_period_end":   end,
		"updated_at":           s.now(),
	}); err != nil {
		return out, err
	}
	return out, s.audit.Append(ctx, uow, ops.LogEntry{
		TenantID:   sub.TenantID,
		Actor:      ops.SystemActor,
		Action:     ops.ActionBoostSubscriptionRenewed,
		EntityType: "boost_subscription",
		EntityID:   sub.ID,
		Payload:    ops.Transition{From: billing.PeriodKey(sub.CurrentPeriodStart), To: periodKey},
	})
}
