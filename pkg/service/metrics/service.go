// Package metrics derives the daily finance rollups from payments, payouts,
// ledger entries and alerts. Nothing here writes financial state.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/amirasaad/settlement/pkg/config"
	"github.com/amirasaad/settlement/pkg/domain/billing"
	"github.com/amirasaad/settlement/pkg/domain/escrow"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/metrics"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/domain/rollout"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/service/opslog"
	"github.com/shopspring/decimal"
)

type Service struct {
	uow       repository.UnitOfWork
	audit     *opslog.Recorder
	platform  string
	dayOffset time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(deps config.Deps, audit *opslog.Recorder) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		uow:       deps.Uow,
		audit:     audit,
		platform:  deps.PlatformTenant(),
		dayOffset: 3 * time.Hour,
		now:       deps.Now,
		logger:    logger.With("service", "metrics"),
	}
	if deps.Config != nil && deps.Config.Risk != nil {
		s.dayOffset = deps.Config.Risk.DayOffset
	}
	return s
}

// window returns the local business day containing day and the calendar
// date the rollup is stored under.
func (s *Service) window(day time.Time) (key, from, to time.Time) {
	from, to = rollout.DayWindow(day, s.dayOffset)
	local := from.Add(s.dayOffset)
	key = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return key, from, to
}

// ComputePlatformDaily builds the platform figures for the business day
// containing day.
func (s *Service) ComputePlatformDaily(ctx context.Context, day time.Time) (*metrics.Daily, error) {
	key, from, to := s.window(day)
	m := &metrics.Daily{Day: key, ComputedAt: s.now()}

	payments, err := s.uow.Payments().List(ctx, repository.PaymentFilter{PaidFrom: from, PaidTo: to})
	if err != nil {
		return nil, err
	}
	orders := map[string]struct{}{}
	buyers := map[string]struct{}{}
	sellers := map[string]struct{}{}
	for _, p := range payments {
		m.GrossGmv = m.GrossGmv.Add(p.Amount)
		orders[p.OrderID] = struct{}{}
		sellers[p.TenantID] = struct{}{}
		if p.BuyerTenantID != "" {
			buyers[p.BuyerTenantID] = struct{}{}
		}
	}

	payouts, err := s.succeededPayouts(ctx, "", from, to)
	if err != nil {
		return nil, err
	}
	for _, po := range payouts {
		m.PayoutVolume = m.PayoutVolume.Add(po.NetAmount)
		m.PayoutCount++
		sellers[po.SellerTenantID] = struct{}{}
	}
	m.OrderCount = int64(len(orders))
	m.ActiveBuyers = int64(len(buyers))
	m.ActiveSellers = int64(len(sellers))

	if m.CommissionRevenue, err = s.credits(ctx, s.platform, ledger.AccountPlatformRevenue, from, to); err != nil {
		return nil, err
	}
	if m.BoostRevenue, err = s.credits(ctx, s.platform, ledger.AccountBoostRevenue, from, to); err != nil {
		return nil, err
	}
	m.TakeRate = metrics.TakeRateOf(m.CommissionRevenue, m.GrossGmv)

	escrowLegs, err := s.balanceAt(ctx, "", ledger.AccountEscrowLiability, to)
	if err != nil {
		return nil, err
	}
	m.EscrowFloat = escrowLegs.Neg()

	if err := s.chargebacks(ctx, m, "", from, to); err != nil {
		return nil, err
	}
	if m.ReceivableOutstanding, err = s.balanceAt(ctx, "", ledger.AccountChargebackReceivable, to); err != nil {
		return nil, err
	}
	if m.CriticalAlerts, err = s.uow.Alerts().Count(ctx, repository.AlertFilter{
		Severity:    ops.SeverityCritical,
		CreatedFrom: from,
		CreatedTo:   to,
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// ComputeTenantDaily builds the figures of one selling tenant. Revenue is
// what the platform earned from the tenant: commission on its payouts and
// the boost invoices issued to it.
func (s *Service) ComputeTenantDaily(ctx context.Context, day time.Time, tenantID string) (*metrics.Daily, error) {
	key, from, to := s.window(day)
	m := &metrics.Daily{Day: key, TenantID: tenantID, ComputedAt: s.now()}

	payments, err := s.uow.Payments().List(ctx, repository.PaymentFilter{TenantID: tenantID, PaidFrom: from, PaidTo: to})
	if err != nil {
		return nil, err
	}
	orders := map[string]struct{}{}
	buyers := map[string]struct{}{}
	for _, p := range payments {
		m.GrossGmv = m.GrossGmv.Add(p.Amount)
		orders[p.OrderID] = struct{}{}
		if p.BuyerTenantID != "" {
			buyers[p.BuyerTenantID] = struct{}{}
		}
	}
	m.OrderCount = int64(len(orders))
	m.ActiveBuyers = int64(len(buyers))

	payouts, err := s.succeededPayouts(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	for _, po := range payouts {
		m.PayoutVolume = m.PayoutVolume.Add(po.NetAmount)
		m.CommissionRevenue = m.CommissionRevenue.Add(po.CommissionAmount)
		m.PayoutCount++
	}
	if len(payments) > 0 || len(payouts) > 0 {
		m.ActiveSellers = 1
	}

	invoices, err := s.uow.Billing().ListInvoices(ctx, repository.InvoiceFilter{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		if inv.Status == billing.InvoiceVoid || inv.IssuedAt.Before(from) || !inv.IssuedAt.Before(to) {
			continue
		}
		m.BoostRevenue = m.BoostRevenue.Add(inv.Amount)
	}
	m.TakeRate = metrics.TakeRateOf(m.CommissionRevenue, m.GrossGmv)

	if err := s.chargebacks(ctx, m, tenantID, from, to); err != nil {
		return nil, err
	}
	if m.ReceivableOutstanding, err = s.balanceAt(ctx, tenantID, ledger.AccountChargebackReceivable, to); err != nil {
		return nil, err
	}
	return m, nil
}

// RollupReport names what one rollup stored.
type RollupReport struct {
	Day     string   `json:"day"`
	Tenants []string `json:"tenants"`
}

// Rollup computes and upserts the platform row and one row per tenant that
// sold or was paid out that day. Running it again overwrites the figures.
func (s *Service) Rollup(ctx context.Context, day time.Time) (RollupReport, error) {
	key, from, to := s.window(day)
	rep := RollupReport{Day: key.Format(time.DateOnly)}

	platform, err := s.ComputePlatformDaily(ctx, day)
	if err != nil {
		return rep, fmt.Errorf("platform metrics: %w", err)
	}
	tenants, err := s.activeTenants(ctx, from, to)
	if err != nil {
		return rep, err
	}
	rows := make([]*metrics.Daily, 0, len(tenants))
	for _, t := range tenants {
		m, err := s.ComputeTenantDaily(ctx, day, t)
		if err != nil {
			return rep, fmt.Errorf("tenant %s metrics: %w", t, err)
		}
		rows = append(rows, m)
	}

	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		if err := uow.Metrics().UpsertPlatform(ctx, platform); err != nil {
			return err
		}
		for _, m := range rows {
			if err := uow.Metrics().UpsertTenant(ctx, m); err != nil {
				return err
			}
		}
		return s.audit.Append(ctx, uow, ops.LogEntry{
			Actor:      ops.SystemActor,
			Action:     ops.ActionMetricsRollup,
			EntityType: "platform_daily_metrics",
			EntityID:   rep.Day,
			Severity:   ops.SeverityInfo,
		})
	})
	if err != nil {
		return rep, err
	}
	rep.Tenants = tenants
	s.logger.Info("metrics rolled up", "day", rep.Day, "tenants", len(tenants))
	return rep, nil
}

// RollupPrevious rolls up the business day before now, then today so far.
func (s *Service) RollupPrevious(ctx context.Context) error {
	now := s.now()
	for _, d := range []time.Time{now.Add(-24 * time.Hour), now} {
		if _, err := s.Rollup(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) activeTenants(ctx context.Context, from, to time.Time) ([]string, error) {
	seen := map[string]struct{}{}
	payments, err := s.uow.Payments().List(ctx, repository.PaymentFilter{PaidFrom: from, PaidTo: to})
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		seen[p.TenantID] = struct{}{}
	}
	payouts, err := s.succeededPayouts(ctx, "", from, to)
	if err != nil {
		return nil, err
	}
	for _, po := range payouts {
		seen[po.SellerTenantID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Service) succeededPayouts(ctx context.Context, tenantID string, from, to time.Time) ([]*payout.ProviderPayout, error) {
	return s.uow.ProviderPayouts().List(ctx, repository.PayoutFilter{
		SellerTenantID: tenantID,
		Statuses:       []payout.ProviderStatus{payout.ProviderSucceeded},
		SucceededIn:    [2]time.Time{from, to},
	})
}

func (s *Service) chargebacks(ctx context.Context, m *metrics.Daily, tenantID string, from, to time.Time) error {
	reversed, err := s.uow.Payments().List(ctx, repository.PaymentFilter{
		TenantID:   tenantID,
		Statuses:   []escrow.PaymentStatus{escrow.PaymentChargeback},
		ReversedIn: [2]time.Time{from, to},
	})
	if err != nil {
		return err
	}
	for _, p := range reversed {
		m.ChargebackAmount = m.ChargebackAmount.Add(p.Amount)
		m.ChargebackCount++
	}
	return nil
}

// credits sums the CREDIT legs of one account type in [from, to).
func (s *Service) credits(ctx context.Context, tenantID string, acct ledger.AccountType, from, to time.Time) (decimal.Decimal, error) {
	entries, err := s.uow.Ledger().ListEntries(ctx, repository.EntryFilter{
		TenantID:     tenantID,
		AccountTypes: []ledger.AccountType{acct},
		From:         from,
		To:           to,
	})
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, e := range entries {
		if e.Direction == ledger.Credit {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

// balanceAt returns debits minus credits of an account type before at.
func (s *Service) balanceAt(ctx context.Context, tenantID string, acct ledger.AccountType, at time.Time) (decimal.Decimal, error) {
	entries, err := s.uow.Ledger().ListEntries(ctx, repository.EntryFilter{
		TenantID:     tenantID,
		AccountTypes: []ledger.AccountType{acct},
		To:           at,
	})
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, e := range entries {
		if e.Direction == ledger.Debit {
			sum = sum.Add(e.Amount)
		} else {
			sum = sum.Sub(e.Amount)
		}
	}
	return sum, nil
}

// ListPlatform returns the stored platform rollups of [from, to).
func (s *Service) ListPlatform(ctx context.Context, from, to time.Time) ([]*metrics.Daily, error) {
	return s.uow.Metrics().ListPlatform(ctx, from, to)
}

// ListTenant returns the stored rollups of one tenant for [from, to).
func (s *Service) ListTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*metrics.Daily, error) {
	return s.uow.Metrics().ListTenant(ctx, tenantID, from, to)
}
