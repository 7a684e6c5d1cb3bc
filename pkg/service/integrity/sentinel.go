package integrity

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/amirasaad/settlement/pkg/config"
	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/repository"
	ledgersvc "github.com/amirasaad/settlement/pkg/service/ledger"
	"github.com/amirasaad/settlement/pkg/service/opslog"
)

// Sentinel scans for ledger and payout invariants that must always hold.
type Sentinel struct {
	raiser
	audit *opslog.Recorder
}

func NewSentinel(deps config.Deps, audit *opslog.Recorder) *Sentinel {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sentinel{
		raiser: raiser{uow: deps.Uow, bus: deps.EventBus, now: deps.Now, logger: logger.With("job", "sentinel")},
		audit:  audit,
	}
}

// ScanReport lists the findings that were new in this run.
type ScanReport struct {
	NewFindings int            `json:"newFindings"`
	ByType      map[string]int `json:"byType"`
}

func (r *ScanReport) add(t ops.AlertType) {
	r.NewFindings++
	r.ByType[string(t)]++
}

// Run performs a full scan. New findings are summarised in one CRITICAL
// SENTINEL_SCAN ops log entry.
func (s *Sentinel) Run(ctx context.Context) (ScanReport, error) {
	rep := ScanReport{ByType: map[string]int{}}
	for _, check := range []func(context.Context, *ScanReport) error{
		s.unbalancedGroups,
		s.missingFinalize,
		s.orphanFinalize,
		s.walletDrift,
	} {
		if err := check(ctx, &rep); err != nil {
			return rep, err
		}
	}
	if rep.NewFindings == 0 {
		return rep, nil
	}
	err := s.audit.AppendDetached(ctx, ops.LogEntry{
		Actor:      ops.SystemActor,
		Action:     ops.ActionSentinelScan,
		EntityType: "system",
		EntityID:   "sentinel",
		Severity:   ops.SeverityCritical,
		Payload:    ops.SentinelScan{NewFindings: rep.NewFindings, ByType: rep.ByType},
	})
	return rep, err
}

func (s *Sentinel) unbalancedGroups(ctx context.Context, rep *ScanReport) error {
	groups, err := s.uow.Ledger().ListGroups(ctx, repository.GroupFilter{})
	if err != nil {
		return err
	}
	for _, g := range groups {
		lines := make([]ledger.Line, 0, len(g.Entries))
		for _, e := range g.Entries {
			lines = append(lines, ledger.Line{Direction: e.Direction, Amount: e.Amount, Currency: e.Currency})
		}
		for _, t := range ledger.TotalsOf(lines) {
			if t.Balanced() {
				continue
			}
			created, err := s.raise(ctx, ops.AlertLedgerUnbalanced, ops.SeverityCritical, g.ID, map[string]any{
				"currency":   t.Currency,
				"debits":     t.Debits.String(),
				"credits":    t.Credits.String(),
				"difference": t.Debits.Sub(t.Credits).String(),
			})
			if err != nil {
				return err
			}
			if created {
				rep.add(ops.AlertLedgerUnbalanced)
			}
			break
		}
	}
	return nil
}

func (s *Sentinel) missingFinalize(ctx context.Context, rep *ScanReport) error {
	payouts, err := s.uow.ProviderPayouts().List(ctx, repository.PayoutFilter{
		Statuses: []payout.ProviderStatus{payout.ProviderSucceeded},
	})
	if err != nil || len(payouts) == 0 {
		return err
	}
	keys := make([]string, 0, len(payouts))
	for _, po := range payouts {
		keys = append(keys, ledger.FinalizeKeyPrefix+po.ProviderPayoutID)
	}
	groups, err := s.uow.Ledger().ListGroups(ctx, repository.GroupFilter{Keys: keys})
	if err != nil {
		return err
	}
	finalized := make(map[string]bool, len(groups))
	for _, g := range groups {
		finalized[g.IdempotencyKey] = true
	}
	for _, po := range payouts {
		if finalized[ledger.FinalizeKeyPrefix+po.ProviderPayoutID] {
			continue
		}
		created, err := s.raise(ctx, ops.AlertFinalizeMissing, ops.SeverityCritical, po.ID, map[string]any{
			"providerPayoutId": po.ProviderPayoutID,
			"shipmentId":       po.ShipmentID,
		})
		if err != nil {
			return err
		}
		if created {
			rep.add(ops.AlertFinalizeMissing)
		}
	}
	return nil
}

func (s *Sentinel) orphanFinalize(ctx context.Context, rep *ScanReport) error {
	groups, err := s.uow.Ledger().ListGroups(ctx, repository.GroupFilter{KeyPrefix: ledger.FinalizeKeyPrefix})
	if err != nil {
		return err
	}
	for _, g := range groups {
		providerPayoutID := strings.TrimPrefix(g.IdempotencyKey, ledger.FinalizeKeyPrefix)
		status := "NOT_FOUND"
		po, err := s.uow.ProviderPayouts().GetByProviderID(ctx, providerPayoutID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return err
		case po.Status == payout.ProviderSucceeded:
			continue
		default:
			status = string(po.Status)
		}
		created, err := s.raise(ctx, ops.AlertFinalizeOrphan, ops.SeverityCritical, g.ID, map[string]any{
			"providerPayoutId": providerPayoutID,
			"payoutStatus":     status,
		})
		if err != nil {
			return err
		}
		if created {
			rep.add(ops.AlertFinalizeOrphan)
		}
	}
	return nil
}

// walletDrift compares each account's cached balances with the balances
// derived from its wallet entries. Both available and reserved must match.
func (s *Sentinel) walletDrift(ctx context.Context, rep *ScanReport) error {
	accounts, err := s.uow.Ledger().ListAccounts(ctx)
	if err != nil {
		return err
	}
	for _, acct := range accounts {
		derived, err := ledgersvc.Balances(ctx, s.uow, acct.TenantID)
		if err != nil {
			return err
		}
		if derived.Available.Equal(acct.AvailableBalance) && derived.Reserved.Equal(acct.ReservedBalance) {
			continue
		}
		created, err := s.raise(ctx, ops.AlertWalletDrift, ops.SeverityWarning, acct.ID, map[string]any{
			"tenantId":         acct.TenantID,
			"cachedAvailable":  acct.AvailableBalance.String(),
			"derivedAvailable": derived.Available.String(),
			"cachedReserved":   acct.ReservedBalance.String(),
			"derivedReserved":  derived.Reserved.String(),
		})
		if err != nil {
			return err
		}
		if created {
			rep.add(ops.AlertWalletDrift)
		}
	}
	return nil
}
