// Package app builds the settlement services from shared dependencies and
// wires their event handlers and periodic jobs.
package app

import (
	"time"

	"github.com/amirasaad/settlement/pkg/config"
	"github.com/amirasaad/settlement/pkg/service/billing"
	"github.com/amirasaad/settlement/pkg/service/disbursement"
	"github.com/amirasaad/settlement/pkg/service/escrow"
	"github.com/amirasaad/settlement/pkg/service/idempotency"
	"github.com/amirasaad/settlement/pkg/service/integrity"
	ledgersvc "github.com/amirasaad/settlement/pkg/service/ledger"
	"github.com/amirasaad/settlement/pkg/service/metrics"
	"github.com/amirasaad/settlement/pkg/service/opslog"
	"github.com/amirasaad/settlement/pkg/service/payout"
	"github.com/amirasaad/settlement/pkg/service/risk"
)

type App struct {
	Deps   config.Deps
	Config *config.App

	Audit        *opslog.Recorder
	Policies     *risk.Policies
	Escrow       *escrow.Service
	Payouts      *payout.Service
	Disbursement *disbursement.Service
	Billing      *billing.Service
	Sentinel     *integrity.Sentinel
	Repair       *integrity.Repair
	Metrics      *metrics.Service
}

func New(deps config.Deps) *App {
	dayOffset := 3 * time.Hour
	if deps.Config != nil && deps.Config.Risk != nil {
		dayOffset = deps.Config.Risk.DayOffset
	}
	guard := idempotency.NewGuard(deps.Uow, deps.Now)
	poster := ledgersvc.NewPoster(deps.Tenants, deps.Now, deps.Logger)
	riskGuard := risk.NewGuard(deps.EventBus, deps.Now, dayOffset, deps.Logger)
	audit := opslog.New(deps.Uow, deps.Now, deps.Logger)

	a := &App{
		Deps:     deps,
		Config:   deps.Config,
		Audit:    audit,
		Policies: risk.NewPolicies(deps.Uow, audit, deps.Now, deps.Logger),
		Escrow:   escrow.NewService(deps, guard, poster, riskGuard, audit),
		Payouts:  payout.NewService(deps, guard, poster, riskGuard, audit),
		Billing:  billing.NewService(deps, guard, poster, audit),
		Sentinel: integrity.NewSentinel(deps, audit),
		Repair:   integrity.NewRepair(deps, audit),
		Metrics:  metrics.NewService(deps, audit),
	}
	a.Disbursement = disbursement.NewService(deps, guard, poster, riskGuard, audit, a.Escrow)
	a.setupEventBus()
	return a
}
