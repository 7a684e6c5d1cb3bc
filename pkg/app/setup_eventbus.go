package app

import (
	"context"
	"log/slog"

	"github.com/amirasaad/settlement/pkg/domain/events"
)

// setupEventBus registers the in-process handlers. Violations and alerts
// are logged from the bus so they survive the rollback of the call that
// raised them.
func (a *App) setupEventBus() {
	bus := a.Deps.EventBus
	if bus == nil {
		return
	}
	a.Audit.Register(bus)

	logger := a.Deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bus.Register(events.EventTypePayoutFinalized, func(_ context.Context, e events.Event) error {
		if ev, ok := events.As[events.PayoutFinalized](e); ok {
			logger.Info("payout finalized",
				"provider_payout_id", ev.ProviderPayoutID, "seller", ev.SellerTenantID, "net", ev.NetAmount)
		}
		return nil
	})
	bus.Register(events.EventTypeBillingStateChanged, func(_ context.Context, e events.Event) error {
		if ev, ok := events.As[events.BillingStateChanged](e); ok {
			logger.Info("billing state changed",
				"tenant_id", ev.TenantID, "invoice_id", ev.InvoiceID, "from", ev.From, "to", ev.To)
		}
		return nil
	})
}
