package repository

import (
	"context"
)

// UnitOfWork defines the transaction boundary and tx-bound repository access.
//
// Do runs fn in a transaction. A Do nested inside another joins the outer
// transaction. The accessor methods return repositories bound to the current
// session: inside Do that is the transaction, outside it is the plain pool.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error

	// AfterCompletion registers fn to run once the outermost transaction has
	// committed or rolled back. Outside a transaction fn runs immediately.
	AfterCompletion(fn func(ctx context.Context))

	Claimer() Claimer
	Idempotency() IdempotencyRepository
	Ledger() LedgerRepository
	Destinations() DestinationRepository
	PayoutRequests() PayoutRequestRepository
	Profiles() ProfileRepository
	ProviderPayouts() ProviderPayoutRepository
	Outbox() OutboxRepository
	Webhooks() WebhookEventRepository
	Payments() ProviderPaymentRepository
	Billing() BillingRepository
	Policies() PolicyRepository
	Alerts() AlertRepository
	OpsLogs() OpsLogRepository
	Metrics() MetricsRepository
}
