package disbursement

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/escrow"
	"github.com/amirasaad/settlement/pkg/domain/events"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/domain/webhook"
	"github.com/amirasaad/settlement/pkg/repository"
	escrowsvc "github.com/amirasaad/settlement/pkg/service/escrow"
	"github.com/google/uuid"
)

// IngestWebhook stores a provider delivery after the timestamp, signature
// and replay gates. The payload is only validated once all three passed; an
// invalid payload leaves nothing stored.
func (s *Service) IngestWebhook(ctx context.Context, d webhook.Delivery) (*webhook.Event, error) {
	ts, err := webhook.ParseTimestamp(d.Timestamp)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !webhook.WithinSkew(ts, now, s.cfg.clockSkew) {
		return nil, webhook.ErrExpiredTimestamp
	}
	if !s.provider.VerifyWebhookSignature(d.Signature, d.Payload) {
		return nil, webhook.ErrInvalidSignature
	}

	eventType := webhook.EventTypeOf(d.Payload)
	extID := webhook.ExternalEventID(d.Payload, d.Timestamp, eventType)
	parsed, parseErr := webhook.Parse(d.Payload)
	kind := webhook.KindUnknown
	if parsed != nil {
		kind = parsed.Kind()
	}
	ev := &webhook.Event{
		ID:              uuid.NewString(),
		ExternalEventID: extID,
		EventType:       kind,
		Payload:         d.Payload,
		Timestamp:       ts.UnixMilli(),
		Status:          webhook.StatusReceived,
		ReceivedAt:      now,
	}
	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		if err := uow.Webhooks().Insert(ctx, ev); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return webhook.ErrReplayedPayload
			}
			return err
		}
		return parseErr
	})
	if errors.Is(err, webhook.ErrReplayedPayload) {
		s.rejectReplay(ctx, extID, eventType)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("webhook received", "event_id", ev.ID, "type", kind)
	return ev, nil
}

func (s *Service) rejectReplay(ctx context.Context, extID, eventType string) {
	s.logger.Warn("webhook replay rejected", "external_event_id", extID, "type", eventType)
	if err := s.audit.AppendDetached(ctx, ops.LogEntry{
		Actor:      ops.SystemActor,
		Action:     ops.ActionWebhookReplayRejected,
		EntityType: "provider_webhook_event",
		EntityID:   extID,
		Severity:   ops.SeverityWarning,
		Payload:    ops.WebhookReplay{ExternalEventID: extID, EventType: eventType},
	}); err != nil {
		s.logger.Error("failed to log webhook replay", "external_event_id", extID, "error", err)
	}
	if s.bus == nil {
		return
	}
	if err := s.bus.Emit(ctx, events.WebhookReplayRejected{
		ExternalEventID: extID,
		EventType:       eventType,
		OccurredAt:      s.now(),
	}); err != nil {
		s.logger.Error("failed to emit webhook replay", "external_event_id", extID, "error", err)
	}
}

// WebhookReport summarises one processing batch.
type WebhookReport struct {
	Processed int `json:"processed"`
	Ignored   int `json:"ignored"`
	Finalized int `json:"finalized"`
}

var errEventTaken = errors.New("webhook event already processed")

// ProcessWebhookEvents applies RECEIVED events. Each event's effect and its
// move to PROCESSED commit together; payouts that became SUCCEEDED are
// finalized afterwards. A batch of zero uses the configured size.
func (s *Service) ProcessWebhookEvents(ctx context.Context, batch int) (WebhookReport, error) {
	var rep WebhookReport
	if batch <= 0 {
		batch = s.cfg.processBatch
	}
	pending, err := s.uow.Webhooks().ListByStatus(ctx, webhook.StatusReceived, batch)
	if err != nil {
		return rep, err
	}
	for _, ev := range pending {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		var finalize, outcome string
		err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
			var err error
			outcome, finalize, err = s.apply(ctx, uow, ev)
			if err != nil {
				return err
			}
			ok, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimWebhookEvent, ev.ID,
				[]string{string(webhook.StatusReceived)}, string(webhook.StatusProcessed),
				map[string]any{"outcome": outcome, "processed_at": s.now()})
			if err != nil {
				return err
			}
			if !ok {
				return errEventTaken
			}
			return nil
		})
		if errors.Is(err, errEventTaken) {
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("process webhook %s: %w", ev.ID, err)
		}
		rep.Processed++
		if finalize == "" {
			if outcome != "applied" {
				rep.Ignored++
			}
			continue
		}
		if _, err := s.FinalizePayoutLedger(ctx, ops.SystemActor, finalize); err != nil {
			s.logger.Error("finalize after webhook failed", "provider_payout_id", finalize, "error", err)
			continue
		}
		rep.Finalized++
	}
	return rep, nil
}

// apply performs the event's effect and returns the outcome stored on the
// event plus the provider payout to finalize, if any.
func (s *Service) apply(ctx context.Context, uow repository.UnitOfWork, ev *webhook.Event) (string, string, error) {
	body, err := webhook.Parse(ev.Payload)
	if err != nil {
		return "ignored: " + err.Error(), "", nil
	}
	switch p := body.(type) {
	case webhook.PayoutSucceeded:
		return s.applyPayout(ctx, uow, p.ProviderPayoutID, payout.ProviderSucceeded, p.ExternalReference, "")
	case webhook.PayoutFailed:
		return s.applyPayout(ctx, uow, p.ProviderPayoutID, payout.ProviderFailed, "", p.Reason)
	case webhook.Chargeback:
		return s.applyChargeback(ctx, uow, p)
	default:
		return "ignored: unhandled event type", "", nil
	}
}

func (s *Service) applyPayout(
	ctx context.Context,
	uow repository.UnitOfWork,
	providerPayoutID string,
	to payout.ProviderStatus,
	externalRef, reason string,
) (string, string, error) {
	po, err := uow.ProviderPayouts().GetByProviderID(ctx, providerPayoutID)
	if errors.Is(err, domain.ErrNotFound) {
		return "ignored: unknown payout", "", nil
	}
	if err != nil {
		return "", "", err
	}
	changed, err := s.applyProviderStatus(ctx, uow, po, to, externalRef, reason, "webhook")
	if err != nil {
		return "", "", err
	}
	if !changed {
		return "ignored: payout is " + string(po.Status), "", nil
	}
	if to == payout.ProviderSucceeded {
		return "applied", po.ProviderPayoutID, nil
	}
	return "applied", "", nil
}

// applyChargeback checks the payment first so a chargeback for an unknown
// or already reversed payment never reaches the idempotency guard.
func (s *Service) applyChargeback(ctx context.Context, uow repository.UnitOfWork, cb webhook.Chargeback) (string, string, error) {
	if s.escrow == nil {
		return "ignored: escrow disabled", "", nil
	}
	pay, err := uow.Payments().FindByProviderID(ctx, cb.ProviderPaymentID)
	if err != nil {
		return "", "", err
	}
	if pay == nil {
		return "ignored: " + escrow.ErrPaymentNotFound.Error(), "", nil
	}
	if pay.Status != escrow.PaymentPaid {
		return "ignored: payment is " + string(pay.Status), "", nil
	}
	if cb.Amount.GreaterThan(pay.Amount) {
		return "ignored: chargeback exceeds payment", "", nil
	}
	if _, err := s.escrow.HandleChargebackIn(ctx, uow, ops.SystemActor, escrowsvc.ReversalInput{
		ProviderPaymentID: cb.ProviderPaymentID,
		Amount:            cb.Amount,
		Reason:            cb.Reason,
	}); err != nil {
		return "", "", err
	}
	return "applied", "", nil
}
