// Package webhook exposes the payment provider's payout callbacks.
package webhook

import (
	"errors"
	"log/slog"

	"github.com/amirasaad/settlement/pkg/domain/webhook"
	"github.com/amirasaad/settlement/pkg/service/disbursement"
	"github.com/amirasaad/settlement/webapi/common"
	"github.com/gofiber/fiber/v2"
)

const (
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Timestamp"
)

// Routes registers the provider webhook endpoint. replayStatus is returned
// for deliveries that were already stored.
func Routes(app *fiber.App, svc *disbursement.Service, replayStatus int, logger *slog.Logger) {
	app.Post("/api/v1/webhooks/payouts", PayoutWebhook(svc, replayStatus, logger))
}

// PayoutWebhook stores a signed delivery for the webhook processor.
func PayoutWebhook(svc *disbursement.Service, replayStatus int, logger *slog.Logger) fiber.Handler {
	if replayStatus == 0 {
		replayStatus = fiber.StatusOK
	}
	log := logger.With("handler", "PayoutWebhook")
	return func(c *fiber.Ctx) error {
		// The body buffer is reused by fiber after the handler returns.
		payload := append([]byte(nil), c.Body()...)
		ev, err := svc.IngestWebhook(c.UserContext(), webhook.Delivery{
			Signature: c.Get(SignatureHeader),
			Timestamp: c.Get(TimestampHeader),
			Payload:   payload,
		})
		switch {
		case err == nil:
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "received", "eventId": ev.ID})
		case errors.Is(err, webhook.ErrReplayedPayload):
			return c.Status(replayStatus).JSON(fiber.Map{"status": "duplicate"})
		case errors.Is(err, webhook.ErrExpiredTimestamp), errors.Is(err, webhook.ErrInvalidSignature):
			log.Warn("webhook rejected", "error", err, "ip", c.IP())
			return common.ProblemDetailsJSON(c, "Unauthorized", err, fiber.StatusUnauthorized)
		case errors.Is(err, webhook.ErrInvalidPayload):
			return common.ProblemDetailsJSON(c, "Invalid payload", err, fiber.StatusBadRequest)
		default:
			log.Error("webhook ingest failed", "error", err)
			return common.ProblemDetailsJSON(c, "Failed to store webhook", err)
		}
	}
}
