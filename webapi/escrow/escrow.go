// Package escrow exposes the order side money movements: payment capture,
// shipment release and reversals.
package escrow

import (
	"context"

	"github.com/amirasaad/settlement/pkg/app"
	escrowsvc "github.com/amirasaad/settlement/pkg/service/escrow"
	"github.com/amirasaad/settlement/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Routes registers the escrow API under /api/v1/escrow.
//
// Routes:
//   - POST   /payments                  : Capture a paid order into escrow.
//   - POST   /payments/:id/refund       : Refund a captured payment.
//   - POST   /payments/:id/chargeback   : Record a chargeback.
//   - POST   /releases                  : Release a delivered shipment to the seller wallet.
func Routes(fiberApp *fiber.App, a *app.App) {
	g := fiberApp.Group("/api/v1/escrow", common.RequireActor())

	g.Post("/payments", CapturePayment(a))
	g.Post("/payments/:id/refund", Refund(a))
	g.Post("/payments/:id/chargeback", Chargeback(a))
	g.Post("/releases", Release(a))
}

// ReversalRequest is the body of a refund or chargeback. A zero amount
// reverses the whole payment.
type ReversalRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"max=500"`
}

func CapturePayment(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[escrowsvc.CaptureInput](c)
		if input == nil {
			return err
		}
		pay, err := a.Escrow.CapturePayment(c.UserContext(), common.Actor(c), *input)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to capture payment", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Payment captured", pay)
	}
}

func Release(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[escrowsvc.ReleaseInput](c)
		if input == nil {
			return err
		}
		rel, err := a.Escrow.ReleaseToWallet(c.UserContext(), common.Actor(c), *input)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to release shipment", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Shipment released", rel)
	}
}

func Refund(a *app.App) fiber.Handler {
	return reversal(a.Escrow.HandleRefund, "Failed to refund payment", "Payment refunded")
}

func Chargeback(a *app.App) fiber.Handler {
	return reversal(a.Escrow.HandleChargeback, "Failed to record chargeback", "Chargeback recorded")
}

type reverseFunc func(ctx context.Context, actor string, in escrowsvc.ReversalInput) (*escrowsvc.Reversal, error)

func reversal(fn reverseFunc, failTitle, okMsg string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[ReversalRequest](c)
		if input == nil {
			return err
		}
		rev, err := fn(c.UserContext(), common.Actor(c), escrowsvc.ReversalInput{
			ProviderPaymentID: c.Params("id"),
			Amount:            input.Amount,
			Reason:            input.Reason,
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, failTitle, err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, okMsg, rev)
	}
}
