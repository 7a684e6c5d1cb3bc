// Package seller exposes the seller facing payout endpoints: withdrawal
// destinations, payout requests and the wallet view.
package seller

import (
	"github.com/amirasaad/settlement/pkg/app"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	ledgersvc "github.com/amirasaad/settlement/pkg/service/ledger"
	payoutsvc "github.com/amirasaad/settlement/pkg/service/payout"
	"github.com/amirasaad/settlement/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Routes registers the seller API under /api/v1/sellers/:tenantId.
//
// Routes:
//   - GET    /wallet                   : Wallet balances.
//   - POST   /destinations             : Add a withdrawal IBAN.
//   - GET    /destinations             : List withdrawal IBANs, masked.
//   - DELETE /destinations/:id         : Disable a destination.
//   - POST   /payout-requests          : Request a withdrawal.
//   - GET    /payout-requests          : List the tenant's requests.
//   - GET    /payout-requests/:id      : Show one request.
func Routes(fiberApp *fiber.App, a *app.App) {
	g := fiberApp.Group("/api/v1/sellers/:tenantId", common.RequireActor())

	g.Get("/wallet", GetWallet(a))

	g.Post("/destinations", CreateDestination(a))
	g.Get("/destinations", ListDestinations(a))
	g.Delete("/destinations/:id", DisableDestination(a))

	g.Post("/payout-requests", CreatePayoutRequest(a))
	g.Get("/payout-requests", ListPayoutRequests(a))
	g.Get("/payout-requests/:id", GetPayoutRequest(a))
}

// DestinationRequest is the body of a new destination.
type DestinationRequest struct {
	IBAN       string `json:"iban" validate:"required"`
	HolderName string `json:"holderName" validate:"required,max=140"`
	IsDefault  bool   `json:"isDefault"`
}

// PayoutRequest is the body of a withdrawal request.
type PayoutRequest struct {
	DestinationID string          `json:"destinationId" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

func GetWallet(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		w, err := ledgersvc.WalletOf(c.UserContext(), a.Deps.Uow, c.Params("tenantId"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to fetch wallet", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Wallet fetched", w)
	}
}

func CreateDestination(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[DestinationRequest](c)
		if input == nil {
			return err
		}
		d, err := a.Payouts.CreateDestination(c.UserContext(), common.Actor(c), payoutsvc.DestinationInput{
			TenantID:   c.Params("tenantId"),
			IBAN:       input.IBAN,
			HolderName: input.HolderName,
			IsDefault:  input.IsDefault,
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to create destination", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Destination saved", d)
	}
}

func ListDestinations(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ds, err := a.Payouts.ListDestinations(c.UserContext(), c.Params("tenantId"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list destinations", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Destinations fetched", ds)
	}
}

func DisableDestination(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := a.Payouts.DisableDestination(c.UserContext(), common.Actor(c), c.Params("tenantId"), c.Params("id")); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to disable destination", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Destination disabled", nil)
	}
}

func CreatePayoutRequest(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[PayoutRequest](c)
		if input == nil {
			return err
		}
		req, err := a.Payouts.CreateRequest(c.UserContext(), common.Actor(c), payoutsvc.RequestInput{
			TenantID:      c.Params("tenantId"),
			DestinationID: input.DestinationID,
			Amount:        input.Amount,
			Currency:      input.Currency,
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to create payout request", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Payout request created", req)
	}
}

func ListPayoutRequests(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqs, err := a.Payouts.ListRequests(c.UserContext(), c.Params("tenantId"), payout.RequestStatus(c.Query("status")))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list payout requests", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Payout requests fetched", reqs)
	}
}

// GetPayoutRequest answers 404 for requests of other tenants.
func GetPayoutRequest(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := a.Payouts.GetRequest(c.UserContext(), c.Params("id"))
		if err == nil && req.TenantID != c.Params("tenantId") {
			err = payout.ErrRequestNotFound
		}
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to fetch payout request", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Payout request fetched", req)
	}
}
