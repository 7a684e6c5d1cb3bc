// Package billing exposes boost plans, subscriptions, invoices and
// sponsored usage.
package billing

import (
	"fmt"
	"time"

	"github.com/amirasaad/settlement/pkg/app"
	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/billing"
	"github.com/amirasaad/settlement/pkg/repository"
	billingsvc "github.com/amirasaad/settlement/pkg/service/billing"
	"github.com/amirasaad/settlement/webapi/common"
	"github.com/gofiber/fiber/v2"
)

// Routes registers the billing API under /api/v1/billing.
//
// Routes:
//   - GET    /plans                         : List boost plans.
//   - POST   /plans                         : Create a plan.
//   - POST   /subscriptions                 : Activate a subscription.
//   - GET    /subscriptions/:id             : Show a subscription.
//   - POST   /subscriptions/:id/pause       : Pause a subscription and the tenant's boost.
//   - POST   /subscriptions/:id/cancel      : Cancel a subscription.
//   - POST   /subscriptions/:id/invoices    : Issue the invoice of a period.
//   - GET    /invoices                      : List invoices by tenant, subscription or status.
//   - POST   /usage                         : Add a day's sponsored impressions and clicks.
//   - GET    /tenants/:tenantId/boost       : The tenant's servable boost subscription.
func Routes(fiberApp *fiber.App, a *app.App) {
	g := fiberApp.Group("/api/v1/billing", common.RequireActor())

	g.Get("/plans", ListPlans(a))
	g.Post("/plans", CreatePlan(a))

	g.Post("/subscriptions", ActivateSubscription(a))
	g.Get("/subscriptions/:id", GetSubscription(a))
	g.Post("/subscriptions/:id/pause", PauseSubscription(a))
	g.Post("/subscriptions/:id/cancel", CancelSubscription(a))
	g.Post("/subscriptions/:id/invoices", IssueInvoice(a))

	g.Get("/invoices", ListInvoices(a))
	g.Post("/usage", RecordUsage(a))
	g.Get("/tenants/:tenantId/boost", GetActiveBoost(a))
}

// StatusChangeRequest is the body of a pause or cancel.
type StatusChangeRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// InvoiceRequest names the billed period as YYYY-MM.
type InvoiceRequest struct {
	PeriodKey string `json:"periodKey" validate:"required,len=7"`
}

// UsageRequest carries one day of counters. Day is YYYY-MM-DD in UTC.
type UsageRequest struct {
	TenantID    string `json:"tenantId" validate:"required"`
	Day         string `json:"day" validate:"required"`
	Impressions int64  `json:"impressions" validate:"gte=0"`
	Clicks      int64  `json:"clicks" validate:"gte=0"`
}

func ListPlans(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		plans, err := a.Billing.ListPlans(c.UserContext())
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list plans", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Plans fetched", plans)
	}
}

func CreatePlan(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[billingsvc.PlanInput](c)
		if input == nil {
			return err
		}
		plan, err := a.Billing.CreatePlan(c.UserContext(), common.Actor(c), *input)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to create plan", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Plan created", plan)
	}
}

func ActivateSubscription(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[billingsvc.ActivateInput](c)
		if input == nil {
			return err
		}
		sub, err := a.Billing.ActivateSubscription(c.UserContext(), common.Actor(c), *input)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to activate subscription", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Subscription activated", sub)
	}
}

func GetSubscription(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sub, err := a.Billing.GetSubscription(c.UserContext(), c.Params("id"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to fetch subscription", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Subscription fetched", sub)
	}
}

func PauseSubscription(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[StatusChangeRequest](c)
		if input == nil {
			return err
		}
		sub, err := a.Billing.PauseSubscription(c.UserContext(), common.Actor(c), c.Params("id"), input.Reason)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to pause subscription", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Subscription paused", sub)
	}
}

func CancelSubscription(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[StatusChangeRequest](c)
		if input == nil {
			return err
		}
		sub, err := a.Billing.CancelSubscription(c.UserContext(), common.Actor(c), c.Params("id"), input.Reason)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to cancel subscription", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Subscription cancelled", sub)
	}
}

func IssueInvoice(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[InvoiceRequest](c)
		if input == nil {
			return err
		}
		inv, err := a.Billing.IssueInvoice(c.UserContext(), common.Actor(c), c.Params("id"), input.PeriodKey)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to issue invoice", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Invoice issued", inv)
	}
}

func ListInvoices(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := repository.InvoiceFilter{
			TenantID:       c.Query("tenantId"),
			SubscriptionID: c.Query("subscriptionId"),
		}
		if st := c.Query("status"); st != "" {
			f.Statuses = []billing.InvoiceStatus{billing.InvoiceStatus(st)}
		}
		invs, err := a.Billing.ListInvoices(c.UserContext(), f)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list invoices", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Invoices fetched", invs)
	}
}

func RecordUsage(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[UsageRequest](c)
		if input == nil {
			return err
		}
		day, err := time.Parse(time.DateOnly, input.Day)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to record usage",
				fmt.Errorf("%w: day must be YYYY-MM-DD", domain.ErrValidation))
		}
		if err := a.Billing.RecordUsage(c.UserContext(), input.TenantID, day, input.Impressions, input.Clicks); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to record usage", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Usage recorded", nil)
	}
}

// GetActiveBoost answers 404 when the tenant may not be served sponsored
// inventory.
func GetActiveBoost(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		active, err := a.Billing.GetActiveBoostSubscription(c.UserContext(), c.Params("tenantId"))
		if err == nil && active == nil {
			err = billing.ErrSubscriptionNotFound
		}
		if err != nil {
			return common.ProblemDetailsJSON(c, "No servable boost subscription", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Boost subscription fetched", active)
	}
}
