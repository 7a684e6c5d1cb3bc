// Package webapi assembles the HTTP surface of the settlement service:
// - webhook: payment provider callbacks
// - admin: operator endpoints for payouts, billing, rollout, jobs and reports
// - seller: destinations, payout requests and the wallet
// - escrow: payment capture, shipment release and reversals
// - billing: boost plans, subscriptions, invoices and usage
package webapi

import (
	"errors"
	"strings"

	"github.com/amirasaad/settlement/pkg/app"
	"github.com/amirasaad/settlement/pkg/scheduler"
	adminweb "github.com/amirasaad/settlement/webapi/admin"
	billingweb "github.com/amirasaad/settlement/webapi/billing"
	"github.com/amirasaad/settlement/webapi/common"
	escrowweb "github.com/amirasaad/settlement/webapi/escrow"
	sellerweb "github.com/amirasaad/settlement/webapi/seller"
	webhookweb "github.com/amirasaad/settlement/webapi/webhook"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// SetupApp builds the fiber app. sched backs the admin job routes.
func SetupApp(a *app.App, sched *scheduler.Scheduler) *fiber.App {
	fiberApp := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return common.ProblemDetailsJSON(c, "Internal Server Error", err)
		},
	})

	if rl := a.Config.RateLimit; rl != nil && rl.MaxRequests > 0 {
		fiberApp.Use(limiter.New(limiter.Config{
			Max:          rl.MaxRequests,
			Expiration:   rl.Window,
			KeyGenerator: clientKey,
			LimitReached: func(c *fiber.Ctx) error {
				return common.ProblemDetailsJSON(
					c,
					"Too Many Requests",
					errors.New("rate limit exceeded"),
					fiber.StatusTooManyRequests,
				)
			},
		}))
	}
	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())

	fiberApp.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Settlement API is running")
	})

	fiberApp.Get("/debug/routes", func(c *fiber.Ctx) error {
		var routes []fiber.Map
		for _, r := range fiberApp.GetRoutes(true) {
			routes = append(routes, fiber.Map{"method": r.Method, "path": r.Path})
		}
		return c.JSON(routes)
	})

	replayStatus := 0
	if a.Config.Webhook != nil {
		replayStatus = a.Config.Webhook.ReplayStatus
	}
	webhookweb.Routes(fiberApp, a.Disbursement, replayStatus, a.Deps.Logger)
	adminweb.Routes(fiberApp, a, sched)
	sellerweb.Routes(fiberApp, a)
	escrowweb.Routes(fiberApp, a)
	billingweb.Routes(fiberApp, a)
	return fiberApp
}

// clientKey keys the limiter by the first X-Forwarded-For hop, then
// X-Real-IP, then the peer address.
func clientKey(c *fiber.Ctx) string {
	if fwd := c.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return c.IP()
}
