// Package admin exposes operator endpoints for payouts, billing, rollout
// policies, background jobs and reporting. Every route requires the
// X-Admin-User header, which is recorded as the actor.
package admin

import (
	"bytes"
	"fmt"
	"time"

	"github.com/amirasaad/settlement/pkg/app"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/scheduler"
	"github.com/amirasaad/settlement/pkg/service/disbursement"
	"github.com/amirasaad/settlement/pkg/service/risk"
	"github.com/amirasaad/settlement/webapi/common"
	"github.com/gofiber/fiber/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Routes registers the admin API under /api/v1/admin.
//
// Routes:
//   - GET    /payout-requests               : List internal payout requests.
//   - POST   /payout-requests/:id/approve   : Approve a request.
//   - POST   /payout-requests/:id/reject    : Reject a request with a reason.
//   - POST   /payout-requests/:id/process   : Settle an approved request.
//   - POST   /sellers/onboard               : Create or update a sub-merchant.
//   - POST   /payouts/release               : Enqueue a release payout.
//   - GET    /payouts/:id                   : Show a provider payout.
//   - POST   /payouts/:id/finalize          : Post the ledger settlement of a succeeded payout.
//   - POST   /invoices/:id/paid             : Mark a boost invoice paid.
//   - GET    /jobs                          : List background jobs.
//   - POST   /jobs/:name/run                : Run a job now.
//   - GET    /metrics/platform              : Platform daily rollups.
//   - GET    /metrics/tenants/:tenantId     : Tenant daily rollups.
//   - GET    /metrics/export.xlsx           : Rollups as a workbook.
//   - GET    /rollout/policies/:tenantId    : Show a rollout policy.
//   - PUT    /rollout/policies              : Create or replace a rollout policy.
//   - GET    /ops-logs                      : Search the operations log.
func Routes(fiberApp *fiber.App, a *app.App, sched *scheduler.Scheduler) {
	g := fiberApp.Group("/api/v1/admin", common.RequireActor())

	g.Get("/payout-requests", ListPayoutRequests(a))
	g.Post("/payout-requests/:id/approve", ApprovePayoutRequest(a))
	g.Post("/payout-requests/:id/reject", RejectPayoutRequest(a))
	g.Post("/payout-requests/:id/process", ProcessPayoutRequest(a))

	g.Post("/sellers/onboard", OnboardSeller(a))
	g.Post("/payouts/release", EnqueueRelease(a))
	g.Get("/payouts/:id", GetPayout(a))
	g.Post("/payouts/:id/finalize", FinalizePayout(a))

	g.Post("/invoices/:id/paid", MarkInvoicePaid(a))

	g.Get("/jobs", ListJobs(sched))
	g.Post("/jobs/:name/run", RunJob(sched))

	g.Get("/metrics/platform", PlatformMetrics(a))
	g.Get("/metrics/tenants/:tenantId", TenantMetrics(a))
	g.Get("/metrics/export.xlsx", ExportMetrics(a))

	g.Get("/rollout/policies/:tenantId", GetPolicy(a))
	g.Put("/rollout/policies", UpsertPolicy(a))

	g.Get("/ops-logs", ListOpsLogs(a))
}

// RejectRequest is the body of a payout rejection.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func ListPayoutRequests(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqs, err := a.Payouts.ListRequests(c.UserContext(), c.Query("tenantId"), payout.RequestStatus(c.Query("status")))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list payout requests", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Payout requests fetched", reqs)
	}
}

func ApprovePayoutRequest(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := a.Payouts.Approve(c.UserContext(), common.Actor(c), c.Params("id"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to approve payout request", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Payout request approved", req)
	}
}

func RejectPayoutRequest(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[RejectRequest](c)
		if input == nil {
			return err
		}
		req, err := a.Payouts.Reject(c.UserContext(), common.Actor(c), c.Params("id"), input.Reason)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to reject payout request", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Payout request rejected", req)
	}
}

func ProcessPayoutRequest(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := a.Payouts.ProcessInternal(c.UserContext(), common.Actor(c), c.Params("id"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to process payout request", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Payout request processed", req)
	}
}

func OnboardSeller(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[disbursement.OnboardInput](c)
		if input == nil {
			return err
		}
		profile, err := a.Disbursement.Onboard(c.UserContext(), common.Actor(c), *input)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to onboard seller", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Seller onboarded", profile)
	}
}

func EnqueueRelease(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[disbursement.ReleasePayoutInput](c)
		if input == nil {
			return err
		}
		po, err := a.Disbursement.EnqueueReleasePayout(c.UserContext(), common.Actor(c), *input)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to enqueue release payout", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusAccepted, "Release payout queued", po)
	}
}

func GetPayout(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		po, err := a.Disbursement.GetPayout(c.UserContext(), c.Params("id"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Payout not found", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Payout fetched", po)
	}
}

func FinalizePayout(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := a.Disbursement.FinalizePayoutLedger(c.UserContext(), common.Actor(c), c.Params("id"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to finalize payout", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, res.Message, res)
	}
}

func MarkInvoicePaid(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		inv, err := a.Billing.MarkInvoicePaid(c.UserContext(), common.Actor(c), c.Params("id"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to mark invoice paid", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Invoice marked paid", inv)
	}
}

func ListJobs(sched *scheduler.Scheduler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Jobs fetched", sched.Names())
	}
}

// RunJob runs a job in the request; a run already in flight is shared.
func RunJob(sched *scheduler.Scheduler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := c.Params("name")
		report, err := sched.Trigger(c.UserContext(), name)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Job failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, fmt.Sprintf("Job %s completed", name), report)
	}
}

func PlatformMetrics(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, to, err := dayRange(c, a.Deps.Now())
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid date range", err, fiber.StatusBadRequest)
		}
		rows, err := a.Metrics.ListPlatform(c.UserContext(), from, to)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to load metrics", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Platform metrics fetched", rows)
	}
}

func TenantMetrics(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, to, err := dayRange(c, a.Deps.Now())
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid date range", err, fiber.StatusBadRequest)
		}
		rows, err := a.Metrics.ListTenant(c.UserContext(), c.Params("tenantId"), from, to)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to load metrics", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Tenant metrics fetched", rows)
	}
}

// ExportMetrics streams the rollups of the range as XLSX. Repeat the tenant
// query parameter to add tenant rows.
func ExportMetrics(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, to, err := dayRange(c, a.Deps.Now())
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid date range", err, fiber.StatusBadRequest)
		}
		var tenants []string
		for _, v := range c.Context().QueryArgs().PeekMulti("tenant") {
			tenants = append(tenants, string(v))
		}
		var buf bytes.Buffer
		if err := a.Metrics.ExportXLSX(c.UserContext(), from, to, &buf, tenants...); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to export metrics", err)
		}
		c.Set(fiber.HeaderContentType, xlsxContentType)
		last := to.AddDate(0, 0, -1)
		c.Attachment(fmt.Sprintf("metrics-%s-%s.xlsx", from.Format(time.DateOnly), last.Format(time.DateOnly)))
		return c.Send(buf.Bytes())
	}
}

func GetPolicy(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := a.Policies.Get(c.UserContext(), c.Params("tenantId"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to load rollout policy", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Rollout policy fetched", p)
	}
}

func UpsertPolicy(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[risk.PolicyInput](c)
		if input == nil {
			return err
		}
		p, err := a.Policies.Upsert(c.UserContext(), common.Actor(c), *input)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to save rollout policy", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Rollout policy saved", p)
	}
}

func ListOpsLogs(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logs, err := a.Audit.List(c.UserContext(), repository.OpsLogFilter{
			TenantID:   c.Query("tenantId"),
			Action:     ops.Action(c.Query("action")),
			Severity:   ops.Severity(c.Query("severity")),
			EntityType: c.Query("entityType"),
			EntityID:   c.Query("entityId"),
			Limit:      c.QueryInt("limit", 100),
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list ops logs", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Ops logs fetched", logs)
	}
}

// dayRange reads from and to as YYYY-MM-DD; to is inclusive and defaults to
// from, which defaults to today. The returned upper bound is exclusive.
func dayRange(c *fiber.Ctx, now time.Time) (time.Time, time.Time, error) {
	today := now.UTC().Format(time.DateOnly)
	from, err := time.Parse(time.DateOnly, c.Query("from", today))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to := from
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.DateOnly, raw); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to %s is before from %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return from, to.AddDate(0, 0, 1), nil
}
