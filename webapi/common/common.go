// Package common holds the response envelopes and error mapping shared by
// the HTTP handlers.
package common

import (
	"errors"

	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/billing"
	"github.com/amirasaad/settlement/pkg/domain/escrow"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/domain/rollout"
	"github.com/amirasaad/settlement/pkg/domain/webhook"
	"github.com/amirasaad/settlement/pkg/pii"
	"github.com/amirasaad/settlement/pkg/scheduler"
	"github.com/amirasaad/settlement/pkg/service/idempotency"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// ActorHeader names the operator performing an admin call.
const ActorHeader = "X-Admin-User"

// Response defines the standard API response structure for success cases.
type Response struct {
	Status  int    `json:"status"`         // HTTP status code
	Message string `json:"message"`        // Human-readable explanation
	Data    any    `json:"data,omitempty"` // Response data
}

// ProblemDetails follows RFC 9457 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Errors   any    `json:"errors,omitempty"`
}

var validate = validator.New()

// SuccessResponseJSON writes data inside the standard envelope.
func SuccessResponseJSON(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{Status: status, Message: message, Data: data})
}

// ProblemDetailsJSON writes an application/problem+json response. The status
// comes from ErrorToStatusCode unless an int is passed in args; a string in
// args replaces the detail taken from err.
func ProblemDetailsJSON(c *fiber.Ctx, title string, err error, args ...any) error {
	status := fiber.StatusInternalServerError
	detail := ""
	if err != nil {
		status = ErrorToStatusCode(err)
		detail = err.Error()
	}
	for _, a := range args {
		switch v := a.(type) {
		case int:
			status = v
		case string:
			detail = v
		}
	}
	pd := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.OriginalURL(),
	}
	var violation *rollout.ViolationError
	if errors.As(err, &violation) {
		pd.Errors = fiber.Map{"code": violation.Code, "tenantId": violation.TenantID}
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		pd.Errors = fields
	}
	return c.Status(status).JSON(pd, "application/problem+json")
}

// ErrorToStatusCode maps domain errors to HTTP status codes.
func ErrorToStatusCode(err error) int {
	var fe *fiber.Error
	var violation *rollout.ViolationError
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &violation):
		return fiber.StatusForbidden
	case errors.Is(err, webhook.ErrExpiredTimestamp),
		errors.Is(err, webhook.ErrInvalidSignature):
		return fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnknownTenant),
		errors.Is(err, payout.ErrDestinationNotFound),
		errors.Is(err, payout.ErrRequestNotFound),
		errors.Is(err, payout.ErrPayoutNotFound),
		errors.Is(err, billing.ErrPlanNotFound),
		errors.Is(err, billing.ErrSubscriptionNotFound),
		errors.Is(err, billing.ErrInvoiceNotFound),
		errors.Is(err, escrow.ErrPaymentNotFound),
		errors.Is(err, scheduler.ErrUnknownJob):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, billing.ErrSubscriptionExists),
		errors.Is(err, billing.ErrInvoiceExists),
		errors.Is(err, idempotency.ErrOperationInProgress):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrFeatureDisabled),
		errors.Is(err, billing.ErrFeatureDisabled),
		errors.Is(err, billing.ErrBoostPaused):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, payout.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrWalletOverdrawn),
		errors.Is(err, payout.ErrSellerNotOnboarded),
		errors.Is(err, payout.ErrPayoutNotSucceeded),
		errors.Is(err, billing.ErrSubscriptionInactive),
		errors.Is(err, billing.ErrInvoiceNotPayable),
		errors.Is(err, escrow.ErrPaymentNotCaptured):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, payout.ErrInvalidAmount),
		errors.Is(err, payout.ErrAmountMismatch),
		errors.Is(err, billing.ErrInvalidPeriod),
		errors.Is(err, pii.ErrInvalidIBAN),
		errors.Is(err, webhook.ErrInvalidPayload),
		errors.Is(err, ledger.ErrUnbalancedGroup),
		errors.Is(err, ledger.ErrInvalidLine):
		return fiber.StatusBadRequest
	default:
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fiber.StatusBadRequest
		}
		return fiber.StatusInternalServerError
	}
}

// BindAndValidate parses the request body and validates it using go-playground/validator.
// On failure the problem response is already written and the returned
// pointer is nil.
func BindAndValidate[T any](c *fiber.Ctx) (*T, error) {
	var input T
	if err := c.BodyParser(&input); err != nil {
		return nil, ProblemDetailsJSON(c, "Invalid request body", err, fiber.StatusBadRequest)
	}
	if err := validate.Struct(input); err != nil {
		return nil, ProblemDetailsJSON(c, "Validation failed", err, fiber.StatusBadRequest)
	}
	return &input, nil
}

// Actor returns the operator named by ActorHeader.
func Actor(c *fiber.Ctx) string {
	return c.Get(ActorHeader)
}

// RequireActor rejects requests that do not name an operator.
func RequireActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if Actor(c) == "" {
			return ProblemDetailsJSON(c, "Unauthorized", nil, "missing "+ActorHeader+" header", fiber.StatusUnauthorized)
		}
		return c.Next()
	}
}
