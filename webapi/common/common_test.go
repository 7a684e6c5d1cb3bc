package common_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/billing"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/domain/rollout"
	"github.com/amirasaad/settlement/pkg/domain/webhook"
	"github.com/amirasaad/settlement/pkg/scheduler"
	"github.com/amirasaad/settlement/pkg/testutils"
	"github.com/amirasaad/settlement/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorToStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{webhook.ErrExpiredTimestamp, fiber.StatusUnauthorized},
		{webhook.ErrInvalidSignature, fiber.StatusUnauthorized},
		{fmt.Errorf("load: %w", domain.ErrNotFound), fiber.StatusNotFound},
		{payout.ErrRequestNotFound, fiber.StatusNotFound},
		{scheduler.ErrUnknownJob, fiber.StatusNotFound},
		{billing.ErrInvoiceExists, fiber.StatusConflict},
		{payout.ErrInsufficientFunds, fiber.StatusUnprocessableEntity},
		{domain.ErrInvalidTransition, fiber.StatusUnprocessableEntity},
		{payout.ErrInvalidAmount, fiber.StatusBadRequest},
		{webhook.ErrInvalidPayload, fiber.StatusBadRequest},
		{&rollout.ViolationError{Code: rollout.CodePayoutPaused, TenantID: "T1"}, fiber.StatusForbidden},
		{billing.ErrBoostPaused, fiber.StatusForbidden},
		{fiber.ErrMethodNotAllowed, fiber.StatusMethodNotAllowed},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, common.ErrorToStatusCode(tc.err), tc.err.Error())
	}
}

func TestProblemDetailsJSON_ViolationCarriesCode(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return common.ProblemDetailsJSON(c, "Payout blocked", &rollout.ViolationError{
			Code:     rollout.CodeDailyPayoutLimitExceeded,
			TenantID: "T1",
		})
	})

	resp := testutils.MakeRequest(app, fiber.MethodGet, "/", "", nil)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get(fiber.HeaderContentType))
	var pd struct {
		Title  string            `json:"title"`
		Status int               `json:"status"`
		Detail string            `json:"detail"`
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pd))
	assert.Equal(t, "Payout blocked", pd.Title)
	assert.Equal(t, fiber.StatusForbidden, pd.Status)
	assert.Equal(t, "DAILY_PAYOUT_LIMIT_EXCEEDED", pd.Errors["code"])
	assert.Equal(t, "T1", pd.Errors["tenantId"])
}

type bindInput struct {
	TenantID string `json:"tenantId" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func TestBindAndValidate(t *testing.T) {
	app := fiber.New()
	app.Post("/", func(c *fiber.Ctx) error {
		in, err := common.BindAndValidate[bindInput](c)
		if in == nil {
			return err
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "ok", in)
	})

	resp := testutils.MakeRequest(app, fiber.MethodPost, "/", `{"tenantId":"T1"}`, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = testutils.MakeRequest(app, fiber.MethodPost, "/", `{"email":"nope"}`, nil)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "Validation failed")
	assert.Contains(t, string(body), `"TenantID":"required"`)

	resp = testutils.MakeRequest(app, fiber.MethodPost, "/", `{"tenantId":`, nil)
	_ = resp.Body.Close()
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRequireActor(t *testing.T) {
	app := fiber.New()
	app.Get("/", common.RequireActor(), func(c *fiber.Ctx) error {
		return c.SendString(common.Actor(c))
	})

	resp := testutils.MakeRequest(app, fiber.MethodGet, "/", "", nil)
	_ = resp.Body.Close()
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = testutils.MakeRequest(app, fiber.MethodGet, "/", "", map[string]string{common.ActorHeader: "ops-1"})
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ops-1", string(body))
}
