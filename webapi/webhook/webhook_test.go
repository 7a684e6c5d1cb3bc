package webhook_test

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/amirasaad/settlement/pkg/app"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/testutils"
	webhookweb "github.com/amirasaad/settlement/webapi/webhook"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/suite"
)

type WebhookTestSuite struct {
	suite.Suite
	h   *testutils.Harness
	app *app.App
	web *fiber.App
}

func (s *WebhookTestSuite) SetupTest() {
	s.h = testutils.NewHarness(s.T(), "SELLER-1")
	s.app = app.New(s.h.Deps)
	s.web = fiber.New()
	webhookweb.Routes(s.web, s.app.Disbursement, s.h.Config.Webhook.ReplayStatus, s.h.Deps.Logger)
}

func (s *WebhookTestSuite) send(payload string, ts time.Time, signature string) *http.Response {
	if signature == "" {
		signature = s.h.Provider.Sign([]byte(payload))
	}
	return testutils.MakeRequest(s.web, fiber.MethodPost, "/api/v1/webhooks/payouts", payload, map[string]string{
		webhookweb.SignatureHeader: signature,
		webhookweb.TimestampHeader: strconv.FormatInt(ts.UnixMilli(), 10),
	})
}

const succeeded = `{"eventType":"PAYOUT_SUCCEEDED","providerPayoutId":"po-1","externalReference":"ext-1"}`

func (s *WebhookTestSuite) TestAcceptsSignedDelivery() {
	resp := s.send(succeeded, s.h.Clock.Now(), "")
	defer resp.Body.Close() //nolint:errcheck

	s.Equal(fiber.StatusOK, resp.StatusCode)
	var body map[string]string
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Equal("received", body["status"])
	s.NotEmpty(body["eventId"])
}

func (s *WebhookTestSuite) TestReplayReturnsDuplicate() {
	ts := s.h.Clock.Now()
	first := s.send(succeeded, ts, "")
	_ = first.Body.Close()
	s.Require().Equal(fiber.StatusOK, first.StatusCode)

	resp := s.send(succeeded, ts, "")
	defer resp.Body.Close() //nolint:errcheck
	s.Equal(fiber.StatusOK, resp.StatusCode)
	var body map[string]string
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Equal("duplicate", body["status"])

	logs, err := s.app.Audit.List(s.T().Context(), repository.OpsLogFilter{Action: ops.ActionWebhookReplayRejected})
	s.Require().NoError(err)
	s.Len(logs, 1)
}

func (s *WebhookTestSuite) TestReplayStatusIsConfigurable() {
	web := fiber.New()
	webhookweb.Routes(web, s.app.Disbursement, fiber.StatusConflict, s.h.Deps.Logger)
	s.web = web

	ts := s.h.Clock.Now()
	_ = s.send(succeeded, ts, "").Body.Close()
	resp := s.send(succeeded, ts, "")
	_ = resp.Body.Close()
	s.Equal(fiber.StatusConflict, resp.StatusCode)
}

func (s *WebhookTestSuite) TestRejectsExpiredTimestamp() {
	resp := s.send(succeeded, s.h.Clock.Now().Add(-6*time.Minute), "")
	defer resp.Body.Close() //nolint:errcheck
	s.Equal(fiber.StatusUnauthorized, resp.StatusCode)
	s.Equal("application/problem+json", resp.Header.Get(fiber.HeaderContentType))
}

func (s *WebhookTestSuite) TestRejectsBadSignature() {
	resp := s.send(succeeded, s.h.Clock.Now(), "deadbeef")
	_ = resp.Body.Close()
	s.Equal(fiber.StatusUnauthorized, resp.StatusCode)
}

func (s *WebhookTestSuite) TestRejectsMalformedPayload() {
	resp := s.send(`{"eventType":`, s.h.Clock.Now(), "")
	_ = resp.Body.Close()
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)

	events, err := s.h.Uow.Webhooks().ListByStatus(s.T().Context(), "RECEIVED", 10)
	s.Require().NoError(err)
	s.Empty(events)
}

func TestWebhookTestSuite(t *testing.T) {
	suite.Run(t, new(WebhookTestSuite))
}
