package webapi_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/amirasaad/settlement/pkg/app"
	"github.com/amirasaad/settlement/pkg/config"
	"github.com/amirasaad/settlement/pkg/scheduler"
	"github.com/amirasaad/settlement/pkg/testutils"
	"github.com/amirasaad/settlement/webapi"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/suite"
)

type WebAPITestSuite struct {
	suite.Suite
	app *fiber.App
}

func (s *WebAPITestSuite) SetupTest() {
	h := testutils.NewHarness(s.T())
	h.Config.RateLimit = &config.RateLimit{MaxRequests: 5, Window: time.Second}
	a := app.New(h.Deps)
	s.app = webapi.SetupApp(a, scheduler.New(nil, a.Jobs()...))
}

func (s *WebAPITestSuite) TestRateLimit() {
	for i := range 6 {
		resp := testutils.MakeRequest(s.app, fiber.MethodGet, "/", "", map[string]string{"X-Forwarded-For": "10.0.0.1, 172.16.0.1"})
		_ = resp.Body.Close()
		if i < 5 {
			s.Equal(fiber.StatusOK, resp.StatusCode, "request %d", i+1)
		} else {
			s.Equal(fiber.StatusTooManyRequests, resp.StatusCode, "request %d", i+1)
		}
	}

	// Another client is keyed separately.
	resp := testutils.MakeRequest(s.app, fiber.MethodGet, "/", "", map[string]string{"X-Forwarded-For": "10.0.0.2"})
	_ = resp.Body.Close()
	s.Equal(fiber.StatusOK, resp.StatusCode)

	time.Sleep(1100 * time.Millisecond)
	resp = testutils.MakeRequest(s.app, fiber.MethodGet, "/", "", map[string]string{"X-Forwarded-For": "10.0.0.1"})
	_ = resp.Body.Close()
	s.Equal(fiber.StatusOK, resp.StatusCode)
}

func (s *WebAPITestSuite) TestRoutesAreMounted() {
	resp := testutils.MakeRequest(s.app, fiber.MethodGet, "/debug/routes", "", nil)
	defer resp.Body.Close() //nolint:errcheck
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)

	var routes []struct {
		Method string `json:"method"`
		Path   string `json:"path"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&routes))
	seen := map[string]bool{}
	for _, r := range routes {
		seen[r.Method+" "+r.Path] = true
	}
	s.True(seen["POST /api/v1/webhooks/payouts"])
	s.True(seen["POST /api/v1/admin/jobs/:name/run"])
	s.True(seen["PUT /api/v1/admin/rollout/policies"])
	s.True(seen["POST /api/v1/admin/payouts/:id/finalize"])
	s.True(seen["POST /api/v1/sellers/:tenantId/payout-requests"])
	s.True(seen["DELETE /api/v1/sellers/:tenantId/destinations/:id"])
	s.True(seen["POST /api/v1/escrow/payments/:id/chargeback"])
	s.True(seen["POST /api/v1/escrow/releases"])
	s.True(seen["POST /api/v1/billing/subscriptions/:id/invoices"])
	s.True(seen["GET /api/v1/billing/tenants/:tenantId/boost"])
}

func (s *WebAPITestSuite) TestUnknownRouteIsProblemJSON() {
	resp := testutils.MakeRequest(s.app, fiber.MethodGet, "/nope", "", nil)
	_ = resp.Body.Close()
	s.Equal(fiber.StatusNotFound, resp.StatusCode)
	s.Equal("application/problem+json", resp.Header.Get(fiber.HeaderContentType))
}

func TestWebAPITestSuite(t *testing.T) {
	suite.Run(t, new(WebAPITestSuite))
}
