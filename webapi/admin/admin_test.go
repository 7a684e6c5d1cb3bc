package admin_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/amirasaad/settlement/pkg/app"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/scheduler"
	"github.com/amirasaad/settlement/pkg/service/disbursement"
	escrowsvc "github.com/amirasaad/settlement/pkg/service/escrow"
	ledgersvc "github.com/amirasaad/settlement/pkg/service/ledger"
	payoutsvc "github.com/amirasaad/settlement/pkg/service/payout"
	"github.com/amirasaad/settlement/pkg/testutils"
	adminweb "github.com/amirasaad/settlement/webapi/admin"
	"github.com/amirasaad/settlement/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"
)

const seller = "seller-1"

type AdminTestSuite struct {
	suite.Suite
	h   *testutils.Harness
	app *app.App
	web *fiber.App
}

func (s *AdminTestSuite) SetupTest() {
	s.h = testutils.NewHarness(s.T(), seller)
	s.app = app.New(s.h.Deps)
	s.web = fiber.New()
	adminweb.Routes(s.web, s.app, scheduler.New(nil, s.app.Jobs()...))
}

func (s *AdminTestSuite) do(method, path, body string) *http.Response {
	return testutils.MakeRequest(s.web, method, path, body, map[string]string{common.ActorHeader: "ops-1"})
}

// data decodes the envelope of a successful response into out.
func (s *AdminTestSuite) data(resp *http.Response, status int, out any) {
	defer resp.Body.Close() //nolint:errcheck
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Require().Equal(status, resp.StatusCode, string(raw))
	if out == nil {
		return
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	s.Require().NoError(json.Unmarshal(raw, &env))
	s.Require().NoError(json.Unmarshal(env.Data, out))
}

func (s *AdminTestSuite) status(resp *http.Response) int {
	_ = resp.Body.Close()
	return resp.StatusCode
}

func (s *AdminTestSuite) fundedRequest(amount string) (*payout.DestinationView, *payout.Request) {
	ctx := context.Background()
	poster := ledgersvc.NewPoster(s.h.Deps.Tenants, s.h.Clock.Now, nil)
	_, err := poster.PostGroup(ctx, s.h.Uow, ledger.GroupInput{
		TenantID:       seller,
		Type:           ledger.GroupEarningRelease,
		IdempotencyKey: "fund-" + seller,
		Lines: []ledger.Line{
			{TenantID: testutils.PlatformTenant, AccountType: ledger.AccountEscrowLiability, Direction: ledger.Debit, Amount: decimal.RequireFromString("500"), Currency: "TRY"},
			{TenantID: seller, AccountType: ledger.AccountWalletAvailable, Direction: ledger.Credit, Amount: decimal.RequireFromString("500"), Currency: "TRY"},
		},
	})
	s.Require().NoError(err)
	d, err := s.app.Payouts.CreateDestination(ctx, "seller-user", payoutsvc.DestinationInput{
		TenantID:   seller,
		IBAN:       "TR33 0006 1005 1978 6457 8413 26",
		HolderName: "Ahmet Yilmaz",
	})
	s.Require().NoError(err)
	req, err := s.app.Payouts.CreateRequest(ctx, "seller-user", payoutsvc.RequestInput{
		TenantID:      seller,
		DestinationID: d.ID,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "TRY",
	})
	s.Require().NoError(err)
	return d, req
}

func (s *AdminTestSuite) TestRequiresActor() {
	resp := testutils.MakeRequest(s.web, fiber.MethodGet, "/api/v1/admin/jobs", "", nil)
	s.Equal(fiber.StatusUnauthorized, s.status(resp))
}

func (s *AdminTestSuite) TestPayoutRequestLifecycle() {
	_, req := s.fundedRequest("120")
	base := "/api/v1/admin/payout-requests/" + req.ID

	var got payout.Request
	s.data(s.do(fiber.MethodPost, base+"/approve", ""), fiber.StatusOK, &got)
	s.Equal(payout.RequestApproved, got.Status)
	s.Equal("ops-1", got.ApprovedBy)

	s.data(s.do(fiber.MethodPost, base+"/process", ""), fiber.StatusOK, &got)
	s.Equal(payout.RequestPaidInternal, got.Status)

	s.Equal(fiber.StatusUnprocessableEntity, s.status(s.do(fiber.MethodPost, base+"/reject", `{"reason":"late"}`)))

	var listed []payout.Request
	s.data(s.do(fiber.MethodGet, "/api/v1/admin/payout-requests?tenantId="+seller+"&status=PAID_INTERNAL", ""), fiber.StatusOK, &listed)
	s.Len(listed, 1)

	var logs []struct {
		Actor    string `json:"actor"`
		EntityID string `json:"entityId"`
	}
	s.data(s.do(fiber.MethodGet, "/api/v1/admin/ops-logs?action=PAYOUT_REQUEST_APPROVED", ""), fiber.StatusOK, &logs)
	s.Require().Len(logs, 1)
	s.Equal("ops-1", logs[0].Actor)
	s.Equal(req.ID, logs[0].EntityID)
}

func (s *AdminTestSuite) TestRejectNeedsReason() {
	_, req := s.fundedRequest("10")
	path := "/api/v1/admin/payout-requests/" + req.ID + "/reject"

	s.Equal(fiber.StatusBadRequest, s.status(s.do(fiber.MethodPost, path, `{}`)))

	var got payout.Request
	s.data(s.do(fiber.MethodPost, path, `{"reason":"duplicate request"}`), fiber.StatusOK, &got)
	s.Equal(payout.RequestRejected, got.Status)
}

func (s *AdminTestSuite) TestUnknownRequestIsNotFound() {
	s.Equal(fiber.StatusNotFound, s.status(s.do(fiber.MethodPost, "/api/v1/admin/payout-requests/missing/approve", "")))
	s.Equal(fiber.StatusNotFound, s.status(s.do(fiber.MethodPost, "/api/v1/admin/invoices/missing/paid", "")))
}

func (s *AdminTestSuite) TestOnboardThenRelease() {
	d, _ := s.fundedRequest("10")
	release := `{"shipmentId":"shp-1","sellerTenantId":"seller-1","grossAmount":"100","commissionAmount":"10","netAmount":"90","currency":"TRY"}`

	s.Equal(fiber.StatusUnprocessableEntity, s.status(s.do(fiber.MethodPost, "/api/v1/admin/payouts/release", release)))

	var profile payout.SellerPaymentProfile
	s.data(s.do(fiber.MethodPost, "/api/v1/admin/sellers/onboard",
		`{"tenantId":"seller-1","destinationId":"`+d.ID+`"}`), fiber.StatusOK, &profile)
	s.Equal(payout.ProfileActive, profile.Status)

	var po payout.ProviderPayout
	s.data(s.do(fiber.MethodPost, "/api/v1/admin/payouts/release", release), fiber.StatusAccepted, &po)
	s.Equal(payout.ProviderQueued, po.Status)
	s.True(po.NetAmount.Equal(decimal.NewFromInt(90)))

	var fetched payout.ProviderPayout
	s.data(s.do(fiber.MethodGet, "/api/v1/admin/payouts/"+po.ProviderPayoutID, ""), fiber.StatusOK, &fetched)
	s.Equal(po.ID, fetched.ID)

	finalize := "/api/v1/admin/payouts/" + po.ProviderPayoutID + "/finalize"
	s.Equal(fiber.StatusUnprocessableEntity, s.status(s.do(fiber.MethodPost, finalize, "")))
	s.Equal(fiber.StatusNotFound, s.status(s.do(fiber.MethodPost, "/api/v1/admin/payouts/missing/finalize", "")))
}

func (s *AdminTestSuite) TestFinalizeSucceededPayout() {
	ctx := context.Background()
	d, _ := s.fundedRequest("10")
	_, err := s.app.Disbursement.Onboard(ctx, "ops-1", disbursement.OnboardInput{TenantID: seller, DestinationID: d.ID})
	s.Require().NoError(err)
	po, err := s.app.Disbursement.EnqueueReleasePayout(ctx, "ops-1", disbursement.ReleasePayoutInput{
		ShipmentID:       "shp-2",
		SellerTenantID:   seller,
		GrossAmount:      decimal.NewFromInt(100),
		CommissionAmount: decimal.NewFromInt(10),
		NetAmount:        decimal.NewFromInt(90),
	})
	s.Require().NoError(err)
	ok, err := s.h.Uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimProviderPayout, po.ID,
		[]string{string(payout.ProviderQueued)}, string(payout.ProviderSucceeded), nil)
	s.Require().NoError(err)
	s.Require().True(ok)

	var res struct {
		LedgerGroupID string `json:"ledgerGroupId"`
		Message       string `json:"message"`
	}
	path := "/api/v1/admin/payouts/" + po.ProviderPayoutID + "/finalize"
	s.data(s.do(fiber.MethodPost, path, ""), fiber.StatusOK, &res)
	s.Equal("Finalized", res.Message)
	s.NotEmpty(res.LedgerGroupID)

	s.data(s.do(fiber.MethodPost, path, ""), fiber.StatusOK, &res)
	s.Equal("Already processed", res.Message)
}

func (s *AdminTestSuite) TestJobs() {
	var names []string
	s.data(s.do(fiber.MethodGet, "/api/v1/admin/jobs", ""), fiber.StatusOK, &names)
	s.Contains(names, app.JobSentinel)

	s.data(s.do(fiber.MethodPost, "/api/v1/admin/jobs/"+app.JobSentinel+"/run", ""), fiber.StatusOK, nil)
	s.Equal(fiber.StatusNotFound, s.status(s.do(fiber.MethodPost, "/api/v1/admin/jobs/nope/run", "")))
}

func (s *AdminTestSuite) TestRolloutPolicy() {
	var saved struct {
		TenantID     string          `json:"tenantId"`
		MaxDailyGmv  decimal.Decimal `json:"maxDailyGmv"`
		PayoutPaused bool            `json:"payoutPaused"`
	}
	s.data(s.do(fiber.MethodPut, "/api/v1/admin/rollout/policies",
		`{"tenantId":"seller-1","maxDailyGmv":"1000","payoutPaused":true}`), fiber.StatusOK, &saved)
	s.Equal(seller, saved.TenantID)
	s.True(saved.PayoutPaused)

	var got struct {
		MaxDailyGmv  decimal.Decimal `json:"maxDailyGmv"`
		PayoutPaused bool            `json:"payoutPaused"`
	}
	s.data(s.do(fiber.MethodGet, "/api/v1/admin/rollout/policies/"+seller, ""), fiber.StatusOK, &got)
	s.True(got.MaxDailyGmv.Equal(decimal.NewFromInt(1000)))
	s.True(got.PayoutPaused)

	s.Equal(fiber.StatusBadRequest, s.status(s.do(fiber.MethodPut, "/api/v1/admin/rollout/policies", `{}`)))
}

func (s *AdminTestSuite) TestMetricsAndExport() {
	_, err := s.app.Escrow.CapturePayment(context.Background(), "ops-1", escrowsvc.CaptureInput{
		ProviderPaymentID: "pay-1",
		TenantID:          seller,
		OrderID:           "order-1",
		Amount:            decimal.NewFromInt(250),
	})
	s.Require().NoError(err)
	s.data(s.do(fiber.MethodPost, "/api/v1/admin/jobs/"+app.JobMetrics+"/run", ""), fiber.StatusOK, nil)

	var rows []struct {
		Day string `json:"day"`
	}
	s.data(s.do(fiber.MethodGet, "/api/v1/admin/metrics/platform?from=2026-03-09&to=2026-03-10", ""), fiber.StatusOK, &rows)
	s.Len(rows, 2)

	s.data(s.do(fiber.MethodGet, "/api/v1/admin/metrics/tenants/"+seller+"?from=2026-03-10", ""), fiber.StatusOK, &rows)
	s.Len(rows, 1)

	s.Equal(fiber.StatusBadRequest, s.status(s.do(fiber.MethodGet, "/api/v1/admin/metrics/platform?from=2026-03-10&to=2026-03-01", "")))

	resp := s.do(fiber.MethodGet, "/api/v1/admin/metrics/export.xlsx?from=2026-03-09&to=2026-03-10&tenant="+seller, "")
	defer resp.Body.Close() //nolint:errcheck
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Contains(resp.Header.Get(fiber.HeaderContentDisposition), "metrics-2026-03-09-2026-03-10.xlsx")
	book, err := excelize.OpenReader(resp.Body)
	s.Require().NoError(err)
	defer book.Close() //nolint:errcheck
	platformRows, err := book.GetRows("Platform")
	s.Require().NoError(err)
	s.Len(platformRows, 3)
	// Only the day with seller activity has a tenant row.
	tenantRows, err := book.GetRows("Tenants")
	s.Require().NoError(err)
	s.Require().Len(tenantRows, 2)
	s.Equal("2026-03-10", tenantRows[1][0])
	s.Equal(seller, tenantRows[1][1])
}

func TestAdminTestSuite(t *testing.T) {
	suite.Run(t, new(AdminTestSuite))
}
