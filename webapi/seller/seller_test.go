package seller_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/amirasaad/settlement/pkg/app"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	escrowsvc "github.com/amirasaad/settlement/pkg/service/escrow"
	ledgersvc "github.com/amirasaad/settlement/pkg/service/ledger"
	"github.com/amirasaad/settlement/pkg/testutils"
	"github.com/amirasaad/settlement/webapi/common"
	sellerweb "github.com/amirasaad/settlement/webapi/seller"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

const (
	seller = "seller-1"
	other  = "seller-2"
	iban   = "TR33 0006 1005 1978 6457 8413 26"
)

type SellerTestSuite struct {
	suite.Suite
	h   *testutils.Harness
	app *app.App
	web *fiber.App
}

func (s *SellerTestSuite) SetupTest() {
	s.h = testutils.NewHarness(s.T(), seller, other)
	s.app = app.New(s.h.Deps)
	s.web = fiber.New()
	sellerweb.Routes(s.web, s.app)

	_, err := s.app.Escrow.ReleaseToWallet(context.Background(), "system", escrowsvc.ReleaseInput{
		ShipmentID:     "ship-1",
		SellerTenantID: seller,
		GrossAmount:    decimal.RequireFromString("500"),
		NetAmount:      decimal.RequireFromString("500"),
	})
	s.Require().NoError(err)
}

func (s *SellerTestSuite) do(method, path, body string) *http.Response {
	return testutils.MakeRequest(s.web, method, path, body, map[string]string{common.ActorHeader: "seller-user"})
}

func (s *SellerTestSuite) data(resp *http.Response, status int, out any) {
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

func (s *SellerTestSuite) status(resp *http.Response) int {
	_ = resp.Body.Close()
	return resp.StatusCode
}

func (s *SellerTestSuite) TestRequiresActor() {
	resp := testutils.MakeRequest(s.web, fiber.MethodGet, "/api/v1/sellers/"+seller+"/wallet", "", nil)
	s.Equal(fiber.StatusUnauthorized, s.status(resp))
}

func (s *SellerTestSuite) TestWallet() {
	var w ledgersvc.Wallet
	s.data(s.do(fiber.MethodGet, "/api/v1/sellers/"+seller+"/wallet", ""), fiber.StatusOK, &w)
	s.Equal(seller, w.TenantID)
	s.True(w.Available.Equal(decimal.RequireFromString("500")), w.Available.String())
	s.True(w.Reserved.IsZero())
}

func (s *SellerTestSuite) TestDestinationLifecycle() {
	base := "/api/v1/sellers/" + seller + "/destinations"

	var d payout.DestinationView
	s.data(s.do(fiber.MethodPost, base, `{"iban":"`+iban+`","holderName":"Ahmet Yilmaz","isDefault":true}`), fiber.StatusCreated, &d)
	s.Equal(seller, d.TenantID)
	s.NotContains(d.IBAN, "0006100519786457")
	s.NotEqual("Ahmet Yilmaz", d.HolderName)

	s.Equal(fiber.StatusBadRequest, s.status(s.do(fiber.MethodPost, base, `{"iban":"TR00 0000","holderName":"x"}`)))
	s.Equal(fiber.StatusBadRequest, s.status(s.do(fiber.MethodPost, base, `{"iban":"`+iban+`"}`)))

	var listed []payout.DestinationView
	s.data(s.do(fiber.MethodGet, base, ""), fiber.StatusOK, &listed)
	s.Require().Len(listed, 1)
	s.Equal(d.ID, listed[0].ID)

	// Another tenant cannot see or disable it.
	s.data(s.do(fiber.MethodGet, "/api/v1/sellers/"+other+"/destinations", ""), fiber.StatusOK, &listed)
	s.Empty(listed)
	s.Equal(fiber.StatusNotFound, s.status(s.do(fiber.MethodDelete, "/api/v1/sellers/"+other+"/destinations/"+d.ID, "")))

	s.data(s.do(fiber.MethodDelete, base+"/"+d.ID, ""), fiber.StatusOK, nil)
	s.data(s.do(fiber.MethodGet, base, ""), fiber.StatusOK, &listed)
	s.Require().Len(listed, 1)
	s.Equal(payout.DestinationDisabled, listed[0].Status)

	body := `{"destinationId":"` + d.ID + `","amount":"10"}`
	s.Equal(fiber.StatusNotFound, s.status(s.do(fiber.MethodPost, "/api/v1/sellers/"+seller+"/payout-requests", body)))
}

func (s *SellerTestSuite) TestPayoutRequests() {
	var d payout.DestinationView
	s.data(s.do(fiber.MethodPost, "/api/v1/sellers/"+seller+"/destinations",
		`{"iban":"`+iban+`","holderName":"Ahmet Yilmaz"}`), fiber.StatusCreated, &d)

	base := "/api/v1/sellers/" + seller + "/payout-requests"
	var req payout.Request
	s.data(s.do(fiber.MethodPost, base, `{"destinationId":"`+d.ID+`","amount":"120"}`), fiber.StatusCreated, &req)
	s.Equal(payout.RequestRequested, req.Status)
	s.Equal("TRY", req.Currency)
	s.Equal("seller-user", req.RequestedBy)

	s.Equal(fiber.StatusUnprocessableEntity,
		s.status(s.do(fiber.MethodPost, base, `{"destinationId":"`+d.ID+`","amount":"900"}`)))
	s.Equal(fiber.StatusBadRequest,
		s.status(s.do(fiber.MethodPost, base, `{"destinationId":"`+d.ID+`","amount":"0"}`)))
	s.Equal(fiber.StatusNotFound, s.status(s.do(fiber.MethodPost, "/api/v1/sellers/"+other+"/payout-requests",
		`{"destinationId":"`+d.ID+`","amount":"10"}`)))

	var got payout.Request
	s.data(s.do(fiber.MethodGet, base+"/"+req.ID, ""), fiber.StatusOK, &got)
	s.Equal(req.ID, got.ID)
	s.Equal(fiber.StatusNotFound, s.status(s.do(fiber.MethodGet, "/api/v1/sellers/"+other+"/payout-requests/"+req.ID, "")))

	var listed []payout.Request
	s.data(s.do(fiber.MethodGet, base+"?status=REQUESTED", ""), fiber.StatusOK, &listed)
	s.Len(listed, 1)
	s.data(s.do(fiber.MethodGet, base+"?status=APPROVED", ""), fiber.StatusOK, &listed)
	s.Empty(listed)
}

func TestSellerTestSuite(t *testing.T) {
	suite.Run(t, new(SellerTestSuite))
}
