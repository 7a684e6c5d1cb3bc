package disbursement_test

import (
	"context"

	"github.com/amirasaad/settlement/pkg/provider"
	"github.com/stretchr/testify/mock"
)

var mockAny = mock.Anything

// mockProvider is a testify double of provider.PayoutProvider.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateSubMerchant(ctx context.Context, in provider.SubMerchantInput) (*provider.SubMerchant, error) {
	args := m.Called(ctx, in)
	sm, _ := args.Get(0).(*provider.SubMerchant)
	return sm, args.Error(1)
}

func (m *mockProvider) UpdateSubMerchant(ctx context.Context, key, iban, holderName string) error {
	return m.Called(ctx, key, iban, holderName).Error(0)
}

func (m *mockProvider) CreateSplitPayout(ctx context.Context, in provider.SplitPayoutInput) (*provider.SplitPayoutResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*provider.SplitPayoutResult)
	return res, args.Error(1)
}

func (m *mockProvider) GetPayoutStatus(ctx context.Context, providerPayoutID string) (*provider.PayoutStatusResult, error) {
	args := m.Called(ctx, providerPayoutID)
	res, _ := args.Get(0).(*provider.PayoutStatusResult)
	return res, args.Error(1)
}

func (m *mockProvider) VerifyWebhookSignature(signature string, payload []byte) bool {
	return m.Called(signature, payload).Bool(0)
}

func subMerchantFor(tenantID string) any {
	return mock.MatchedBy(func(in provider.SubMerchantInput) bool {
		return in.TenantID == tenantID && in.IBAN != "" && in.HolderName != ""
	})
}

func splitFor(providerPayoutID, key string) any {
	return mock.MatchedBy(func(in provider.SplitPayoutInput) bool {
		return in.ProviderPayoutID == providerPayoutID && in.SubMerchantKey == key &&
			in.IdempotencyKey == "RELEASE_PAYOUT:ship-1"
	})
}

var _ provider.PayoutProvider = (*mockProvider)(nil)
