// Package stripepayout releases seller earnings through Stripe Connect:
// sub-merchants are connected accounts and split payouts are transfers.
package stripepayout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/amirasaad/settlement/pkg/config"
	"github.com/amirasaad/settlement/pkg/provider"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Provider implements provider.PayoutProvider using the Stripe API.
type Provider struct {
	client *stripe.Client
	cfg    *config.Stripe
	logger *slog.Logger
}

func New(cfg *config.Stripe, logger *slog.Logger, opts ...stripe.ClientOption) *Provider {
	return &Provider{
		client: stripe.NewClient(cfg.ApiKey, opts...),
		cfg:    cfg,
		logger: logger.With("provider", "stripe"),
	}
}

// CreateSubMerchant creates a custom connected account with transfers
// requested. Bank details are collected by Stripe-hosted onboarding. Only
// the tenant and the IBAN tail go into account metadata.
func (s *Provider) CreateSubMerchant(ctx context.Context, in provider.SubMerchantInput) (*provider.SubMerchant, error) {
	params := &stripe.AccountCreateParams{
		Type:         stripe.String("custom"),
		Country:      stripe.String(s.cfg.Country),
		BusinessType: stripe.String("individual"),
		Capabilities: &stripe.AccountCreateCapabilitiesParams{
			Transfers: &stripe.AccountCreateCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
		Params: stripe.Params{
			Metadata: map[string]string{
				"tenant_id":  in.TenantID,
				"iban_last4": last4(in.IBAN),
				"env":        s.cfg.Env,
			},
			IdempotencyKey: stripe.String("submerchant:" + in.TenantID),
		},
	}
	if in.Email != "" {
		params.Email = stripe.String(in.Email)
	}
	acct, err := s.client.V1Accounts.Create(ctx, params)
	if err != nil {
		s.logger.Error("create connected account failed", "tenant_id", in.TenantID, "error", err)
		return nil, fmt.Errorf("create connected account: %w", err)
	}
	s.logger.Info("connected account created", "tenant_id", in.TenantID, "account_id", acct.ID)
	return &provider.SubMerchant{Key: acct.ID}, nil
}

// UpdateSubMerchant refreshes the IBAN tail. The holder name is not sent.
func (s *Provider) UpdateSubMerchant(ctx context.Context, key, iban, _ string) error {
	params := &stripe.AccountUpdateParams{}
	params.AddMetadata("iban_last4", last4(iban))
	if _, err := s.client.V1Accounts.Update(ctx, key, params); err != nil {
		s.logger.Error("update connected account failed", "account_id", key, "error", err)
		return fmt.Errorf("update connected account %s: %w", key, err)
	}
	return nil
}

// CreateSplitPayout transfers the net amount to the connected account. The
// commission never leaves the platform balance. The transfer group carries
// the provider payout id so GetPayoutStatus can find it again.
func (s *Provider) CreateSplitPayout(ctx context.Context, in provider.SplitPayoutInput) (*provider.SplitPayoutResult, error) {
	params := &stripe.TransferCreateParams{
		Amount:        stripe.Int64(MinorUnits(in.NetAmount)),
		Currency:      stripe.String(strings.ToLower(in.Currency)),
		Destination:   stripe.String(in.SubMerchantKey),
		TransferGroup: stripe.String(in.ProviderPayoutID),
		Description:   stripe.String("release payout " + in.ProviderPayoutID),
	}
	params.AddMetadata("provider_payout_id", in.ProviderPayoutID)
	params.AddMetadata("commission", in.CommissionAmount.String())
	key := in.IdempotencyKey
	if key == "" {
		key = in.ProviderPayoutID
	}
	params.SetIdempotencyKey(key)

	tr, err := s.client.V1Transfers.Create(ctx, params)
	if err != nil {
		s.logger.Error("create transfer failed", "provider_payout_id", in.ProviderPayoutID, "error", err)
		return nil, fmt.Errorf("create transfer: %w", err)
	}
	return &provider.SplitPayoutResult{ExternalReference: tr.ID, Status: transferStatus(tr)}, nil
}

func (s *Provider) GetPayoutStatus(ctx context.Context, providerPayoutID string) (*provider.PayoutStatusResult, error) {
	params := &stripe.TransferListParams{TransferGroup: stripe.String(providerPayoutID)}
	for tr, err := range s.client.V1Transfers.List(ctx, params) {
		if err != nil {
			return nil, fmt.Errorf("list transfers %s: %w", providerPayoutID, err)
		}
		res := &provider.PayoutStatusResult{
			ProviderPayoutID:  providerPayoutID,
			Status:            transferStatus(tr),
			ExternalReference: tr.ID,
		}
		if tr.Reversed {
			res.FailureReason = "transfer reversed"
		}
		return res, nil
	}
	return nil, fmt.Errorf("%s: %w", providerPayoutID, provider.ErrPayoutNotFound)
}

// VerifyWebhookSignature checks a Stripe-Signature header. Freshness is
// enforced by the ingestion timestamp gate, so tolerance is ignored here.
func (s *Provider) VerifyWebhookSignature(signature string, payload []byte) bool {
	if s.cfg.SigningSecret == "" {
		return false
	}
	return webhook.ValidatePayloadIgnoringTolerance(payload, signature, s.cfg.SigningSecret) == nil
}

func transferStatus(tr *stripe.Transfer) provider.PayoutStatus {
	switch {
	case tr.Reversed:
		return provider.PayoutFailed
	case tr.DestinationPayment != nil && tr.DestinationPayment.ID != "":
		return provider.PayoutSucceeded
	default:
		return provider.PayoutPending
	}
}

// MinorUnits converts a two-decimal amount to the integer Stripe expects.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func last4(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}

var _ provider.PayoutProvider = (*Provider)(nil)
