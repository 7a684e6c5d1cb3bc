package mockpayout

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/amirasaad/settlement/pkg/provider"
)

// Provider simulates a split-payout provider for tests and local runs.
//
// Payouts stay PENDING until SetStatus moves them. Failures can be queued
// with FailNext, and webhooks are signed with HMAC-SHA256 over the raw body
// so Sign produces headers VerifyWebhookSignature accepts.
type Provider struct {
	mu           sync.Mutex
	secret       []byte
	subMerchants map[string]provider.SubMerchantInput
	payouts      map[string]*provider.PayoutStatusResult
	failures     []error
	statusErr    error
	calls        map[string]int
}

func New(secret string) *Provider {
	return &Provider{
		secret:       []byte(secret),
		subMerchants: map[string]provider.SubMerchantInput{},
		payouts:      map[string]*provider.PayoutStatusResult{},
		calls:        map[string]int{},
	}
}

// FailNext makes the next n CreateSplitPayout calls return err.
func (p *Provider) FailNext(n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n; i++ {
		p.failures = append(p.failures, err)
	}
}

// FailStatus makes GetPayoutStatus return err until cleared with nil.
func (p *Provider) FailStatus(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusErr = err
}

// SetStatus moves a payout the provider knows about.
func (p *Provider) SetStatus(providerPayoutID string, status provider.PayoutStatus, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.payouts[providerPayoutID]
	if !ok {
		res = &provider.PayoutStatusResult{ProviderPayoutID: providerPayoutID}
		p.payouts[providerPayoutID] = res
	}
	res.Status = status
	res.FailureReason = reason
}

// Calls returns how often method was invoked.
func (p *Provider) Calls(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

// SubMerchant returns what was registered under key.
func (p *Provider) SubMerchant(key string) (provider.SubMerchantInput, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	in, ok := p.subMerchants[key]
	return in, ok
}

func (p *Provider) CreateSubMerchant(_ context.Context, in provider.SubMerchantInput) (*provider.SubMerchant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["CreateSubMerchant"]++
	key := "sm_" + in.TenantID
	p.subMerchants[key] = in
	return &provider.SubMerchant{Key: key}, nil
}

func (p *Provider) UpdateSubMerchant(_ context.Context, key, iban, holderName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["UpdateSubMerchant"]++
	in, ok := p.subMerchants[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, provider.ErrSubMerchantNotFound)
	}
	in.IBAN = iban
	in.HolderName = holderName
	p.subMerchants[key] = in
	return nil
}

func (p *Provider) CreateSplitPayout(ctx context.Context, in provider.SplitPayoutInput) (*provider.SplitPayoutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["CreateSplitPayout"]++
	if len(p.failures) > 0 {
		err := p.failures[0]
		p.failures = p.failures[1:]
		return nil, err
	}
	if _, ok := p.subMerchants[in.SubMerchantKey]; !ok {
		return nil, fmt.Errorf("%s: %w", in.SubMerchantKey, provider.ErrSubMerchantNotFound)
	}
	res, ok := p.payouts[in.ProviderPayoutID]
	if !ok {
		res = &provider.PayoutStatusResult{
			ProviderPayoutID:  in.ProviderPayoutID,
			Status:            provider.PayoutPending,
			ExternalReference: "mock_tr_" + in.ProviderPayoutID,
		}
		p.payouts[in.ProviderPayoutID] = res
	}
	return &provider.SplitPayoutResult{ExternalReference: res.ExternalReference, Status: res.Status}, nil
}

func (p *Provider) GetPayoutStatus(_ context.Context, providerPayoutID string) (*provider.PayoutStatusResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["GetPayoutStatus"]++
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	res, ok := p.payouts[providerPayoutID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", providerPayoutID, provider.ErrPayoutNotFound)
	}
	out := *res
	return &out, nil
}

// Sign returns the signature header for payload.
func (p *Provider) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (p *Provider) VerifyWebhookSignature(signature string, payload []byte) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hmac.Equal(want, mac.Sum(nil))
}

var _ provider.PayoutProvider = (*Provider)(nil)
