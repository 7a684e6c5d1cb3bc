package payout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextRetry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(2*time.Minute), NextRetry(now, 1))
	assert.Equal(t, now.Add(4*time.Minute), NextRetry(now, 2))
	assert.Equal(t, now.Add(32*time.Minute), NextRetry(now, 5))
	assert.Equal(t, now.Add(time.Minute), NextRetry(now, -3))
}

func TestOutbox_Parked(t *testing.T) {
	o := &Outbox{Status: OutboxFailed, AttemptCount: 5}
	assert.True(t, o.Parked(5))

	o.AttemptCount = 4
	assert.False(t, o.Parked(5))

	o = &Outbox{Status: OutboxPending, AttemptCount: 5}
	assert.False(t, o.Parked(5))
}

func TestDestination_ViewHidesRawValues(t *testing.T) {
	d := &Destination{
		ID:                  "d1",
		TenantID:            "T1",
		IBANMasked:          "TR12 **** **** **** 6789",
		HolderNameMasked:    "A*** Y*****",
		IBANEncrypted:       "00:ff",
		HolderNameEncrypted: "00:ee",
		Status:              DestinationActive,
	}
	v := d.View()
	assert.Equal(t, "TR12 **** **** **** 6789", v.IBAN)
	assert.Equal(t, "A*** Y*****", v.HolderName)
}

func TestSellerPaymentProfile_Active(t *testing.T) {
	var p *SellerPaymentProfile
	assert.False(t, p.Active())
	assert.False(t, (&SellerPaymentProfile{Status: ProfileActive}).Active())
	assert.True(t, (&SellerPaymentProfile{Status: ProfileActive, SubMerchantKey: "sm_1"}).Active())
	assert.False(t, (&SellerPaymentProfile{Status: ProfileInactive, SubMerchantKey: "sm_1"}).Active())
}
