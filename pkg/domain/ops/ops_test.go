package ops

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRoundTrip(t *testing.T) {
	payloads := []Payload{
		Transition{From: "APPROVED", To: "FAILED", Reason: "INSUFFICIENT_FUNDS"},
		PolicyViolation{Code: "PAYOUT_PAUSED", Message: "tenant T1"},
		WebhookReplay{ExternalEventID: "abc", EventType: "PAYOUT_SUCCEEDED"},
	}
	for _, p := range payloads {
		raw, err := EncodePayload(p)
		require.NoError(t, err)
		assert.Equal(t, p, DecodePayload(raw))
	}

	raw, err := EncodePayload(Money{Amount: decimal.RequireFromString("12.5"), Currency: "TRY"})
	require.NoError(t, err)
	m, ok := DecodePayload(raw).(Money)
	require.True(t, ok)
	assert.True(t, m.Amount.Equal(decimal.RequireFromString("12.5")))
}

func TestDecodePayload_FallsBackToUnknown(t *testing.T) {
	p := DecodePayload([]byte(`{"kind":"SOMETHING_NEW","data":{"x":1}}`))
	assert.Equal(t, KindUnknown, p.Kind())

	p = DecodePayload([]byte(`legacy text`))
	assert.Equal(t, KindUnknown, p.Kind())

	assert.Nil(t, DecodePayload(nil))
}
