package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/amirasaad/settlement/pkg/domain/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEventBus_DispatchesByType(t *testing.T) {
	bus := NewWithMemory(slog.Default())
	var got []string
	bus.Register(events.EventTypePolicyViolated, func(_ context.Context, e events.Event) error {
		v, ok := events.As[events.PolicyViolated](e)
		require.True(t, ok)
		got = append(got, v.Code)
		return nil
	})
	bus.Register(events.EventTypePolicyViolated, func(context.Context, events.Event) error {
		return errors.New("second handler fails")
	})
	bus.Register(events.EventTypePolicyViolated, func(context.Context, events.Event) error {
		panic("boom")
	})

	require.NoError(t, bus.Emit(context.Background(), events.PolicyViolated{Code: "PAYOUT_PAUSED"}))
	require.NoError(t, bus.Emit(context.Background(), events.PayoutFinalized{ProviderPayoutID: "pp"}))

	assert.Equal(t, []string{"PAYOUT_PAUSED"}, got)
	assert.Len(t, bus.Published(), 2)
	bus.ClearPublished()
	assert.Empty(t, bus.Published())
}

func TestEnvelope_RoundTrip(t *testing.T) {
	raw, err := encodeEnvelope(events.WebhookReplayRejected{ExternalEventID: "abc", EventType: "PAYOUT_FAILED"})
	require.NoError(t, err)

	evt, err := decodeEnvelope(raw)
	require.NoError(t, err)
	v, ok := events.As[events.WebhookReplayRejected](evt)
	require.True(t, ok)
	assert.Equal(t, "abc", v.ExternalEventID)

	_, err = decodeEnvelope([]byte(`{"type":"Nope.Nope","payload":{}}`))
	assert.Error(t, err)
	_, err = decodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "settlement-events:policy:violated",
		channelName("settlement-events", ":", events.EventTypePolicyViolated))
	assert.Equal(t, "settlement.events.integrity.alertraised",
		channelName("settlement.events", ".", events.EventTypeIntegrityAlertRaised))
}
