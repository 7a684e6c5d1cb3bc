package initializer

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	infracache "github.com/amirasaad/settlement/infra/cache"
	infraeventbus "github.com/amirasaad/settlement/infra/eventbus"
	"github.com/amirasaad/settlement/infra/provider/mockpayout"
	"github.com/amirasaad/settlement/infra/provider/stripepayout"
	"github.com/amirasaad/settlement/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestInitEventBus_DefaultsToMemory(t *testing.T) {
	bus, err := initEventBus(&config.App{EventBus: &config.EventBus{Driver: ""}}, discard())
	require.NoError(t, err)
	require.IsType(t, &infraeventbus.MemoryEventBus{}, bus)
}

func TestInitEventBus_ExplicitRedisRequiresURL(t *testing.T) {
	_, err := initEventBus(&config.App{
		Redis:    &config.Redis{URL: ""},
		EventBus: &config.EventBus{Driver: "redis", Stream: "s", Group: "g"},
	}, discard())
	require.Error(t, err)
}

func TestInitEventBus_RedisConnectionErrorFallsBackToMemory(t *testing.T) {
	bus, err := initEventBus(&config.App{
		Redis:    &config.Redis{URL: "redis://127.0.0.1:1"},
		EventBus: &config.EventBus{Driver: "redis", Stream: "s", Group: "g"},
	}, discard())
	require.NoError(t, err)
	require.IsType(t, &infraeventbus.MemoryEventBus{}, bus)
}

func TestInitEventBus_ExplicitKafkaRequiresBrokers(t *testing.T) {
	_, err := initEventBus(&config.App{
		Kafka:    &config.Kafka{},
		EventBus: &config.EventBus{Driver: "kafka"},
	}, discard())
	require.Error(t, err)
}

func TestInitEventBus_UnknownDriver(t *testing.T) {
	_, err := initEventBus(&config.App{EventBus: &config.EventBus{Driver: "nats"}}, discard())
	require.ErrorContains(t, err, "nats")
}

func TestInitQuotaCache(t *testing.T) {
	c, err := initQuotaCache(&config.App{Billing: &config.Billing{QuotaCacheTTL: time.Minute}}, discard())
	require.NoError(t, err)
	assert.IsType(t, &infracache.MemoryQuotaCache{}, c)

	_, err = initQuotaCache(&config.App{Billing: &config.Billing{QuotaCacheDriver: "redis"}, Redis: &config.Redis{}}, discard())
	assert.Error(t, err)
}

func TestInitPayoutProvider(t *testing.T) {
	p, err := initPayoutProvider(&config.Provider{Driver: "mock", WebhookSecret: "s"}, discard())
	require.NoError(t, err)
	assert.IsType(t, &mockpayout.Provider{}, p)

	_, err = initPayoutProvider(&config.Provider{Driver: "stripe"}, discard())
	assert.Error(t, err)

	p, err = initPayoutProvider(&config.Provider{Driver: "stripe", Stripe: &config.Stripe{ApiKey: "sk_test_123"}}, discard())
	require.NoError(t, err)
	assert.IsType(t, &stripepayout.Provider{}, p)
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Log{Format: "json", Prefix: "[settlement]"})
	logger.Info("payout finalized", "provider_payout_id", "po-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "payout finalized", line["msg"])
	assert.Equal(t, "po-1", line["provider_payout_id"])
}
