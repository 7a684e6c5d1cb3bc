package cache_test

import (
	"context"
	"testing"
	"time"

	infracache "github.com/amirasaad/settlement/infra/cache"
	"github.com/amirasaad/settlement/pkg/cache"
	"github.com/amirasaad/settlement/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQuotaCache_ExpiresAfterTTL(t *testing.T) {
	clock := testutils.NewClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	c := infracache.NewMemoryQuotaCache(time.Minute, clock.Now)
	ctx := context.Background()

	got, err := c.Get(ctx, "seller-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, "seller-1", &cache.Quota{PeriodKey: "2026-03", Used: 40}))
	got, err = c.Get(ctx, "seller-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(40), got.Used)

	clock.Advance(time.Minute)
	got, err = c.Get(ctx, "seller-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryQuotaCache_Invalidate(t *testing.T) {
	c := infracache.NewMemoryQuotaCache(time.Hour, nil)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "seller-1", &cache.Quota{PeriodKey: "2026-03", Used: 1}))
	require.NoError(t, c.Invalidate(ctx, "seller-1"))

	got, err := c.Get(ctx, "seller-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryQuotaCache_ZeroTTLDisablesCaching(t *testing.T) {
	c := infracache.NewMemoryQuotaCache(0, nil)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "seller-1", &cache.Quota{Used: 1}))
	got, err := c.Get(ctx, "seller-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
