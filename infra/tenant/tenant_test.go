package tenant_test

import (
	"context"
	"testing"

	"github.com/amirasaad/settlement/infra/tenant"
	"github.com/amirasaad/settlement/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticFlags(t *testing.T) {
	ctx := context.Background()
	flags := tenant.NewStaticFlags("BOOST_ENABLED", " ")

	on, err := flags.IsFeatureEnabled(ctx, "seller-1", "BOOST_ENABLED")
	require.NoError(t, err)
	assert.True(t, on)

	flags.Set("seller-1", "BOOST_ENABLED", false)
	on, _ = flags.IsFeatureEnabled(ctx, "seller-1", "BOOST_ENABLED")
	assert.False(t, on)
	on, _ = flags.IsFeatureEnabled(ctx, "seller-2", "BOOST_ENABLED")
	assert.True(t, on)
	on, _ = flags.IsFeatureEnabled(ctx, "seller-2", "OTHER")
	assert.False(t, on)
}

func TestDirectory_Exists(t *testing.T) {
	db := testutils.NewTestDB(t, "seller-1")
	dir := tenant.NewDirectory(db, testutils.PlatformTenant)
	ctx := context.Background()

	for id, want := range map[string]bool{
		"seller-1":               true,
		testutils.PlatformTenant: true,
		"ghost":                  false,
		"":                       false,
	} {
		got, err := dir.Exists(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}
}
