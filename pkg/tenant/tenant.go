// Package tenant declares the collaborators the settlement engine consumes
// from tenant management.
package tenant

import "context"

// FeatureFlags answers per-tenant feature toggles.
type FeatureFlags interface {
	IsFeatureEnabled(ctx context.Context, tenantID, key string) (bool, error)
}

// Directory resolves whether a tenant exists.
type Directory interface {
	Exists(ctx context.Context, tenantID string) (bool, error)
}
