package tenant

import (
	"context"
	"strings"
	"sync"

	"github.com/amirasaad/settlement/infra/repository/model"
	"github.com/amirasaad/settlement/pkg/tenant"
	"gorm.io/gorm"
)

// StaticFlags enables a fixed set of features for every tenant, with
// optional per-tenant overrides.
type StaticFlags struct {
	mu        sync.RWMutex
	enabled   map[string]bool
	overrides map[string]map[string]bool
}

func NewStaticFlags(enabled ...string) *StaticFlags {
	f := &StaticFlags{
		enabled:   make(map[string]bool, len(enabled)),
		overrides: map[string]map[string]bool{},
	}
	for _, k := range enabled {
		if k = strings.TrimSpace(k); k != "" {
			f.enabled[k] = true
		}
	}
	return f
}

// Set overrides key for one tenant.
func (f *StaticFlags) Set(tenantID, key string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overrides[tenantID] == nil {
		f.overrides[tenantID] = map[string]bool{}
	}
	f.overrides[tenantID][key] = on
}

func (f *StaticFlags) IsFeatureEnabled(_ context.Context, tenantID, key string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if on, ok := f.overrides[tenantID][key]; ok {
		return on, nil
	}
	return f.enabled[key], nil
}

// Directory reads the companies table. The platform tenant always exists
// even though it has no company row.
type Directory struct {
	db         *gorm.DB
	platformID string
}

func NewDirectory(db *gorm.DB, platformID string) *Directory {
	return &Directory{db: db, platformID: platformID}
}

func (d *Directory) Exists(ctx context.Context, tenantID string) (bool, error) {
	if tenantID == "" {
		return false, nil
	}
	if tenantID == d.platformID {
		return true, nil
	}
	var n int64
	if err := d.db.WithContext(ctx).Model(&model.Company{}).
		Where("id = ?", tenantID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

var (
	_ tenant.FeatureFlags = (*StaticFlags)(nil)
	_ tenant.Directory    = (*Directory)(nil)
)
