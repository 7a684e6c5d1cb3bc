package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/settlement/infra/repository/model"
	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledgerRepository struct {
	db *gorm.DB
}

func (r *ledgerRepository) FindAccount(ctx context.Context, tenantID string) (*ledger.Account, error) {
	var row model.LedgerAccount
	found, err := findOne(r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Take(&row).Error)
	if err != nil || !found {
		return nil, err
	}
	return mapAccount(&row), nil
}

func (r *ledgerRepository) LockAccount(ctx context.Context, tenantID string) (*ledger.Account, error) {
	var row model.LedgerAccount
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("tenant_id = ?", tenantID).Take(&row).Error
	found, err := findOne(err)
	if err != nil || !found {
		return nil, err
	}
	return mapAccount(&row), nil
}

func (r *ledgerRepository) CreateAccount(ctx context.Context, acct *ledger.Account) error {
	row := model.LedgerAccount{
		ID:               acct.ID,
		TenantID:         acct.TenantID,
		Currency:         acct.Currency,
		AvailableBalance: acct.AvailableBalance,
		ReservedBalance:  acct.ReservedBalance,
		CreatedAt:        acct.CreatedAt,
		UpdatedAt:        acct.UpdatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
}

func (r *ledgerRepository) ListAccounts(ctx context.Context) ([]*ledger.Account, error) {
	var rows []model.LedgerAccount
	if err := r.db.WithContext(ctx).Order("tenant_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*ledger.Account, 0, len(rows))
	for i := range rows {
		out = append(out, mapAccount(&rows[i]))
	}
	return out, nil
}

func (r *ledgerRepository) ApplyWalletDelta(
	ctx context.Context,
	accountID string,
	available, reserved decimal.Decimal,
	at time.Time,
) error {
	q := r.db.WithContext(ctx).Model(&model.LedgerAccount{}).Where("id = ?", accountID)
	if available.IsNegative() {
		q = q.Where("available_balance >= ?", available.Neg())
	}
	res := q.Updates(map[string]any{
		"available_balance": gorm.Expr("available_balance + ?", available),
		"reserved_balance":  gorm.Expr("reserved_balance + ?", reserved),
		"updated_at":        at.UTC(),
	})
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		if available.IsNegative() {
			return fmt.Errorf("%w: account %s by %s", ledger.ErrWalletOverdrawn, accountID, available.Neg())
		}
		return fmt.Errorf("ledger account %s: %w", accountID, domain.ErrNotFound)
	}
	return nil
}

func (r *ledgerRepository) FindGroupByKey(ctx context.Context, key string) (*ledger.Group, error) {
	var row model.LedgerGroup
	err := r.db.WithContext(ctx).Preload("Entries").
		Where("idempotency_key = ?", key).Take(&row).Error
	found, err := findOne(err)
	if err != nil || !found {
		return nil, err
	}
	return mapGroup(&row), nil
}

func (r *ledgerRepository) InsertGroup(ctx context.Context, g *ledger.Group) error {
	row := model.LedgerGroup{
		ID:             g.ID,
		TenantID:       g.TenantID,
		Type:           string(g.Type),
		IdempotencyKey: g.IdempotencyKey,
		Description:    g.Description,
		CreatedAt:      g.CreatedAt,
	}
	entries := make([]model.LedgerEntry, 0, len(g.Entries))
	for _, e := range g.Entries {
		entries = append(entries, model.LedgerEntry{
			ID:              e.ID,
			GroupID:         g.ID,
			TenantID:        e.TenantID,
			LedgerAccountID: e.LedgerAccountID,
			AccountType:     string(e.AccountType),
			Direction:       string(e.Direction),
			Amount:          e.Amount,
			Currency:        e.Currency,
			RefType:         e.RefType,
			ReferenceID:     e.ReferenceID,
			CreatedAt:       e.CreatedAt,
		})
	}
	return WrapError(func() error {
		db := r.db.WithContext(ctx)
		if err := db.Create(&row).Error; err != nil {
			return err
		}
		return db.Create(&entries).Error
	})
}

func (r *ledgerRepository) ListGroups(ctx context.Context, f repository.GroupFilter) ([]*ledger.Group, error) {
	q := r.db.WithContext(ctx).Preload("Entries").Order("created_at, id")
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}
	if f.KeyPrefix != "" {
		q = q.Where("idempotency_key LIKE ?", f.KeyPrefix+"%")
	}
	if len(f.Keys) > 0 {
		q = q.Where("idempotency_key IN ?", f.Keys)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []model.LedgerGroup
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*ledger.Group, 0, len(rows))
	for i := range rows {
		out = append(out, mapGroup(&rows[i]))
	}
	return out, nil
}

func (r *ledgerRepository) ListEntries(ctx context.Context, f repository.EntryFilter) ([]ledger.Entry, error) {
	q := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Order("created_at, id")
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if len(f.AccountTypes) > 0 {
		types := make([]string, 0, len(f.AccountTypes))
		for _, t := range f.AccountTypes {
			types = append(types, string(t))
		}
		q = q.Where("account_type IN ?", types)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at < ?", f.To)
	}
	var rows []model.LedgerEntry
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.Entry, 0, len(rows))
	for i := range rows {
		out = append(out, mapEntry(&rows[i]))
	}
	return out, nil
}

func mapAccount(row *model.LedgerAccount) *ledger.Account {
	return &ledger.Account{
		ID:               row.ID,
		TenantID:         row.TenantID,
		Currency:         row.Currency,
		AvailableBalance: row.AvailableBalance,
		ReservedBalance:  row.ReservedBalance,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

func mapGroup(row *model.LedgerGroup) *ledger.Group {
	g := &ledger.Group{
		ID:             row.ID,
		TenantID:       row.TenantID,
		Type:           ledger.GroupType(row.Type),
		IdempotencyKey: row.IdempotencyKey,
		Description:    row.Description,
		CreatedAt:      row.CreatedAt,
		Entries:        make([]ledger.Entry, 0, len(row.Entries)),
	}
	for i := range row.Entries {
		g.Entries = append(g.Entries, mapEntry(&row.Entries[i]))
	}
	return g
}

func mapEntry(row *model.LedgerEntry) ledger.Entry {
	return ledger.Entry{
		ID:              row.ID,
		GroupID:         row.GroupID,
		TenantID:        row.TenantID,
		LedgerAccountID: row.LedgerAccountID,
		AccountType:     ledger.AccountType(row.AccountType),
		Direction:       ledger.Direction(row.Direction),
		Amount:          row.Amount,
		Currency:        row.Currency,
		RefType:         row.RefType,
		ReferenceID:     row.ReferenceID,
		CreatedAt:       row.CreatedAt,
	}
}
