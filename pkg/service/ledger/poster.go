// Package ledger posts balanced journal groups and derives wallet balances
// from the entries they leave behind.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/tenant"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Poster writes groups inside the caller's transaction.
type Poster struct {
	tenants tenant.Directory
	now     func() time.Time
	logger  *slog.Logger
}

// NewPoster creates a Poster. Accounts are only created for tenants the
// directory knows.
func NewPoster(tenants tenant.Directory, now func() time.Time, logger *slog.Logger) *Poster {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{tenants: tenants, now: now, logger: logger.With("service", "ledger")}
}

// PostGroup validates and writes a group with its entries, then moves the
// cached wallet balances. A group already posted under the same key is
// returned unchanged.
func (p *Poster) PostGroup(ctx context.Context, uow repository.UnitOfWork, in ledger.GroupInput) (*ledger.Group, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	repo := uow.Ledger()
	existing, err := repo.FindGroupByKey(ctx, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := p.now()
	accounts := map[string]*ledger.Account{}
	for _, l := range in.Lines {
		if _, ok := accounts[l.TenantID]; ok {
			continue
		}
		acct, err := p.ensureAccount(ctx, repo, l.TenantID, l.Currency, now)
		if err != nil {
			return nil, err
		}
		accounts[l.TenantID] = acct
	}

	g := &ledger.Group{
		ID:             uuid.NewString(),
		TenantID:       in.TenantID,
		Type:           in.Type,
		IdempotencyKey: in.IdempotencyKey,
		Description:    in.Description,
		CreatedAt:      now,
		Entries:        make([]ledger.Entry, 0, len(in.Lines)),
	}
	type delta struct{ available, reserved decimal.Decimal }
	deltas := map[string]*delta{}
	for _, l := range in.Lines {
		acct := accounts[l.TenantID]
		g.Entries = append(g.Entries, ledger.Entry{
			ID:              uuid.NewString(),
			GroupID:         g.ID,
			TenantID:        l.TenantID,
			LedgerAccountID: acct.ID,
			AccountType:     l.AccountType,
			Direction:       l.Direction,
			Amount:          l.Amount,
			Currency:        l.Currency,
			RefType:         l.RefType,
			ReferenceID:     l.ReferenceID,
			CreatedAt:       now,
		})
		avail, reserved := ledger.WalletDelta(l)
		d, ok := deltas[acct.ID]
		if !ok {
			d = &delta{available: decimal.Zero, reserved: decimal.Zero}
			deltas[acct.ID] = d
		}
		d.available = d.available.Add(avail)
		d.reserved = d.reserved.Add(reserved)
	}

	if err := repo.InsertGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("insert ledger group %s: %w", in.IdempotencyKey, err)
	}
	for accountID, d := range deltas {
		if d.available.IsZero() && d.reserved.IsZero() {
			continue
		}
		if err := repo.ApplyWalletDelta(ctx, accountID, d.available, d.reserved, now); err != nil {
			return nil, fmt.Errorf("apply wallet delta %s: %w", accountID, err)
		}
	}
	p.logger.Debug("ledger group posted",
		"group_id", g.ID, "type", g.Type, "key", g.IdempotencyKey, "entries", len(g.Entries))
	return g, nil
}

func (p *Poster) ensureAccount(
	ctx context.Context,
	repo repository.LedgerRepository,
	tenantID, currency string,
	now time.Time,
) (*ledger.Account, error) {
	acct, err := repo.FindAccount(ctx, tenantID)
	if err != nil || acct != nil {
		return acct, err
	}
	ok, err := p.tenants.Exists(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant lookup %s: %w", tenantID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTenant, tenantID)
	}
	acct = &ledger.Account{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		Currency:         currency,
		AvailableBalance: decimal.Zero,
		ReservedBalance:  decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := repo.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return repo.FindAccount(ctx, tenantID)
		}
		return nil, err
	}
	return acct, nil
}

// LockedBalances locks the tenant's account row for the rest of the
// transaction and then recomputes its balances, so a check against them
// holds until the debit is posted.
func LockedBalances(ctx context.Context, uow repository.UnitOfWork, tenantID string) (ledger.Balances, error) {
	if _, err := uow.Ledger().LockAccount(ctx, tenantID); err != nil {
		return ledger.Balances{}, err
	}
	return Balances(ctx, uow, tenantID)
}

// Balances recomputes the wallet balances of a tenant from its entries.
func Balances(ctx context.Context, uow repository.UnitOfWork, tenantID string) (ledger.Balances, error) {
	entries, err := uow.Ledger().ListEntries(ctx, repository.EntryFilter{
		TenantID:     tenantID,
		AccountTypes: []ledger.AccountType{ledger.AccountWalletAvailable, ledger.AccountWalletReserved},
	})
	if err != nil {
		return ledger.Balances{}, err
	}
	return SumWallet(entries), nil
}

// SumWallet folds wallet entries into balances; CREDIT adds, DEBIT subtracts.
func SumWallet(entries []ledger.Entry) ledger.Balances {
	b := ledger.Balances{Available: decimal.Zero, Reserved: decimal.Zero}
	for _, e := range entries {
		avail, reserved := ledger.WalletDelta(ledger.Line{
			AccountType: e.AccountType,
			Direction:   e.Direction,
			Amount:      e.Amount,
		})
		b.Available = b.Available.Add(avail)
		b.Reserved = b.Reserved.Add(reserved)
	}
	return b
}

// Wallet is the cached and entry-derived view of one tenant's wallet.
type Wallet struct {
	TenantID  string          `json:"tenantId"`
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	Derived   ledger.Balances `json:"derived"`
}

// WalletOf reads the cached balances and recomputes them from entries. A
// tenant without an account has an empty wallet.
func WalletOf(ctx context.Context, uow repository.UnitOfWork, tenantID string) (*Wallet, error) {
	acct, err := uow.Ledger().FindAccount(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	derived, err := Balances(ctx, uow, tenantID)
	if err != nil {
		return nil, err
	}
	w := &Wallet{TenantID: tenantID, Available: decimal.Zero, Reserved: decimal.Zero, Derived: derived}
	if acct != nil {
		w.Currency = acct.Currency
		w.Available = acct.AvailableBalance
		w.Reserved = acct.ReservedBalance
	}
	return w, nil
}
