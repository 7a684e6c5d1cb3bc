package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/settlement/infra/repository/model"
	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"gorm.io/gorm"
)

type destinationRepository struct {
	db *gorm.DB
}

func (r *destinationRepository) Create(ctx context.Context, d *payout.Destination) error {
	row := model.PayoutDestination{
		ID:                  d.ID,
		TenantID:            d.TenantID,
		IBANMasked:          d.IBANMasked,
		IBANFingerprint:     d.IBANFingerprint,
		HolderNameMasked:    d.HolderNameMasked,
		IBANEncrypted:       d.IBANEncrypted,
		HolderNameEncrypted: d.HolderNameEncrypted,
		IsDefault:           d.IsDefault,
		Status:              string(d.Status),
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
}

func (r *destinationRepository) Get(ctx context.Context, id string) (*payout.Destination, error) {
	var row model.PayoutDestination
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapDestination(&row), nil
}

func (r *destinationRepository) FindByFingerprint(ctx context.Context, tenantID, fingerprint string) (*payout.Destination, error) {
	var row model.PayoutDestination
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND iban_fingerprint = ?", tenantID, fingerprint).
		Take(&row).Error
	found, err := findOne(err)
	if err != nil || !found {
		return nil, err
	}
	return mapDestination(&row), nil
}

func (r *destinationRepository) ListByTenant(ctx context.Context, tenantID string) ([]*payout.Destination, error) {
	var rows []model.PayoutDestination
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).
		Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*payout.Destination, 0, len(rows))
	for i := range rows {
		out = append(out, mapDestination(&rows[i]))
	}
	return out, nil
}

func (r *destinationRepository) UpdateStatus(ctx context.Context, id string, status payout.DestinationStatus, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.PayoutDestination{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": at})
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("destination %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func mapDestination(row *model.PayoutDestination) *payout.Destination {
	return &payout.Destination{
		ID:                  row.ID,
		TenantID:            row.TenantID,
		IBANMasked:          row.IBANMasked,
		IBANFingerprint:     row.IBANFingerprint,
		HolderNameMasked:    row.HolderNameMasked,
		IBANEncrypted:       row.IBANEncrypted,
		HolderNameEncrypted: row.HolderNameEncrypted,
		IsDefault:           row.IsDefault,
		Status:              payout.DestinationStatus(row.Status),
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

type payoutRequestRepository struct {
	db *gorm.DB
}

func (r *payoutRequestRepository) Create(ctx context.Context, req *payout.Request) error {
	row := model.PayoutRequest{
		ID:            req.ID,
		TenantID:      req.TenantID,
		DestinationID: req.DestinationID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Status:        string(req.Status),
		RequestedBy:   req.RequestedBy,
		RequestedAt:   req.RequestedAt,
		UpdatedAt:     req.UpdatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
}

func (r *payoutRequestRepository) Get(ctx context.Context, id string) (*payout.Request, error) {
	var row model.PayoutRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapPayoutRequest(&row), nil
}

func (r *payoutRequestRepository) List(ctx context.Context, tenantID string, status payout.RequestStatus) ([]*payout.Request, error) {
	q := r.db.WithContext(ctx).Order("requested_at DESC")
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var rows []model.PayoutRequest
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*payout.Request, 0, len(rows))
	for i := range rows {
		out = append(out, mapPayoutRequest(&rows[i]))
	}
	return out, nil
}

func mapPayoutRequest(row *model.PayoutRequest) *payout.Request {
	return &payout.Request{
		ID:             row.ID,
		TenantID:       row.TenantID,
		DestinationID:  row.DestinationID,
		Amount:         row.Amount,
		Currency:       row.Currency,
		Status:         payout.RequestStatus(row.Status),
		RequestedBy:    row.RequestedBy,
		ApprovedBy:     row.ApprovedBy,
		FailureCode:    row.FailureCode,
		FailureMessage: row.FailureMessage,
		RequestedAt:    row.RequestedAt,
		ApprovedAt:     row.ApprovedAt,
		RejectedAt:     row.RejectedAt,
		ProcessingAt:   row.ProcessingAt,
		PaidAt:         row.PaidAt,
		FailedAt:       row.FailedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

type profileRepository struct {
	db *gorm.DB
}

func (r *profileRepository) FindByTenant(ctx context.Context, tenantID string) (*payout.SellerPaymentProfile, error) {
	var row model.SellerPaymentProfile
	found, err := findOne(r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Take(&row).Error)
	if err != nil || !found {
		return nil, err
	}
	return &payout.SellerPaymentProfile{
		ID:             row.ID,
		TenantID:       row.TenantID,
		SubMerchantKey: row.SubMerchantKey,
		DestinationID:  row.DestinationID,
		Status:         payout.ProfileStatus(row.Status),
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

func (r *profileRepository) Create(ctx context.Context, p *payout.SellerPaymentProfile) error {
	row := model.SellerPaymentProfile{
		ID:             p.ID,
		TenantID:       p.TenantID,
		SubMerchantKey: p.SubMerchantKey,
		DestinationID:  p.DestinationID,
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
}

func (r *profileRepository) Update(ctx context.Context, p *payout.SellerPaymentProfile) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Model(&model.SellerPaymentProfile{}).
			Where("id = ?", p.ID).
			Updates(map[string]any{
				"sub_merchant_key": p.SubMerchantKey,
				"destination_id":   p.DestinationID,
				"status":           string(p.Status),
				"updated_at":       p.UpdatedAt,
			}).Error
	})
}
