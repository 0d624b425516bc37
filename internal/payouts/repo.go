package payouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payouts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.PayoutRecord) (*models.PayoutRecord, error) {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutRecord, error) {
	var record models.PayoutRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.PayoutRecord, error) {
	var record models.PayoutRecord
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.PayoutRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.PayoutRecord
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// SettleScheduled moves a scheduled payout to disbursed or failed. The guard
// keeps disbursement callbacks idempotent.
func (r *repository) SettleScheduled(ctx context.Context, id uuid.UUID, status enums.PayoutStatus, updates map[string]any) (int64, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = status
	res := r.db.WithContext(ctx).Model(&models.PayoutRecord{}).
		Where("id = ? AND status = ?", id, enums.PayoutStatusScheduled).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	err := r.db.WithContext(ctx).Where("id = ?", vendorID).First(&vendor).Error
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}
