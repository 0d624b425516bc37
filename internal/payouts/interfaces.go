package payouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
)

// Repository defines persistence operations for payout records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.PayoutRecord) (*models.PayoutRecord, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutRecord, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.PayoutRecord, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.PayoutRecord, error)
	SettleScheduled(ctx context.Context, id uuid.UUID, status enums.PayoutStatus, updates map[string]any) (int64, error)
	FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error)
}
