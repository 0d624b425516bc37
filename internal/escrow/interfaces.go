package escrow

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
)

// Repository defines persistence operations for escrow holds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, hold *models.EscrowHold) (*models.EscrowHold, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowHold, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.EscrowHold, error)
	ApplyRefund(ctx context.Context, id uuid.UUID, amountCents int64) (int64, error)
	Finalize(ctx context.Context, id uuid.UUID, state enums.EscrowHoldState, updates map[string]any) (int64, error)
}

// Processor is the external money-movement provider backing each hold.
type Processor interface {
	Capture(ctx context.Context, orderID uuid.UUID, amountCents int64, currency enums.Currency) (string, error)
	Release(ctx context.Context, processorRef string, amountCents int64) error
	Refund(ctx context.Context, processorRef string, amountCents int64) error
}
