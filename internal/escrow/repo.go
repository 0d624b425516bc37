package escrow

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

// NewRepository builds an escrow repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, hold *models.EscrowHold) (*models.EscrowHold, error) {
	if err := r.db.WithContext(ctx).Create(hold).Error; err != nil {
		return nil, err
	}
	return hold, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowHold, error) {
	var hold models.EscrowHold
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&hold).Error
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.EscrowHold, error) {
	var hold models.EscrowHold
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&hold).Error
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

// ApplyRefund adds amountCents to refunded_cents with the cap enforced in the
// WHERE clause. Zero rows affected means the hold is finalized or the amount
// would exceed the remaining balance.
func (r *repository) ApplyRefund(ctx context.Context, id uuid.UUID, amountCents int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.EscrowHold{}).
		Where("id = ? AND state = ? AND captured_cents - released_cents - refunded_cents >= ?",
			id, enums.EscrowHoldStateCaptured, amountCents).
		Update("refunded_cents", gorm.Expr("refunded_cents + ?", amountCents))
	return res.RowsAffected, res.Error
}

// Finalize transitions a captured hold to its terminal state. The state guard
// makes concurrent finalizations lose with zero rows affected.
func (r *repository) Finalize(ctx context.Context, id uuid.UUID, state enums.EscrowHoldState, updates map[string]any) (int64, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["state"] = state
	res := r.db.WithContext(ctx).Model(&models.EscrowHold{}).
		Where("id = ? AND state = ?", id, enums.EscrowHoldStateCaptured).
		Updates(updates)
	return res.RowsAffected, res.Error
}
