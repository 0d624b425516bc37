package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Omit("Items").Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Order, error) {
	return r.list(ctx, "customer_id = ?", customerID, limit)
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Order, error) {
	return r.list(ctx, "vendor_id = ?", vendorID, limit)
}

func (r *repository) ListByState(ctx context.Context, state enums.OrderState, limit int) ([]models.Order, error) {
	return r.list(ctx, "state = ?", state, limit)
}

func (r *repository) list(ctx context.Context, query string, arg any, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where(query, arg).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// UpdateState is the compare-and-swap at the heart of the machine: the state
// guard in the WHERE clause means a lost race shows up as zero rows affected
// instead of a silently overwritten transition.
func (r *repository) UpdateState(ctx context.Context, id uuid.UUID, from, to enums.OrderState, updates map[string]any) (int64, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["state"] = to
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) AppendEvent(ctx context.Context, event *models.OrderEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) LastEvent(ctx context.Context, orderID uuid.UUID) (*models.OrderEvent, error) {
	var event models.OrderEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("seq DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	var rows []models.OrderEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("seq ASC").
		Find(&rows).Error
	return rows, err
}
