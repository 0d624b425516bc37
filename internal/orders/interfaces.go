package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
)

// Repository defines persistence operations for orders and their event log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Order, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Order, error)
	ListByState(ctx context.Context, state enums.OrderState, limit int) ([]models.Order, error)
	UpdateState(ctx context.Context, id uuid.UUID, from, to enums.OrderState, updates map[string]any) (int64, error)
	AppendEvent(ctx context.Context, event *models.OrderEvent) error
	LastEvent(ctx context.Context, orderID uuid.UUID) (*models.OrderEvent, error)
	ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error)
}
