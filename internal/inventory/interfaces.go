package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
)

// Repository defines persistence operations for stock counts and reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindItem(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error)
	ReserveStock(ctx context.Context, productID uuid.UUID, qty int) (int64, error)
	ReleaseStock(ctx context.Context, productID uuid.UUID, qty int) error
	CommitStock(ctx context.Context, productID uuid.UUID, qty int) error
	CreateReservation(ctx context.Context, reservation *models.InventoryReservation) (*models.InventoryReservation, error)
	FindReservationsByOrder(ctx context.Context, orderID uuid.UUID, status enums.ReservationStatus) ([]models.InventoryReservation, error)
	ClearReservationExpiry(ctx context.Context, orderID uuid.UUID) error
	UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) (int64, error)
	FindExpiredActive(ctx context.Context, cutoff time.Time, limit int) ([]models.InventoryReservation, error)
}
