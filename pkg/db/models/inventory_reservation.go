package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/armoryline/armoryline-backend/pkg/enums"
)

// InventoryReservation is a temporary per-line claim on stock. Active
// reservations hold ReservedQty on the inventory item until committed
// (permanent deduction) or released (expiry, cancellation, block).
// ExpiresAt is nil once the order's escrow capture is recorded: a funded
// reservation no longer times out and only resolves with the order.
type InventoryReservation struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	OrderID   uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Qty       int                     `gorm:"column:qty;not null"`
	Status    enums.ReservationStatus `gorm:"column:status;type:reservation_status;not null;default:'active'"`
	ExpiresAt *time.Time              `gorm:"column:expires_at"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
