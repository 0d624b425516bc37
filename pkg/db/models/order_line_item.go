package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLineItem snapshots one ordered product at checkout time.
type OrderLineItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	Name           string     `gorm:"column:name;not null"`
	Qty            int        `gorm:"column:qty;not null"`
	UnitPriceCents int64      `gorm:"column:unit_price_cents;not null"`
	SubtotalCents  int64      `gorm:"column:subtotal_cents;not null"`
	ReservationID  *uuid.UUID `gorm:"column:reservation_id;type:uuid"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}
