package models

import (
	"time"

	"github.com/google/uuid"
)

// Product carries the pricing/vendor data checkout snapshots. Catalog
// management itself lives outside this service.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID   uuid.UUID `gorm:"column:vendor_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	SKU        string    `gorm:"column:sku;not null;uniqueIndex"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
