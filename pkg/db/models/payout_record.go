package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/armoryline/armoryline-backend/pkg/enums"
)

// PayoutRecord is the vendor's net proceeds from a released escrow hold.
// Immutable once disbursed.
type PayoutRecord struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID       uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;index"`
	OrderID        uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	EscrowHoldID   uuid.UUID          `gorm:"column:escrow_hold_id;type:uuid;not null"`
	Currency       enums.Currency     `gorm:"column:currency;type:text;not null;default:'USD'"`
	GrossCents     int64              `gorm:"column:gross_cents;not null"`
	CommissionRate string             `gorm:"column:commission_rate;type:numeric(5,4);not null"`
	NetCents       int64              `gorm:"column:net_cents;not null"`
	Status         enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'scheduled'"`
	FailureReason  *string            `gorm:"column:failure_reason"`
	DisbursedAt    *time.Time         `gorm:"column:disbursed_at"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
