package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/armoryline/armoryline-backend/pkg/enums"
)

// EscrowHold is the funds captured for one order. Released + refunded cents
// never exceed captured cents; once State is final no mutation is accepted.
type EscrowHold struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	Currency      enums.Currency        `gorm:"column:currency;type:text;not null;default:'USD'"`
	CapturedCents int64                 `gorm:"column:captured_cents;not null"`
	ReleasedCents int64                 `gorm:"column:released_cents;not null;default:0"`
	RefundedCents int64                 `gorm:"column:refunded_cents;not null;default:0"`
	State         enums.EscrowHoldState `gorm:"column:state;type:escrow_hold_state;not null;default:'captured'"`
	ProcessorRef  *string               `gorm:"column:processor_ref"`
	FinalizedAt   *time.Time            `gorm:"column:finalized_at"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// RemainingCents is the captured amount not yet released or refunded.
func (h EscrowHold) RemainingCents() int64 {
	return h.CapturedCents - h.ReleasedCents - h.RefundedCents
}
