package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/armoryline/armoryline-backend/pkg/enums"
	"github.com/armoryline/armoryline-backend/pkg/types"
)

// Order is the aggregate root driven by the fulfillment state machine.
// TotalCents is a price snapshot fixed at creation; it never tracks live
// product prices.
type Order struct {
	ID                     uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID             uuid.UUID        `gorm:"column:customer_id;type:uuid;not null"`
	VendorID               uuid.UUID        `gorm:"column:vendor_id;type:uuid;not null"`
	State                  enums.OrderState `gorm:"column:state;type:order_state;not null;default:'created'"`
	Currency               enums.Currency   `gorm:"column:currency;type:text;not null;default:'USD'"`
	TotalCents             int64            `gorm:"column:total_cents;not null"`
	ShippingAddress        *types.Address   `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	EscrowHoldID           *uuid.UUID       `gorm:"column:escrow_hold_id;type:uuid"`
	ComplianceCaseID       *uuid.UUID       `gorm:"column:compliance_case_id;type:uuid"`
	TransferConfirmationID *string          `gorm:"column:transfer_confirmation_id"`
	Items                  []OrderLineItem  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CancelledAt            *time.Time       `gorm:"column:cancelled_at"`
	CompletedAt            *time.Time       `gorm:"column:completed_at"`
	CreatedAt              time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
