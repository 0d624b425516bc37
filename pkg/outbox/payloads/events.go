package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/armoryline/armoryline-backend/pkg/enums"
)

// OrderCreatedEvent signals a newly checked-out order for a single vendor.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	VendorID   uuid.UUID `json:"vendor_id"`
	TotalCents int64     `json:"total_cents"`
	Currency   string    `json:"currency"`
	ItemCount  int       `json:"item_count"`
}

// OrderStateChangedEvent is emitted on every accepted transition.
type OrderStateChangedEvent struct {
	OrderID   uuid.UUID        `json:"order_id"`
	FromState enums.OrderState `json:"from_state"`
	ToState   enums.OrderState `json:"to_state"`
	Trigger   string           `json:"trigger"`
	Seq       int              `json:"seq"`
}

// OrderCancelledEvent is emitted when a buyer or the sweep cancels an order.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	VendorID    uuid.UUID `json:"vendor_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderCompletedEvent is emitted when delivery is confirmed.
type OrderCompletedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	VendorID    uuid.UUID `json:"vendor_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// ComplianceCaseOpenedEvent requests screening results for an order.
type ComplianceCaseOpenedEvent struct {
	CaseID        uuid.UUID                   `json:"case_id"`
	OrderID       uuid.UUID                   `json:"order_id"`
	CustomerID    uuid.UUID                   `json:"customer_id"`
	VendorID      uuid.UUID                   `json:"vendor_id"`
	RequiredKinds []enums.ComplianceCheckKind `json:"required_kinds"`
}

// ComplianceCaseDecidedEvent carries the final case outcome.
type ComplianceCaseDecidedEvent struct {
	CaseID    uuid.UUID                   `json:"case_id"`
	OrderID   uuid.UUID                   `json:"order_id"`
	Outcome   enums.ComplianceCaseOutcome `json:"outcome"`
	DecidedAt time.Time                   `json:"decided_at"`
}

// EscrowMovementEvent describes money captured, released, or refunded on a hold.
type EscrowMovementEvent struct {
	HoldID      uuid.UUID `json:"hold_id"`
	OrderID     uuid.UUID `json:"order_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
}

// PayoutScheduledEvent requests disbursement of a vendor payout.
type PayoutScheduledEvent struct {
	PayoutID       uuid.UUID `json:"payout_id"`
	VendorID       uuid.UUID `json:"vendor_id"`
	OrderID        uuid.UUID `json:"order_id"`
	GrossCents     int64     `json:"gross_cents"`
	CommissionRate string    `json:"commission_rate"`
	NetCents       int64     `json:"net_cents"`
}

// ReservationSweepReleasedEvent reports an order auto-cancelled by the TTL sweep.
type ReservationSweepReleasedEvent struct {
	OrderID        uuid.UUID   `json:"order_id"`
	ReservationIDs []uuid.UUID `json:"reservation_ids"`
	ExpiredAt      time.Time   `json:"expired_at"`
}
