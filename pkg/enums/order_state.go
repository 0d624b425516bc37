package enums

import "fmt"

// OrderState is the canonical lifecycle state of an order.
type OrderState string

const (
	OrderStateCreated            OrderState = "created"
	OrderStateInventoryReserved  OrderState = "inventory_reserved"
	OrderStateEscrowCaptured     OrderState = "escrow_captured"
	OrderStateCompliancePending  OrderState = "compliance_pending"
	OrderStateComplianceApproved OrderState = "compliance_approved"
	OrderStateTransferAuthorized OrderState = "transfer_authorized"
	OrderStateCompleted          OrderState = "completed"
	OrderStateCancelled          OrderState = "cancelled"
	OrderStateComplianceBlocked  OrderState = "compliance_blocked"
	OrderStateRefunded           OrderState = "refunded"
)

var validOrderStates = []OrderState{
	OrderStateCreated,
	OrderStateInventoryReserved,
	OrderStateEscrowCaptured,
	OrderStateCompliancePending,
	OrderStateComplianceApproved,
	OrderStateTransferAuthorized,
	OrderStateCompleted,
	OrderStateCancelled,
	OrderStateComplianceBlocked,
	OrderStateRefunded,
}

// String implements fmt.Stringer.
func (s OrderState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderState.
func (s OrderState) IsValid() bool {
	for _, candidate := range validOrderStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are accepted from s.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateCompleted, OrderStateCancelled, OrderStateComplianceBlocked, OrderStateRefunded:
		return true
	}
	return false
}

// ParseOrderState converts raw input into an OrderState.
func ParseOrderState(value string) (OrderState, error) {
	for _, candidate := range validOrderStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order state %q", value)
}
