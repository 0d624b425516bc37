package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder          OutboxAggregateType = "order"
	AggregateComplianceCase OutboxAggregateType = "compliance_case"
	AggregateEscrowHold     OutboxAggregateType = "escrow_hold"
	AggregatePayoutRecord   OutboxAggregateType = "payout_record"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateComplianceCase,
	AggregateEscrowHold,
	AggregatePayoutRecord,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated             OutboxEventType = "order_created"
	EventOrderStateChanged        OutboxEventType = "order_state_changed"
	EventOrderCancelled           OutboxEventType = "order_cancelled"
	EventOrderCompleted           OutboxEventType = "order_completed"
	EventComplianceCaseOpened     OutboxEventType = "compliance_case_opened"
	EventComplianceCaseSatisfied  OutboxEventType = "compliance_case_satisfied"
	EventComplianceCaseBlocked    OutboxEventType = "compliance_case_blocked"
	EventEscrowCaptured           OutboxEventType = "escrow_captured"
	EventEscrowReleased           OutboxEventType = "escrow_released"
	EventEscrowRefunded           OutboxEventType = "escrow_refunded"
	EventPayoutScheduled          OutboxEventType = "payout_scheduled"
	EventReservationSweepReleased OutboxEventType = "reservation_sweep_released"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStateChanged,
	EventOrderCancelled,
	EventOrderCompleted,
	EventComplianceCaseOpened,
	EventComplianceCaseSatisfied,
	EventComplianceCaseBlocked,
	EventEscrowCaptured,
	EventEscrowReleased,
	EventEscrowRefunded,
	EventPayoutScheduled,
	EventReservationSweepReleased,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
