package orders

import (
	"fmt"

	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
)

// Trigger names the cause of a state transition. Triggers appear in the
// order_events audit log and in metrics labels.
type Trigger string

const (
	TriggerReserveInventory   Trigger = "reserve_inventory"
	TriggerCaptureEscrow      Trigger = "capture_escrow"
	TriggerOpenCompliance     Trigger = "open_compliance"
	TriggerComplianceApproved Trigger = "compliance_approved"
	TriggerComplianceBlocked  Trigger = "compliance_blocked"
	TriggerAuthorizeTransfer  Trigger = "authorize_transfer"
	TriggerComplete           Trigger = "complete"
	TriggerCancel             Trigger = "cancel"
	TriggerSweepExpire        Trigger = "sweep_expire"
)

// transitions is the full state machine. Cancellation from escrow_captured
// onward lands in refunded because captured funds must go back to the buyer;
// before capture it lands in cancelled.
var transitions = map[enums.OrderState]map[Trigger]enums.OrderState{
	enums.OrderStateCreated: {
		TriggerReserveInventory: enums.OrderStateInventoryReserved,
		TriggerCancel:           enums.OrderStateCancelled,
	},
	enums.OrderStateInventoryReserved: {
		TriggerCaptureEscrow: enums.OrderStateEscrowCaptured,
		TriggerCancel:        enums.OrderStateCancelled,
		TriggerSweepExpire:   enums.OrderStateCancelled,
	},
	enums.OrderStateEscrowCaptured: {
		TriggerOpenCompliance: enums.OrderStateCompliancePending,
		TriggerCancel:         enums.OrderStateRefunded,
	},
	enums.OrderStateCompliancePending: {
		TriggerComplianceApproved: enums.OrderStateComplianceApproved,
		TriggerComplianceBlocked:  enums.OrderStateComplianceBlocked,
		TriggerCancel:             enums.OrderStateRefunded,
	},
	enums.OrderStateComplianceApproved: {
		TriggerAuthorizeTransfer: enums.OrderStateTransferAuthorized,
	},
	enums.OrderStateTransferAuthorized: {
		TriggerComplete: enums.OrderStateCompleted,
	},
}

// Next resolves the target state for a trigger, or a state-conflict error if
// the machine does not permit it.
func Next(from enums.OrderState, trigger Trigger) (enums.OrderState, error) {
	if from.IsTerminal() {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in terminal state %s accepts no transitions", from))
	}
	row, ok := transitions[from]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("unknown order state %s", from))
	}
	to, ok := row[trigger]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("trigger %s not allowed from state %s", trigger, from))
	}
	return to, nil
}

// CanCancel reports whether a buyer cancellation is still permitted.
func CanCancel(from enums.OrderState) bool {
	row, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = row[TriggerCancel]
	return ok
}
