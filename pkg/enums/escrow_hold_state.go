package enums

import "fmt"

// EscrowHoldState tracks the lifecycle of captured funds.
type EscrowHoldState string

const (
	EscrowHoldStateCaptured EscrowHoldState = "captured"
	EscrowHoldStateReleased EscrowHoldState = "released"
	EscrowHoldStateRefunded EscrowHoldState = "refunded"
)

var validEscrowHoldStates = []EscrowHoldState{
	EscrowHoldStateCaptured,
	EscrowHoldStateReleased,
	EscrowHoldStateRefunded,
}

// IsValid reports whether the value is a known EscrowHoldState.
func (s EscrowHoldState) IsValid() bool {
	for _, candidate := range validEscrowHoldStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsFinal reports whether the hold accepts no further mutation.
func (s EscrowHoldState) IsFinal() bool {
	return s == EscrowHoldStateReleased || s == EscrowHoldStateRefunded
}

// ParseEscrowHoldState converts raw input into an EscrowHoldState.
func ParseEscrowHoldState(value string) (EscrowHoldState, error) {
	for _, candidate := range validEscrowHoldStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid escrow hold state %q", value)
}
