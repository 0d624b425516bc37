package enums

import "fmt"

// PayoutStatus tracks a vendor payout record through disbursement.
type PayoutStatus string

const (
	PayoutStatusScheduled PayoutStatus = "scheduled"
	PayoutStatusDisbursed PayoutStatus = "disbursed"
	PayoutStatusFailed    PayoutStatus = "failed"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusScheduled,
	PayoutStatusDisbursed,
	PayoutStatusFailed,
}

// IsValid reports whether the value is a known PayoutStatus.
func (s PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
