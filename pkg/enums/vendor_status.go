package enums

import "fmt"

// VendorStatus is the onboarding/review state of a selling party.
type VendorStatus string

const (
	VendorStatusPending     VendorStatus = "pending"
	VendorStatusUnderReview VendorStatus = "under_review"
	VendorStatusApproved    VendorStatus = "approved"
	VendorStatusRejected    VendorStatus = "rejected"
	VendorStatusSuspended   VendorStatus = "suspended"
)

var validVendorStatuses = []VendorStatus{
	VendorStatusPending,
	VendorStatusUnderReview,
	VendorStatusApproved,
	VendorStatusRejected,
	VendorStatusSuspended,
}

// IsValid reports whether the value is a known VendorStatus.
func (s VendorStatus) IsValid() bool {
	for _, candidate := range validVendorStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseVendorStatus converts raw input into a VendorStatus.
func ParseVendorStatus(value string) (VendorStatus, error) {
	for _, candidate := range validVendorStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vendor status %q", value)
}
