package enums

import "fmt"

// ComplianceCheckKind identifies one of the regulatory checks required before
// goods may transfer.
type ComplianceCheckKind string

const (
	ComplianceCheckKindKYC             ComplianceCheckKind = "kyc"
	ComplianceCheckKindBackgroundCheck ComplianceCheckKind = "background_check"
	ComplianceCheckKindVendorLicense   ComplianceCheckKind = "vendor_license"
)

var validComplianceCheckKinds = []ComplianceCheckKind{
	ComplianceCheckKindKYC,
	ComplianceCheckKindBackgroundCheck,
	ComplianceCheckKindVendorLicense,
}

// IsValid reports whether the value is a known ComplianceCheckKind.
func (k ComplianceCheckKind) IsValid() bool {
	for _, candidate := range validComplianceCheckKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseComplianceCheckKind converts raw input into a ComplianceCheckKind.
func ParseComplianceCheckKind(value string) (ComplianceCheckKind, error) {
	for _, candidate := range validComplianceCheckKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid compliance check kind %q", value)
}

// ComplianceCheckStatus is the per-kind progress of a compliance check.
type ComplianceCheckStatus string

const (
	ComplianceCheckStatusPending    ComplianceCheckStatus = "pending"
	ComplianceCheckStatusInProgress ComplianceCheckStatus = "in_progress"
	ComplianceCheckStatusPassed     ComplianceCheckStatus = "passed"
	ComplianceCheckStatusFailed     ComplianceCheckStatus = "failed"
)

var validComplianceCheckStatuses = []ComplianceCheckStatus{
	ComplianceCheckStatusPending,
	ComplianceCheckStatusInProgress,
	ComplianceCheckStatusPassed,
	ComplianceCheckStatusFailed,
}

// IsValid reports whether the value is a known ComplianceCheckStatus.
func (s ComplianceCheckStatus) IsValid() bool {
	for _, candidate := range validComplianceCheckStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the per-kind status is final.
func (s ComplianceCheckStatus) IsTerminal() bool {
	return s == ComplianceCheckStatusPassed || s == ComplianceCheckStatusFailed
}

// ParseComplianceCheckStatus converts raw input into a ComplianceCheckStatus.
func ParseComplianceCheckStatus(value string) (ComplianceCheckStatus, error) {
	for _, candidate := range validComplianceCheckStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid compliance check status %q", value)
}

// ComplianceCaseOutcome is the case-level aggregation of check results.
type ComplianceCaseOutcome string

const (
	ComplianceCaseOutcomeOpen      ComplianceCaseOutcome = "open"
	ComplianceCaseOutcomeSatisfied ComplianceCaseOutcome = "satisfied"
	ComplianceCaseOutcomeBlocked   ComplianceCaseOutcome = "blocked"
)

var validComplianceCaseOutcomes = []ComplianceCaseOutcome{
	ComplianceCaseOutcomeOpen,
	ComplianceCaseOutcomeSatisfied,
	ComplianceCaseOutcomeBlocked,
}

// IsValid reports whether the value is a known ComplianceCaseOutcome.
func (o ComplianceCaseOutcome) IsValid() bool {
	for _, candidate := range validComplianceCaseOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsFinal reports whether the case is immutable.
func (o ComplianceCaseOutcome) IsFinal() bool {
	return o == ComplianceCaseOutcomeSatisfied || o == ComplianceCaseOutcomeBlocked
}
