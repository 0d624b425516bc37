package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/armoryline/armoryline-backend/pkg/enums"
)

// ComplianceCase aggregates the regulatory checks required before an order's
// goods may transfer. Owned by the compliance subsystem; survives the order
// for audit.
type ComplianceCase struct {
	ID         uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID                   `gorm:"column:order_id;type:uuid;not null;index"`
	CustomerID uuid.UUID                   `gorm:"column:customer_id;type:uuid;not null"`
	VendorID   uuid.UUID                   `gorm:"column:vendor_id;type:uuid;not null"`
	Outcome    enums.ComplianceCaseOutcome `gorm:"column:outcome;type:compliance_case_outcome;not null;default:'open'"`
	Checks     []ComplianceCheck           `gorm:"foreignKey:CaseID;constraint:OnDelete:CASCADE"`
	DecidedAt  *time.Time                  `gorm:"column:decided_at"`
	CreatedAt  time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

// ComplianceCheck is one required check kind and its latest reported status.
type ComplianceCheck struct {
	ID         uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CaseID     uuid.UUID                   `gorm:"column:case_id;type:uuid;not null;index:idx_compliance_checks_case_kind,unique,priority:1"`
	Kind       enums.ComplianceCheckKind   `gorm:"column:kind;type:compliance_check_kind;not null;index:idx_compliance_checks_case_kind,unique,priority:2"`
	Status     enums.ComplianceCheckStatus `gorm:"column:status;type:compliance_check_status;not null;default:'pending'"`
	ReportedAt *time.Time                  `gorm:"column:reported_at"`
	CreatedAt  time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}
