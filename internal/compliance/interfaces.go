package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
)

// Repository defines persistence operations for compliance cases and checks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateCase(ctx context.Context, c *models.ComplianceCase) (*models.ComplianceCase, error)
	CreateChecks(ctx context.Context, checks []models.ComplianceCheck) error
	FindCaseByID(ctx context.Context, id uuid.UUID) (*models.ComplianceCase, error)
	FindCaseByOrder(ctx context.Context, orderID uuid.UUID) (*models.ComplianceCase, error)
	FindCheck(ctx context.Context, caseID uuid.UUID, kind enums.ComplianceCheckKind) (*models.ComplianceCheck, error)
	AdvanceCheck(ctx context.Context, checkID uuid.UUID, status enums.ComplianceCheckStatus, reportedAt *time.Time) (int64, error)
	DecideCase(ctx context.Context, caseID uuid.UUID, outcome enums.ComplianceCaseOutcome, decidedAt time.Time) (int64, error)
	FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error)
}
