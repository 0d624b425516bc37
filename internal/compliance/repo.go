package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a compliance repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateCase(ctx context.Context, c *models.ComplianceCase) (*models.ComplianceCase, error) {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (r *repository) CreateChecks(ctx context.Context, checks []models.ComplianceCheck) error {
	if len(checks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&checks).Error
}

func (r *repository) FindCaseByID(ctx context.Context, id uuid.UUID) (*models.ComplianceCase, error) {
	var c models.ComplianceCase
	err := r.db.WithContext(ctx).
		Preload("Checks").
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) FindCaseByOrder(ctx context.Context, orderID uuid.UUID) (*models.ComplianceCase, error) {
	var c models.ComplianceCase
	err := r.db.WithContext(ctx).
		Preload("Checks").
		Where("order_id = ?", orderID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) FindCheck(ctx context.Context, caseID uuid.UUID, kind enums.ComplianceCheckKind) (*models.ComplianceCheck, error) {
	var check models.ComplianceCheck
	err := r.db.WithContext(ctx).
		Where("case_id = ? AND kind = ?", caseID, kind).
		First(&check).Error
	if err != nil {
		return nil, err
	}
	return &check, nil
}

// AdvanceCheck moves a check forward only while it is non-terminal. Zero rows
// affected means the check already reached passed or failed.
func (r *repository) AdvanceCheck(ctx context.Context, checkID uuid.UUID, status enums.ComplianceCheckStatus, reportedAt *time.Time) (int64, error) {
	updates := map[string]any{"status": status}
	if reportedAt != nil {
		updates["reported_at"] = *reportedAt
	}
	res := r.db.WithContext(ctx).Model(&models.ComplianceCheck{}).
		Where("id = ? AND status IN ?", checkID, []enums.ComplianceCheckStatus{
			enums.ComplianceCheckStatusPending,
			enums.ComplianceCheckStatusInProgress,
		}).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	err := r.db.WithContext(ctx).Where("id = ?", vendorID).First(&vendor).Error
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

// DecideCase flips an open case to its final outcome. The guard guarantees the
// decision fires exactly once no matter how many result reports race.
func (r *repository) DecideCase(ctx context.Context, caseID uuid.UUID, outcome enums.ComplianceCaseOutcome, decidedAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.ComplianceCase{}).
		Where("id = ? AND outcome = ?", caseID, enums.ComplianceCaseOutcomeOpen).
		Updates(map[string]any{
			"outcome":    outcome,
			"decided_at": decidedAt,
		})
	return res.RowsAffected, res.Error
}
