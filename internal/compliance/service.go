package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/logger"
	"github.com/armoryline/armoryline-backend/pkg/outbox"
	"github.com/armoryline/armoryline-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OrderGate receives the case decision so the owning order can advance or
// unwind in the same transaction.
type OrderGate interface {
	ApplyComplianceOutcomeTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, outcome enums.ComplianceCaseOutcome) error
}

// ResultInput is one screening result reported by the external provider.
type ResultInput struct {
	CaseID uuid.UUID
	Kind   enums.ComplianceCheckKind
	Status enums.ComplianceCheckStatus
}

// Service owns the compliance gating of orders: opening cases, absorbing
// provider results, and deciding case outcomes exactly once.
type Service interface {
	OpenCaseTx(ctx context.Context, tx *gorm.DB, orderID, customerID, vendorID uuid.UUID) (*models.ComplianceCase, error)
	ReportResult(ctx context.Context, input ResultInput) (*models.ComplianceCase, error)
	FindCaseByOrder(ctx context.Context, orderID uuid.UUID) (*models.ComplianceCase, error)
}

type service struct {
	repo          Repository
	tx            txRunner
	outbox        outboxPublisher
	orders        OrderGate
	logg          *logger.Logger
	requiredKinds []enums.ComplianceCheckKind
}

// NewService builds the compliance service. requiredKinds defines the checks
// every new case must pass.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, orders OrderGate, logg *logger.Logger, requiredKinds []string) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("compliance repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order gate required")
	}
	if len(requiredKinds) == 0 {
		return nil, fmt.Errorf("at least one required check kind")
	}
	kinds := make([]enums.ComplianceCheckKind, 0, len(requiredKinds))
	for _, raw := range requiredKinds {
		kind, err := enums.ParseComplianceCheckKind(raw)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return &service{
		repo:          repo,
		tx:            tx,
		outbox:        publisher,
		orders:        orders,
		logg:          logg,
		requiredKinds: kinds,
	}, nil
}

func (s *service) OpenCaseTx(ctx context.Context, tx *gorm.DB, orderID, customerID, vendorID uuid.UUID) (*models.ComplianceCase, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if orderID == uuid.Nil || customerID == uuid.Nil || vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order, customer and vendor ids required")
	}
	repo := s.repo.WithTx(tx)

	c := &models.ComplianceCase{
		ID:         uuid.New(),
		OrderID:    orderID,
		CustomerID: customerID,
		VendorID:   vendorID,
		Outcome:    enums.ComplianceCaseOutcomeOpen,
	}
	if _, err := repo.CreateCase(ctx, c); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create compliance case")
	}

	// The vendor_license check can be settled from the vendor record at open
	// time instead of waiting on the provider, but only while another kind
	// keeps the case open: every decision must flow through ReportResult.
	prePassLicense := len(s.requiredKinds) > 1 && s.vendorLicenseCurrent(ctx, repo, vendorID)

	now := time.Now()
	checks := make([]models.ComplianceCheck, 0, len(s.requiredKinds))
	for _, kind := range s.requiredKinds {
		check := models.ComplianceCheck{
			ID:     uuid.New(),
			CaseID: c.ID,
			Kind:   kind,
			Status: enums.ComplianceCheckStatusPending,
		}
		if kind == enums.ComplianceCheckKindVendorLicense && prePassLicense {
			check.Status = enums.ComplianceCheckStatusPassed
			check.ReportedAt = &now
		}
		checks = append(checks, check)
	}
	if err := repo.CreateChecks(ctx, checks); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create compliance checks")
	}
	c.Checks = checks

	event := outbox.DomainEvent{
		EventType:     enums.EventComplianceCaseOpened,
		AggregateType: enums.AggregateComplianceCase,
		AggregateID:   c.ID,
		Version:       1,
		Data: payloads.ComplianceCaseOpenedEvent{
			CaseID:        c.ID,
			OrderID:       orderID,
			CustomerID:    customerID,
			VendorID:      vendorID,
			RequiredKinds: s.requiredKinds,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	return c, nil
}

// vendorLicenseCurrent reads the vendor's standing at case-open time. Any
// doubt (missing record, load error, lapsed license) leaves the check pending
// for the provider to settle.
func (s *service) vendorLicenseCurrent(ctx context.Context, repo Repository, vendorID uuid.UUID) bool {
	vendor, err := repo.FindVendor(ctx, vendorID)
	if err != nil {
		return false
	}
	if vendor.Status != enums.VendorStatusApproved || vendor.LicenseNumber == "" {
		return false
	}
	return vendor.LicenseExpiresAt != nil && vendor.LicenseExpiresAt.After(time.Now())
}

func (s *service) ReportResult(ctx context.Context, input ResultInput) (*models.ComplianceCase, error) {
	if input.CaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "case id required")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown check kind")
	}
	if !input.Status.IsValid() || input.Status == enums.ComplianceCheckStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reported status must be in_progress, passed or failed")
	}

	var result *models.ComplianceCase
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		check, err := repo.FindCheck(ctx, input.CaseID, input.Kind)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "compliance check not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load compliance check")
		}

		affected, err := repo.AdvanceCheck(ctx, check.ID, input.Status, reportedAtFor(input.Status))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance compliance check")
		}
		if affected == 0 {
			// The check already reached a terminal status. Re-reporting the
			// same result is tolerated; flipping it is not.
			if check.Status == input.Status {
				result, err = repo.FindCaseByID(ctx, input.CaseID)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload case")
				}
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "check result already recorded")
		}

		c, err := repo.FindCaseByID(ctx, input.CaseID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload case")
		}
		result = c

		outcome, decided := evaluate(c.Checks)
		if !decided {
			return nil
		}
		return s.decideTx(ctx, tx, c, outcome)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// decideTx flips the case outcome; the CAS in DecideCase makes the decision
// side effects fire at most once.
func (s *service) decideTx(ctx context.Context, tx *gorm.DB, c *models.ComplianceCase, outcome enums.ComplianceCaseOutcome) error {
	repo := s.repo.WithTx(tx)
	now := time.Now()

	affected, err := repo.DecideCase(ctx, c.ID, outcome, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decide compliance case")
	}
	if affected == 0 {
		return nil
	}
	c.Outcome = outcome
	c.DecidedAt = &now

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"case_id":  c.ID.String(),
			"order_id": c.OrderID.String(),
			"outcome":  outcome,
		})
		s.logg.Info(logCtx, "compliance case decided")
	}

	eventType := enums.EventComplianceCaseSatisfied
	if outcome == enums.ComplianceCaseOutcomeBlocked {
		eventType = enums.EventComplianceCaseBlocked
	}
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateComplianceCase,
		AggregateID:   c.ID,
		Version:       1,
		Data: payloads.ComplianceCaseDecidedEvent{
			CaseID:    c.ID,
			OrderID:   c.OrderID,
			Outcome:   outcome,
			DecidedAt: now,
		},
	}
	if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
		return err
	}

	return s.orders.ApplyComplianceOutcomeTx(ctx, tx, c.OrderID, outcome)
}

func (s *service) FindCaseByOrder(ctx context.Context, orderID uuid.UUID) (*models.ComplianceCase, error) {
	c, err := s.repo.FindCaseByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "compliance case not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load compliance case")
	}
	return c, nil
}

// evaluate derives the case outcome from its checks: one failure blocks the
// case immediately; all terminal passes satisfy it.
func evaluate(checks []models.ComplianceCheck) (enums.ComplianceCaseOutcome, bool) {
	if len(checks) == 0 {
		return enums.ComplianceCaseOutcomeOpen, false
	}
	allPassed := true
	for _, check := range checks {
		switch check.Status {
		case enums.ComplianceCheckStatusFailed:
			return enums.ComplianceCaseOutcomeBlocked, true
		case enums.ComplianceCheckStatusPassed:
		default:
			allPassed = false
		}
	}
	if allPassed {
		return enums.ComplianceCaseOutcomeSatisfied, true
	}
	return enums.ComplianceCaseOutcomeOpen, false
}

func reportedAtFor(status enums.ComplianceCheckStatus) *time.Time {
	if !status.IsTerminal() {
		return nil
	}
	now := time.Now()
	return &now
}
