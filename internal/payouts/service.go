package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
}

// ScheduleInput describes the released escrow funds to pay out.
type ScheduleInput struct {
	VendorID     uuid.UUID
	OrderID      uuid.UUID
	EscrowHoldID uuid.UUID
	GrossCents   int64
	Currency     enums.Currency
}

// SettleInput is the disbursement callback from the payment rail.
type SettleInput struct {
	PayoutID      uuid.UUID
	Succeeded     bool
	FailureReason *string
}

// Service computes and records vendor payouts from released escrow funds.
type Service interface {
	ScheduleTx(ctx context.Context, tx *gorm.DB, input ScheduleInput) (*models.PayoutRecord, error)
	Settle(ctx context.Context, input SettleInput) (*models.PayoutRecord, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.PayoutRecord, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.PayoutRecord, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService builds the payouts service.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: publisher, logg: logg}, nil
}

func (s *service) ScheduleTx(ctx context.Context, tx *gorm.DB, input ScheduleInput) (*models.PayoutRecord, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.VendorID == uuid.Nil || input.OrderID == uuid.Nil || input.EscrowHoldID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor, order and escrow hold ids required")
	}
	if input.GrossCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gross amount must be positive")
	}
	repo := s.repo.WithTx(tx)

	vendor, err := repo.FindVendor(ctx, input.VendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}

	rate, err := ParseCommissionRate(strings.TrimSpace(vendor.CommissionRate))
	if err != nil {
		return nil, err
	}
	netCents, err := ComputeNetCents(input.GrossCents, rate)
	if err != nil {
		return nil, err
	}

	record := &models.PayoutRecord{
		ID:             uuid.New(),
		VendorID:       input.VendorID,
		OrderID:        input.OrderID,
		EscrowHoldID:   input.EscrowHoldID,
		Currency:       input.Currency,
		GrossCents:     input.GrossCents,
		CommissionRate: rate.String(),
		NetCents:       netCents,
		Status:         enums.PayoutStatusScheduled,
	}
	if _, err := repo.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout record")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"payout_id":   record.ID.String(),
			"vendor_id":   input.VendorID.String(),
			"order_id":    input.OrderID.String(),
			"gross_cents": input.GrossCents,
			"net_cents":   netCents,
		})
		s.logg.Info(logCtx, "payout scheduled")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventPayoutScheduled,
		AggregateType: enums.AggregatePayoutRecord,
		AggregateID:   record.ID,
		Version:       1,
		Data: payloads.PayoutScheduledEvent{
			PayoutID:       record.ID,
			VendorID:       input.VendorID,
			OrderID:        input.OrderID,
			GrossCents:     input.GrossCents,
			CommissionRate: record.CommissionRate,
			NetCents:       netCents,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) Settle(ctx context.Context, input SettleInput) (*models.PayoutRecord, error) {
	if input.PayoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}

	var result *models.PayoutRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		record, err := repo.FindByID(ctx, input.PayoutID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
		}

		status := enums.PayoutStatusDisbursed
		updates := map[string]any{}
		if input.Succeeded {
			updates["disbursed_at"] = time.Now()
		} else {
			status = enums.PayoutStatusFailed
			if input.FailureReason != nil {
				updates["failure_reason"] = *input.FailureReason
			}
		}

		affected, err := repo.SettleScheduled(ctx, record.ID, status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle payout")
		}
		if affected == 0 {
			if record.Status == status {
				result = record
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout already settled")
		}

		result, err = repo.FindByID(ctx, record.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payout")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.PayoutRecord, error) {
	record, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return record, nil
}

func (s *service) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.PayoutRecord, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	rows, err := s.repo.ListByVendor(ctx, vendorID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return rows, nil
}
