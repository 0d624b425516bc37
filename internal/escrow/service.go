package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db"
	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/outbox"
	"github.com/armoryline/armoryline-backend/pkg/outbox/payloads"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Capture is an external funds capture that has not yet been recorded
// locally. It carries what RecordCaptureTx needs to write the hold row and
// what VoidCapture needs to return the money if recording fails.
type Capture struct {
	OrderID      uuid.UUID
	AmountCents  int64
	Currency     enums.Currency
	ProcessorRef string
}

// Service manages the funds held against an order. Capture talks to the
// payment processor and must run OUTSIDE any database transaction; the
// remaining mutating operations run inside a caller-supplied transaction so
// order state and money movement commit together. A Capture whose
// RecordCaptureTx transaction fails must be handed to VoidCapture.
type Service interface {
	Capture(ctx context.Context, orderID uuid.UUID, amountCents int64, currency enums.Currency) (*Capture, error)
	RecordCaptureTx(ctx context.Context, tx *gorm.DB, capture *Capture) (*models.EscrowHold, error)
	VoidCapture(ctx context.Context, capture *Capture) error
	ReleaseTx(ctx context.Context, tx *gorm.DB, holdID uuid.UUID) (*models.EscrowHold, error)
	RefundTx(ctx context.Context, tx *gorm.DB, holdID uuid.UUID, amountCents *int64) (*models.EscrowHold, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.EscrowHold, error)
}

type service struct {
	repo      Repository
	processor Processor
	outbox    outboxPublisher
}

// NewService builds the escrow service.
func NewService(repo Repository, processor Processor, publisher outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if processor == nil {
		return nil, fmt.Errorf("escrow processor required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, processor: processor, outbox: publisher}, nil
}

func (s *service) Capture(ctx context.Context, orderID uuid.UUID, amountCents int64, currency enums.Currency) (*Capture, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "capture amount must be positive")
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	ref, err := s.processor.Capture(ctx, orderID, amountCents, currency)
	if err != nil {
		return nil, err
	}
	return &Capture{
		OrderID:      orderID,
		AmountCents:  amountCents,
		Currency:     currency,
		ProcessorRef: ref,
	}, nil
}

func (s *service) RecordCaptureTx(ctx context.Context, tx *gorm.DB, capture *Capture) (*models.EscrowHold, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if capture == nil || capture.ProcessorRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "capture with processor reference required")
	}

	ref := capture.ProcessorRef
	hold := &models.EscrowHold{
		ID:            uuid.New(),
		OrderID:       capture.OrderID,
		Currency:      capture.Currency,
		CapturedCents: capture.AmountCents,
		State:         enums.EscrowHoldStateCaptured,
		ProcessorRef:  &ref,
	}
	if _, err := s.repo.WithTx(tx).Create(ctx, hold); err != nil {
		// Only the partial index on (order_id) WHERE state = 'captured' can
		// trip here.
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has a captured hold")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create escrow hold")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventEscrowCaptured,
		AggregateType: enums.AggregateEscrowHold,
		AggregateID:   hold.ID,
		Version:       1,
		Data: payloads.EscrowMovementEvent{
			HoldID:      hold.ID,
			OrderID:     capture.OrderID,
			AmountCents: capture.AmountCents,
			Currency:    string(capture.Currency),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	return hold, nil
}

// VoidCapture returns captured funds when no hold row made it to the
// database. The processor ref is the only durable trace, so a failed void is
// surfaced to the caller for logging rather than retried here.
func (s *service) VoidCapture(ctx context.Context, capture *Capture) error {
	if capture == nil || capture.ProcessorRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "capture with processor reference required")
	}
	if err := s.processor.Refund(ctx, capture.ProcessorRef, capture.AmountCents); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "void captured funds")
	}
	return nil
}

func (s *service) ReleaseTx(ctx context.Context, tx *gorm.DB, holdID uuid.UUID) (*models.EscrowHold, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	hold, err := repo.FindByID(ctx, holdID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow hold not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow hold")
	}
	if hold.State.IsFinal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "escrow hold already finalized")
	}

	remaining := hold.RemainingCents()
	if remaining <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no funds remaining to release")
	}

	now := time.Now()
	affected, err := repo.Finalize(ctx, hold.ID, enums.EscrowHoldStateReleased, map[string]any{
		"released_cents": gorm.Expr("released_cents + ?", remaining),
		"finalized_at":   now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize escrow hold")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "escrow hold already finalized")
	}

	if hold.ProcessorRef != nil {
		if err := s.processor.Release(ctx, *hold.ProcessorRef, remaining); err != nil {
			return nil, err
		}
	}

	hold.ReleasedCents += remaining
	hold.State = enums.EscrowHoldStateReleased
	hold.FinalizedAt = &now

	event := outbox.DomainEvent{
		EventType:     enums.EventEscrowReleased,
		AggregateType: enums.AggregateEscrowHold,
		AggregateID:   hold.ID,
		Version:       1,
		Data: payloads.EscrowMovementEvent{
			HoldID:      hold.ID,
			OrderID:     hold.OrderID,
			AmountCents: remaining,
			Currency:    string(hold.Currency),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	return hold, nil
}

func (s *service) RefundTx(ctx context.Context, tx *gorm.DB, holdID uuid.UUID, amountCents *int64) (*models.EscrowHold, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	hold, err := repo.FindByID(ctx, holdID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow hold not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow hold")
	}
	if hold.State.IsFinal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "escrow hold already finalized")
	}

	remaining := hold.RemainingCents()
	amount := remaining
	if amountCents != nil {
		amount = *amountCents
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if amount > remaining {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds remaining balance")
	}

	affected, err := repo.ApplyRefund(ctx, hold.ID, amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply refund")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "escrow hold already finalized")
	}
	hold.RefundedCents += amount

	// A refund that exhausts the hold finalizes it.
	if hold.RemainingCents() == 0 {
		now := time.Now()
		affected, err := repo.Finalize(ctx, hold.ID, enums.EscrowHoldStateRefunded, map[string]any{
			"finalized_at": now,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize refunded hold")
		}
		if affected == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "escrow hold already finalized")
		}
		hold.State = enums.EscrowHoldStateRefunded
		hold.FinalizedAt = &now
	}

	if hold.ProcessorRef != nil {
		if err := s.processor.Refund(ctx, *hold.ProcessorRef, amount); err != nil {
			return nil, err
		}
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventEscrowRefunded,
		AggregateType: enums.AggregateEscrowHold,
		AggregateID:   hold.ID,
		Version:       1,
		Data: payloads.EscrowMovementEvent{
			HoldID:      hold.ID,
			OrderID:     hold.OrderID,
			AmountCents: amount,
			Currency:    string(hold.Currency),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	return hold, nil
}

func (s *service) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.EscrowHold, error) {
	hold, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow hold not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow hold")
	}
	return hold, nil
}
