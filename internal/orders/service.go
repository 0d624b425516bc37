package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/internal/payouts"
	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/logger"
	"github.com/armoryline/armoryline-backend/pkg/metrics"
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

// inventoryManager releases or commits the stock an order has reserved.
type inventoryManager interface {
	ReleaseOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.InventoryReservation, error)
	CommitOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// escrowManager moves the funds held against an order.
type escrowManager interface {
	ReleaseTx(ctx context.Context, tx *gorm.DB, holdID uuid.UUID) (*models.EscrowHold, error)
	RefundTx(ctx context.Context, tx *gorm.DB, holdID uuid.UUID, amountCents *int64) (*models.EscrowHold, error)
}

// payoutScheduler records the vendor payout when escrow is released.
type payoutScheduler interface {
	ScheduleTx(ctx context.Context, tx *gorm.DB, input payouts.ScheduleInput) (*models.PayoutRecord, error)
}

// Service drives the fulfillment state machine. Every accepted transition
// appends an order_events row and emits an order_state_changed outbox event
// in the same transaction.
type Service interface {
	CreateTx(ctx context.Context, tx *gorm.DB, order *models.Order, items []models.OrderLineItem, actor *outbox.ActorRef) (*models.Order, error)
	AdvanceTx(ctx context.Context, tx *gorm.DB, order *models.Order, trigger Trigger, actor *outbox.ActorRef, updates map[string]any) error
	Cancel(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef, reason string) (*models.Order, error)
	ConfirmTransfer(ctx context.Context, orderID uuid.UUID, confirmationID string, actor *outbox.ActorRef) (*models.Order, error)
	Complete(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef) (*models.Order, error)
	ApplyComplianceOutcomeTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, outcome enums.ComplianceCaseOutcome) error
	SweepCancelTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error)
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Order, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Order, error)
	ListByState(ctx context.Context, state enums.OrderState, limit int) ([]models.Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory inventoryManager
	escrow    escrowManager
	payouts   payoutScheduler
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	locks     *orderLocks
}

// NewService builds the orders service.
func NewService(
	repo Repository,
	tx txRunner,
	publisher outboxPublisher,
	inventory inventoryManager,
	escrow escrowManager,
	payoutSvc payoutScheduler,
	orderMetrics *metrics.OrderMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory manager required")
	}
	if escrow == nil {
		return nil, fmt.Errorf("escrow manager required")
	}
	if payoutSvc == nil {
		return nil, fmt.Errorf("payout scheduler required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		outbox:    publisher,
		inventory: inventory,
		escrow:    escrow,
		payouts:   payoutSvc,
		metrics:   orderMetrics,
		logg:      logg,
		locks:     newOrderLocks(),
	}, nil
}

func (s *service) CreateTx(ctx context.Context, tx *gorm.DB, order *models.Order, items []models.OrderLineItem, actor *outbox.ActorRef) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if order == nil || len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order with at least one line item required")
	}
	repo := s.repo.WithTx(tx)

	order.State = enums.OrderStateCreated
	created, err := repo.Create(ctx, order)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	for i := range items {
		items[i].OrderID = created.ID
	}
	if err := repo.CreateLineItems(ctx, items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order line items")
	}
	created.Items = items

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   created.ID,
		Actor:         actor,
		Data: payloads.OrderCreatedEvent{
			OrderID:    created.ID,
			CustomerID: created.CustomerID,
			VendorID:   created.VendorID,
			TotalCents: created.TotalCents,
			Currency:   string(created.Currency),
			ItemCount:  len(items),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created event")
	}

	ctx = s.logg.WithOrderID(ctx, created.ID.String())
	s.logg.Info(ctx, "order created")
	return created, nil
}

// AdvanceTx applies one trigger to the order inside the caller's transaction.
// On success order.State is updated in place.
func (s *service) AdvanceTx(ctx context.Context, tx *gorm.DB, order *models.Order, trigger Trigger, actor *outbox.ActorRef, updates map[string]any) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	return s.transitionTx(ctx, tx, order, trigger, actor, updates, nil)
}

func (s *service) transitionTx(ctx context.Context, tx *gorm.DB, order *models.Order, trigger Trigger, actor *outbox.ActorRef, updates map[string]any, metadata map[string]any) error {
	from := order.State
	to, err := Next(from, trigger)
	if err != nil {
		s.rejectTransition(ctx, order.ID, from, trigger, "invalid_transition", err)
		return err
	}

	repo := s.repo.WithTx(tx)

	// Recovery check: the transition log is the source of truth after a
	// crash. A current state that disagrees with the last logged transition
	// means the row was mutated outside the machine.
	last, err := repo.LastEvent(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load last order event")
	}
	if last != nil && last.ToState != from {
		err := pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order state %s diverged from transition log tail %s", from, last.ToState))
		s.rejectTransition(ctx, order.ID, from, trigger, "log_divergence", err)
		return err
	}
	seq := 1
	if last != nil {
		seq = last.Seq + 1
	}

	affected, err := repo.UpdateState(ctx, order.ID, from, to, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order state")
	}
	if affected == 0 {
		err := pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order left state %s before trigger %s applied", from, trigger))
		s.rejectTransition(ctx, order.ID, from, trigger, "state_changed", err)
		return err
	}
	entry := &models.OrderEvent{
		OrderID:   order.ID,
		Seq:       seq,
		FromState: from,
		ToState:   to,
		Trigger:   string(trigger),
	}
	if actor != nil && actor.UserID != uuid.Nil {
		actorID := actor.UserID
		entry.ActorID = &actorID
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal event metadata")
		}
		entry.Metadata = raw
	}
	if err := repo.AppendEvent(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order event")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderStateChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderStateChangedEvent{
			OrderID:   order.ID,
			FromState: from,
			ToState:   to,
			Trigger:   string(trigger),
			Seq:       seq,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit state changed event")
	}

	order.State = to
	s.metrics.IncTransition(string(from), string(to), string(trigger))
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":   order.ID.String(),
		"from_state": string(from),
		"to_state":   string(to),
		"trigger":    string(trigger),
		"seq":        seq,
	})
	s.logg.Info(ctx, "order transitioned")
	return nil
}

func (s *service) rejectTransition(ctx context.Context, orderID uuid.UUID, from enums.OrderState, trigger Trigger, reason string, err error) {
	s.metrics.IncRejection(string(from), string(trigger), reason)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id": orderID.String(),
		"state":    string(from),
		"trigger":  string(trigger),
		"reason":   reason,
	})
	s.logg.Warn(ctx, "order transition rejected: "+err.Error())
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef, reason string) (*models.Order, error) {
	if !s.locks.acquire(orderID) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order transition already in progress")
	}
	defer s.locks.release(orderID)

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanCancel(order.State) {
		_, err := Next(order.State, TriggerCancel)
		s.rejectTransition(ctx, orderID, order.State, TriggerCancel, "cancel_not_allowed", err)
		return nil, err
	}

	now := time.Now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.unwindTx(ctx, tx, order); err != nil {
			return err
		}
		metadata := map[string]any{}
		if reason != "" {
			metadata["reason"] = reason
		}
		if err := s.transitionTx(ctx, tx, order, TriggerCancel, actor, map[string]any{"cancelled_at": now}, metadata); err != nil {
			return err
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				CustomerID:  order.CustomerID,
				VendorID:    order.VendorID,
				CancelledAt: now,
				Reason:      reason,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	order.CancelledAt = &now
	return order, nil
}

// unwindTx returns reserved stock and refunds any captured funds. Safe to
// call for orders that never reached those stages.
func (s *service) unwindTx(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if _, err := s.inventory.ReleaseOrderTx(ctx, tx, order.ID); err != nil {
		return err
	}
	if order.EscrowHoldID != nil {
		if _, err := s.escrow.RefundTx(ctx, tx, *order.EscrowHoldID, nil); err != nil {
			// A hold already refunded by a concurrent unwind is not an error
			// worth failing the cancellation over.
			if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				return err
			}
		}
	}
	return nil
}

func (s *service) ConfirmTransfer(ctx context.Context, orderID uuid.UUID, confirmationID string, actor *outbox.ActorRef) (*models.Order, error) {
	if confirmationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer confirmation id required")
	}
	if !s.locks.acquire(orderID) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order transition already in progress")
	}
	defer s.locks.release(orderID)

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.transitionTx(ctx, tx, order, TriggerAuthorizeTransfer, actor,
			map[string]any{"transfer_confirmation_id": confirmationID},
			map[string]any{"transfer_confirmation_id": confirmationID})
	})
	if err != nil {
		return nil, err
	}
	order.TransferConfirmationID = &confirmationID
	return order, nil
}

func (s *service) Complete(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef) (*models.Order, error) {
	if !s.locks.acquire(orderID) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order transition already in progress")
	}
	defer s.locks.release(orderID)

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.EscrowHoldID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no escrow hold to release")
	}

	now := time.Now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.transitionTx(ctx, tx, order, TriggerComplete, actor, map[string]any{"completed_at": now}, nil); err != nil {
			return err
		}
		hold, err := s.escrow.ReleaseTx(ctx, tx, *order.EscrowHoldID)
		if err != nil {
			return err
		}
		if _, err := s.payouts.ScheduleTx(ctx, tx, payouts.ScheduleInput{
			VendorID:     order.VendorID,
			OrderID:      order.ID,
			EscrowHoldID: hold.ID,
			GrossCents:   hold.ReleasedCents,
			Currency:     hold.Currency,
		}); err != nil {
			return err
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderCompletedEvent{
				OrderID:     order.ID,
				CustomerID:  order.CustomerID,
				VendorID:    order.VendorID,
				CompletedAt: now,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	order.CompletedAt = &now
	return order, nil
}

// ApplyComplianceOutcomeTx advances or unwinds the order when its compliance
// case reaches a decision. Runs inside the decision's transaction so the case
// outcome and the order state commit together.
func (s *service) ApplyComplianceOutcomeTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, outcome enums.ComplianceCaseOutcome) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	order, err := s.repo.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	switch outcome {
	case enums.ComplianceCaseOutcomeSatisfied:
		// Approval makes the stock deduction permanent; the reservation
		// stops being subject to expiry from here on.
		if err := s.inventory.CommitOrderTx(ctx, tx, order.ID); err != nil {
			return err
		}
		return s.transitionTx(ctx, tx, order, TriggerComplianceApproved, nil, nil, nil)
	case enums.ComplianceCaseOutcomeBlocked:
		if err := s.unwindTx(ctx, tx, order); err != nil {
			return err
		}
		return s.transitionTx(ctx, tx, order, TriggerComplianceBlocked, nil, nil, nil)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("outcome %s is not a decision", outcome))
	}
}

// SweepCancelTx cancels an order whose reservation expired before escrow
// capture. Returns false without error when the order has moved on and the
// expired reservation is stale.
func (s *service) SweepCancelTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	order, err := s.repo.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.State != enums.OrderStateInventoryReserved {
		return false, nil
	}

	if _, err := s.inventory.ReleaseOrderTx(ctx, tx, order.ID); err != nil {
		return false, err
	}
	now := time.Now()
	if err := s.transitionTx(ctx, tx, order, TriggerSweepExpire, nil,
		map[string]any{"cancelled_at": now},
		map[string]any{"reason": "reservation expired"}); err != nil {
		return false, err
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			CustomerID:  order.CustomerID,
			VendorID:    order.VendorID,
			CancelledAt: now,
			Reason:      "reservation expired",
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.loadOrder(ctx, orderID)
}

func (s *service) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Order, error) {
	records, err := s.repo.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders by customer")
	}
	return records, nil
}

func (s *service) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Order, error) {
	records, err := s.repo.ListByVendor(ctx, vendorID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders by vendor")
	}
	return records, nil
}

func (s *service) ListByState(ctx context.Context, state enums.OrderState, limit int) ([]models.Order, error) {
	if !state.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order state")
	}
	records, err := s.repo.ListByState(ctx, state, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders by state")
	}
	return records, nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	events, err := s.repo.ListEvents(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order events")
	}
	return events, nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}
