package orders

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/internal/payouts"
	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/logger"
	"github.com/armoryline/armoryline-backend/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

type recordingOutbox struct {
	emitted []outbox.DomainEvent
}

func (f *recordingOutbox) Emit(_ context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		panic("emit without transaction")
	}
	f.emitted = append(f.emitted, event)
	return nil
}

func (f *recordingOutbox) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	for _, existing := range f.emitted {
		if existing.EventType == event.EventType && existing.AggregateID == event.AggregateID {
			return nil
		}
	}
	return f.Emit(ctx, tx, event)
}

func (f *recordingOutbox) count(eventType enums.OutboxEventType) int {
	n := 0
	for _, event := range f.emitted {
		if event.EventType == eventType {
			n++
		}
	}
	return n
}

type fakeInventory struct {
	released  []uuid.UUID
	committed []uuid.UUID
}

func (f *fakeInventory) ReleaseOrderTx(_ context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.InventoryReservation, error) {
	if tx == nil {
		panic("release without transaction")
	}
	f.released = append(f.released, orderID)
	return nil, nil
}

func (f *fakeInventory) CommitOrderTx(_ context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		panic("commit without transaction")
	}
	f.committed = append(f.committed, orderID)
	return nil
}

type fakeEscrow struct {
	hold     *models.EscrowHold
	refunded []uuid.UUID
	released []uuid.UUID
}

func (f *fakeEscrow) ReleaseTx(_ context.Context, tx *gorm.DB, holdID uuid.UUID) (*models.EscrowHold, error) {
	if tx == nil {
		panic("release without transaction")
	}
	f.released = append(f.released, holdID)
	hold := *f.hold
	hold.ReleasedCents = hold.CapturedCents
	hold.State = enums.EscrowHoldStateReleased
	return &hold, nil
}

func (f *fakeEscrow) RefundTx(_ context.Context, tx *gorm.DB, holdID uuid.UUID, amountCents *int64) (*models.EscrowHold, error) {
	if tx == nil {
		panic("refund without transaction")
	}
	if amountCents != nil {
		panic("cancellation must refund the full remaining amount")
	}
	f.refunded = append(f.refunded, holdID)
	hold := *f.hold
	hold.RefundedCents = hold.CapturedCents
	hold.State = enums.EscrowHoldStateRefunded
	return &hold, nil
}

type fakePayouts struct {
	scheduled []payouts.ScheduleInput
}

func (f *fakePayouts) ScheduleTx(_ context.Context, tx *gorm.DB, input payouts.ScheduleInput) (*models.PayoutRecord, error) {
	if tx == nil {
		panic("schedule without transaction")
	}
	f.scheduled = append(f.scheduled, input)
	return &models.PayoutRecord{ID: uuid.New(), OrderID: input.OrderID}, nil
}

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	ddl := []string{`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  state TEXT NOT NULL DEFAULT 'created',
  currency TEXT NOT NULL DEFAULT 'USD',
  total_cents INTEGER NOT NULL,
  shipping_address TEXT,
  escrow_hold_id TEXT,
  compliance_case_id TEXT,
  transfer_confirmation_id TEXT,
  cancelled_at DATETIME,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  subtotal_cents INTEGER NOT NULL,
  reservation_id TEXT,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  from_state TEXT NOT NULL,
  to_state TEXT NOT NULL,
  "trigger" TEXT NOT NULL,
  actor_id TEXT,
  metadata TEXT,
  created_at DATETIME,
  UNIQUE (order_id, seq)
);`}
	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return db
}

type ordersFixture struct {
	svc       Service
	db        *gorm.DB
	publisher *recordingOutbox
	inventory *fakeInventory
	escrow    *fakeEscrow
	payouts   *fakePayouts
}

func newOrdersFixture(t *testing.T) *ordersFixture {
	t.Helper()

	db := setupOrdersTestDB(t)
	publisher := &recordingOutbox{}
	inventory := &fakeInventory{}
	escrow := &fakeEscrow{hold: &models.EscrowHold{
		ID:            uuid.New(),
		CapturedCents: 149900,
		Currency:      enums.CurrencyUSD,
		State:         enums.EscrowHoldStateCaptured,
	}}
	payoutSvc := &fakePayouts{}
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})

	svc, err := NewService(NewRepository(db), gormTxRunner{db: db}, publisher, inventory, escrow, payoutSvc, nil, logg)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return &ordersFixture{
		svc:       svc,
		db:        db,
		publisher: publisher,
		inventory: inventory,
		escrow:    escrow,
		payouts:   payoutSvc,
	}
}

func (f *ordersFixture) insertOrder(t *testing.T, state enums.OrderState, withHold bool) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		VendorID:   uuid.New(),
		State:      state,
		Currency:   enums.CurrencyUSD,
		TotalCents: 149900,
	}
	if withHold {
		order.EscrowHoldID = &f.escrow.hold.ID
	}
	if err := f.db.Omit("Items").Create(order).Error; err != nil {
		t.Fatalf("insert order: %v", err)
	}
	return order
}

func TestCreateTxPersistsOrderAndEmitsEvent(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	ctx := context.Background()
	productID := uuid.New()

	var created *models.Order
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var terr error
		created, terr = f.svc.CreateTx(ctx, tx, &models.Order{
			ID:         uuid.New(),
			CustomerID: uuid.New(),
			VendorID:   uuid.New(),
			Currency:   enums.CurrencyUSD,
			TotalCents: 149900,
		}, []models.OrderLineItem{{
			ID:             uuid.New(),
			ProductID:      productID,
			Name:           "bore snake kit",
			Qty:            2,
			UnitPriceCents: 74950,
			SubtotalCents:  149900,
		}}, nil)
		return terr
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.State != enums.OrderStateCreated {
		t.Fatalf("expected created state, got %s", created.State)
	}

	loaded, err := f.svc.FindByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].ProductID != productID {
		t.Fatalf("line items not persisted: %+v", loaded.Items)
	}
	if f.publisher.count(enums.EventOrderCreated) != 1 {
		t.Fatalf("expected one order created event, got %+v", f.publisher.emitted)
	}
}

func TestAdvanceTxAppendsSequencedEvents(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	ctx := context.Background()
	order := f.insertOrder(t, enums.OrderStateCreated, false)

	triggers := []Trigger{TriggerReserveInventory, TriggerCaptureEscrow, TriggerOpenCompliance}
	for _, trigger := range triggers {
		err := f.db.Transaction(func(tx *gorm.DB) error {
			return f.svc.AdvanceTx(ctx, tx, order, trigger, nil, nil)
		})
		if err != nil {
			t.Fatalf("advance %s: %v", trigger, err)
		}
	}
	if order.State != enums.OrderStateCompliancePending {
		t.Fatalf("expected compliance_pending, got %s", order.State)
	}

	events, err := f.svc.History(ctx, order.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, event := range events {
		if event.Seq != i+1 {
			t.Fatalf("event %d has seq %d", i, event.Seq)
		}
		if event.Trigger != string(triggers[i]) {
			t.Fatalf("event %d trigger %s, want %s", i, event.Trigger, triggers[i])
		}
	}
	if f.publisher.count(enums.EventOrderStateChanged) != 3 {
		t.Fatalf("expected 3 state changed events, got %+v", f.publisher.emitted)
	}
}

func TestAdvanceTxRejectsConcurrentStateChange(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	ctx := context.Background()
	order := f.insertOrder(t, enums.OrderStateCreated, false)

	// Simulate another writer moving the order after this copy was loaded.
	if err := f.db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("state", enums.OrderStateCancelled).Error; err != nil {
		t.Fatalf("move order: %v", err)
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.AdvanceTx(ctx, tx, order, TriggerReserveInventory, nil, nil)
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestAdvanceTxRejectsStateDivergedFromLog(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	ctx := context.Background()
	order := f.insertOrder(t, enums.OrderStateInventoryReserved, false)

	// Log claims the order already reached escrow_captured.
	event := &models.OrderEvent{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Seq:       1,
		FromState: enums.OrderStateInventoryReserved,
		ToState:   enums.OrderStateEscrowCaptured,
		Trigger:   string(TriggerCaptureEscrow),
	}
	if err := f.db.Create(event).Error; err != nil {
		t.Fatalf("insert event: %v", err)
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.AdvanceTx(ctx, tx, order, TriggerCaptureEscrow, nil, nil)
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on log divergence, got %v", err)
	}
}

func TestCancelBeforeCaptureReleasesInventoryOnly(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateInventoryReserved, false)

	cancelled, err := f.svc.Cancel(context.Background(), order.ID, nil, "changed my mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != enums.OrderStateCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.State)
	}
	if cancelled.CancelledAt == nil {
		t.Fatalf("expected cancelled_at set")
	}
	if len(f.inventory.released) != 1 || f.inventory.released[0] != order.ID {
		t.Fatalf("expected inventory release for order, got %+v", f.inventory.released)
	}
	if len(f.escrow.refunded) != 0 {
		t.Fatalf("no escrow hold exists, refunds: %+v", f.escrow.refunded)
	}
	if f.publisher.count(enums.EventOrderCancelled) != 1 {
		t.Fatalf("expected one cancelled event, got %+v", f.publisher.emitted)
	}
}

func TestCancelAfterCaptureRefundsEscrow(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateCompliancePending, true)

	cancelled, err := f.svc.Cancel(context.Background(), order.ID, nil, "")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != enums.OrderStateRefunded {
		t.Fatalf("expected refunded, got %s", cancelled.State)
	}
	if len(f.escrow.refunded) != 1 || f.escrow.refunded[0] != f.escrow.hold.ID {
		t.Fatalf("expected full refund of hold, got %+v", f.escrow.refunded)
	}
	if len(f.inventory.released) != 1 {
		t.Fatalf("expected inventory release, got %+v", f.inventory.released)
	}
}

func TestCancelRejectedAfterComplianceApproval(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateComplianceApproved, true)

	_, err := f.svc.Cancel(context.Background(), order.ID, nil, "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(f.inventory.released) != 0 || len(f.escrow.refunded) != 0 {
		t.Fatalf("rejected cancel must not touch inventory or escrow")
	}
}

func TestCancelRejectedInTerminalState(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateCompleted, true)

	_, err := f.svc.Cancel(context.Background(), order.ID, nil, "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	events, err := f.svc.History(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("rejected transition must not append events, got %+v", events)
	}
}

func TestCancelConflictsWhileTransitionInProgress(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateInventoryReserved, false)

	inner := f.svc.(*service)
	if !inner.locks.acquire(order.ID) {
		t.Fatalf("expected lock acquisition")
	}
	defer inner.locks.release(order.ID)

	_, err := f.svc.Cancel(context.Background(), order.ID, nil, "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict while transition in progress, got %v", err)
	}
}

func TestConfirmTransferStoresConfirmationID(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateComplianceApproved, true)

	updated, err := f.svc.ConfirmTransfer(context.Background(), order.ID, "FFL-2026-0042", nil)
	if err != nil {
		t.Fatalf("confirm transfer: %v", err)
	}
	if updated.State != enums.OrderStateTransferAuthorized {
		t.Fatalf("expected transfer_authorized, got %s", updated.State)
	}

	loaded, err := f.svc.FindByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.TransferConfirmationID == nil || *loaded.TransferConfirmationID != "FFL-2026-0042" {
		t.Fatalf("confirmation id not persisted: %+v", loaded.TransferConfirmationID)
	}
}

func TestConfirmTransferRequiresConfirmationID(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateComplianceApproved, true)

	_, err := f.svc.ConfirmTransfer(context.Background(), order.ID, "", nil)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCompleteReleasesEscrowAndSchedulesPayout(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateTransferAuthorized, true)

	completed, err := f.svc.Complete(context.Background(), order.ID, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.State != enums.OrderStateCompleted {
		t.Fatalf("expected completed, got %s", completed.State)
	}
	if completed.CompletedAt == nil {
		t.Fatalf("expected completed_at set")
	}
	if len(f.escrow.released) != 1 || f.escrow.released[0] != f.escrow.hold.ID {
		t.Fatalf("expected escrow release, got %+v", f.escrow.released)
	}
	if len(f.payouts.scheduled) != 1 {
		t.Fatalf("expected one payout, got %+v", f.payouts.scheduled)
	}
	payout := f.payouts.scheduled[0]
	if payout.VendorID != order.VendorID || payout.OrderID != order.ID {
		t.Fatalf("payout wired to wrong aggregate: %+v", payout)
	}
	if payout.GrossCents != f.escrow.hold.CapturedCents {
		t.Fatalf("payout gross %d, want released amount %d", payout.GrossCents, f.escrow.hold.CapturedCents)
	}
	if f.publisher.count(enums.EventOrderCompleted) != 1 {
		t.Fatalf("expected one completed event, got %+v", f.publisher.emitted)
	}
}

func TestCompleteWithoutEscrowHoldFails(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateTransferAuthorized, false)

	_, err := f.svc.Complete(context.Background(), order.ID, nil)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestApplyComplianceOutcomeSatisfiedAdvances(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateCompliancePending, true)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.ApplyComplianceOutcomeTx(context.Background(), tx, order.ID, enums.ComplianceCaseOutcomeSatisfied)
	})
	if err != nil {
		t.Fatalf("apply outcome: %v", err)
	}

	loaded, err := f.svc.FindByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.State != enums.OrderStateComplianceApproved {
		t.Fatalf("expected compliance_approved, got %s", loaded.State)
	}
	if len(f.inventory.committed) != 1 || f.inventory.committed[0] != order.ID {
		t.Fatalf("approval must commit reservations, got %+v", f.inventory.committed)
	}
	if len(f.escrow.refunded) != 0 || len(f.inventory.released) != 0 {
		t.Fatalf("approval must not unwind the order")
	}
}

func TestApplyComplianceOutcomeBlockedUnwinds(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateCompliancePending, true)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.ApplyComplianceOutcomeTx(context.Background(), tx, order.ID, enums.ComplianceCaseOutcomeBlocked)
	})
	if err != nil {
		t.Fatalf("apply outcome: %v", err)
	}

	loaded, err := f.svc.FindByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.State != enums.OrderStateComplianceBlocked {
		t.Fatalf("expected compliance_blocked, got %s", loaded.State)
	}
	if len(f.inventory.released) != 1 {
		t.Fatalf("expected inventory release on block, got %+v", f.inventory.released)
	}
	if len(f.escrow.refunded) != 1 {
		t.Fatalf("expected escrow refund on block, got %+v", f.escrow.refunded)
	}
}

func TestApplyComplianceOutcomeRejectsOpen(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateCompliancePending, true)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.ApplyComplianceOutcomeTx(context.Background(), tx, order.ID, enums.ComplianceCaseOutcomeOpen)
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSweepCancelTxCancelsReservedOrder(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateInventoryReserved, false)

	var swept bool
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var terr error
		swept, terr = f.svc.SweepCancelTx(context.Background(), tx, order.ID)
		return terr
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !swept {
		t.Fatalf("expected order to be swept")
	}

	loaded, err := f.svc.FindByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.State != enums.OrderStateCancelled {
		t.Fatalf("expected cancelled, got %s", loaded.State)
	}
	if len(f.inventory.released) != 1 {
		t.Fatalf("expected inventory release, got %+v", f.inventory.released)
	}
	if f.publisher.count(enums.EventOrderCancelled) != 1 {
		t.Fatalf("expected cancelled event, got %+v", f.publisher.emitted)
	}
}

func TestSweepCancelTxSkipsAdvancedOrders(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	order := f.insertOrder(t, enums.OrderStateEscrowCaptured, true)

	var swept bool
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var terr error
		swept, terr = f.svc.SweepCancelTx(context.Background(), tx, order.ID)
		return terr
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept {
		t.Fatalf("stale reservation must not cancel an order past capture")
	}
	if len(f.inventory.released) != 0 {
		t.Fatalf("skipped sweep must not release inventory")
	}
}
