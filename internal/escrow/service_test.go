package escrow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/outbox"
)

type fakeProcessor struct {
	captures []int64
	releases []int64
	refunds  []int64
	failNext error
}

func (f *fakeProcessor) Capture(_ context.Context, _ uuid.UUID, amountCents int64, _ enums.Currency) (string, error) {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return "", err
	}
	f.captures = append(f.captures, amountCents)
	return "proc_" + uuid.NewString(), nil
}

func (f *fakeProcessor) Release(_ context.Context, _ string, amountCents int64) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.releases = append(f.releases, amountCents)
	return nil
}

func (f *fakeProcessor) Refund(_ context.Context, _ string, amountCents int64) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.refunds = append(f.refunds, amountCents)
	return nil
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(_ context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		panic("emit without transaction")
	}
	f.events = append(f.events, event)
	return nil
}

func setupEscrowTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:escrow_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	holds := `
CREATE TABLE IF NOT EXISTS escrow_holds (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  captured_cents INTEGER NOT NULL,
  released_cents INTEGER NOT NULL DEFAULT 0,
  refunded_cents INTEGER NOT NULL DEFAULT 0,
  state TEXT NOT NULL DEFAULT 'captured',
  processor_ref TEXT,
  finalized_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	if err := db.Exec(holds).Error; err != nil {
		t.Fatalf("create escrow_holds: %v", err)
	}
	idx := `CREATE UNIQUE INDEX IF NOT EXISTS idx_escrow_holds_order_captured ON escrow_holds (order_id) WHERE state = 'captured';`
	if err := db.Exec(idx).Error; err != nil {
		t.Fatalf("create captured-hold index: %v", err)
	}
	return db
}

func newEscrowService(t *testing.T) (Service, *gorm.DB, *fakeProcessor, *fakeOutbox) {
	t.Helper()
	db := setupEscrowTestDB(t)
	processor := &fakeProcessor{}
	publisher := &fakeOutbox{}
	svc, err := NewService(NewRepository(db), processor, publisher)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, db, processor, publisher
}

// captureAndRecord runs the full two-step capture for tests that only need a
// captured hold to exist.
func captureAndRecord(t *testing.T, svc Service, db *gorm.DB, orderID uuid.UUID, amountCents int64) *models.EscrowHold {
	t.Helper()
	ctx := context.Background()

	capture, err := svc.Capture(ctx, orderID, amountCents, enums.CurrencyUSD)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	var hold *models.EscrowHold
	err = db.Transaction(func(tx *gorm.DB) error {
		var terr error
		hold, terr = svc.RecordCaptureTx(ctx, tx, capture)
		return terr
	})
	if err != nil {
		t.Fatalf("record capture: %v", err)
	}
	return hold
}

func TestCaptureThenRecord(t *testing.T) {
	t.Parallel()

	svc, db, processor, publisher := newEscrowService(t)
	ctx := context.Background()
	orderID := uuid.New()

	capture, err := svc.Capture(ctx, orderID, 149900, enums.CurrencyUSD)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if capture.ProcessorRef == "" {
		t.Fatalf("expected processor reference")
	}
	if len(processor.captures) != 1 || processor.captures[0] != 149900 {
		t.Fatalf("processor not called: %+v", processor.captures)
	}

	var hold *models.EscrowHold
	err = db.Transaction(func(tx *gorm.DB) error {
		var terr error
		hold, terr = svc.RecordCaptureTx(ctx, tx, capture)
		return terr
	})
	if err != nil {
		t.Fatalf("record capture: %v", err)
	}
	if hold.CapturedCents != 149900 || hold.State != enums.EscrowHoldStateCaptured {
		t.Fatalf("unexpected hold %+v", hold)
	}
	if hold.ProcessorRef == nil || *hold.ProcessorRef != capture.ProcessorRef {
		t.Fatalf("hold should carry the capture's processor ref")
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventEscrowCaptured {
		t.Fatalf("expected escrow_captured event, got %+v", publisher.events)
	}
}

func TestCaptureRejectsNonPositiveAmount(t *testing.T) {
	t.Parallel()

	svc, _, processor, _ := newEscrowService(t)

	_, err := svc.Capture(context.Background(), uuid.New(), 0, enums.CurrencyUSD)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(processor.captures) != 0 {
		t.Fatalf("processor must not be called: %+v", processor.captures)
	}
}

func TestVoidCaptureRefundsProcessor(t *testing.T) {
	t.Parallel()

	svc, db, processor, _ := newEscrowService(t)
	ctx := context.Background()
	orderID := uuid.New()

	capture, err := svc.Capture(ctx, orderID, 25000, enums.CurrencyUSD)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	// Recording rolls back: the money already moved externally but no hold
	// row survives, so the caller voids the capture.
	rollback := pkgerrors.New(pkgerrors.CodeInternal, "downstream step failed")
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, terr := svc.RecordCaptureTx(ctx, tx, capture); terr != nil {
			return terr
		}
		return rollback
	})
	if err == nil {
		t.Fatalf("expected transaction to fail")
	}

	if err := svc.VoidCapture(ctx, capture); err != nil {
		t.Fatalf("void capture: %v", err)
	}
	if len(processor.refunds) != 1 || processor.refunds[0] != 25000 {
		t.Fatalf("expected full refund of captured funds, got %+v", processor.refunds)
	}

	var count int64
	if err := db.Model(&models.EscrowHold{}).Where("order_id = ?", orderID).Count(&count).Error; err != nil {
		t.Fatalf("count holds: %v", err)
	}
	if count != 0 {
		t.Fatalf("no hold row should survive the rollback, found %d", count)
	}
}

func TestRecordCaptureTxRejectsSecondCapturedHold(t *testing.T) {
	t.Parallel()

	svc, db, _, _ := newEscrowService(t)
	ctx := context.Background()
	orderID := uuid.New()

	captureAndRecord(t, svc, db, orderID, 9000)

	dup, err := svc.Capture(ctx, orderID, 9000, enums.CurrencyUSD)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		_, terr := svc.RecordCaptureTx(ctx, tx, dup)
		return terr
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict for second captured hold, got %v", err)
	}
}

func TestReleaseTxFinalizesHold(t *testing.T) {
	t.Parallel()

	svc, db, processor, publisher := newEscrowService(t)
	ctx := context.Background()
	orderID := uuid.New()

	hold := captureAndRecord(t, svc, db, orderID, 50000)

	err := db.Transaction(func(tx *gorm.DB) error {
		released, terr := svc.ReleaseTx(ctx, tx, hold.ID)
		if terr != nil {
			return terr
		}
		if released.ReleasedCents != 50000 || released.State != enums.EscrowHoldStateReleased {
			t.Fatalf("unexpected hold after release: %+v", released)
		}
		if released.FinalizedAt == nil {
			t.Fatalf("expected finalized_at set")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(processor.releases) != 1 || processor.releases[0] != 50000 {
		t.Fatalf("processor release not called: %+v", processor.releases)
	}
	if publisher.events[len(publisher.events)-1].EventType != enums.EventEscrowReleased {
		t.Fatalf("expected escrow_released event")
	}

	// Releasing a finalized hold is a state conflict.
	err = db.Transaction(func(tx *gorm.DB) error {
		_, terr := svc.ReleaseTx(ctx, tx, hold.ID)
		return terr
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestRefundTxPartialThenFull(t *testing.T) {
	t.Parallel()

	svc, db, processor, _ := newEscrowService(t)
	ctx := context.Background()
	orderID := uuid.New()

	hold := captureAndRecord(t, svc, db, orderID, 10000)

	partial := int64(3000)
	err := db.Transaction(func(tx *gorm.DB) error {
		refunded, terr := svc.RefundTx(ctx, tx, hold.ID, &partial)
		if terr != nil {
			return terr
		}
		if refunded.RefundedCents != 3000 || refunded.State != enums.EscrowHoldStateCaptured {
			t.Fatalf("unexpected hold after partial refund: %+v", refunded)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}

	// Nil amount refunds the full remaining balance and finalizes.
	err = db.Transaction(func(tx *gorm.DB) error {
		refunded, terr := svc.RefundTx(ctx, tx, hold.ID, nil)
		if terr != nil {
			return terr
		}
		if refunded.RefundedCents != 10000 || refunded.State != enums.EscrowHoldStateRefunded {
			t.Fatalf("unexpected hold after full refund: %+v", refunded)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("full refund: %v", err)
	}
	if len(processor.refunds) != 2 || processor.refunds[1] != 7000 {
		t.Fatalf("unexpected processor refunds: %+v", processor.refunds)
	}

	// Further refunds are rejected.
	err = db.Transaction(func(tx *gorm.DB) error {
		_, terr := svc.RefundTx(ctx, tx, hold.ID, nil)
		return terr
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestRefundTxRejectsExcessAmount(t *testing.T) {
	t.Parallel()

	svc, db, _, _ := newEscrowService(t)
	ctx := context.Background()

	hold := captureAndRecord(t, svc, db, uuid.New(), 5000)

	excess := int64(6000)
	err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := svc.RefundTx(ctx, tx, hold.ID, &excess)
		return terr
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	var reloaded models.EscrowHold
	if err := db.First(&reloaded, "id = ?", hold.ID).Error; err != nil {
		t.Fatalf("reload hold: %v", err)
	}
	if reloaded.RefundedCents != 0 {
		t.Fatalf("refund should not have been applied: %+v", reloaded)
	}
}
