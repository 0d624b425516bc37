package checkout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/internal/escrow"
	"github.com/armoryline/armoryline-backend/internal/inventory"
	"github.com/armoryline/armoryline-backend/internal/orders"
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

type fakeCatalog struct {
	products map[uuid.UUID]models.Product
	vendors  map[uuid.UUID]models.Vendor
}

func (f *fakeCatalog) FindByIDs(_ context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) FindVendor(_ context.Context, vendorID uuid.UUID) (*models.Vendor, error) {
	vendor, ok := f.vendors[vendorID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &vendor, nil
}

type fakeWorkflow struct {
	created  *models.Order
	triggers []orders.Trigger
}

func (f *fakeWorkflow) CreateTx(_ context.Context, tx *gorm.DB, order *models.Order, items []models.OrderLineItem, _ *outbox.ActorRef) (*models.Order, error) {
	order.ID = uuid.New()
	order.State = enums.OrderStateCreated
	for i := range items {
		items[i].ID = uuid.New()
		items[i].OrderID = order.ID
	}
	if err := tx.Create(&items).Error; err != nil {
		return nil, err
	}
	order.Items = items
	f.created = order
	return order, nil
}

func (f *fakeWorkflow) AdvanceTx(_ context.Context, tx *gorm.DB, order *models.Order, trigger orders.Trigger, _ *outbox.ActorRef, _ map[string]any) error {
	if tx == nil {
		panic("advance without transaction")
	}
	next, err := orders.Next(order.State, trigger)
	if err != nil {
		return err
	}
	order.State = next
	f.triggers = append(f.triggers, trigger)
	return nil
}

type fakeReserver struct {
	insufficient map[uuid.UUID]bool
	requests     []inventory.ReservationRequest
	ttl          time.Duration
	cleared      []uuid.UUID
}

func (f *fakeReserver) ClearExpiryTx(_ context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		panic("clear expiry without transaction")
	}
	f.cleared = append(f.cleared, orderID)
	return nil
}

func (f *fakeReserver) ReserveTx(_ context.Context, tx *gorm.DB, requests []inventory.ReservationRequest, ttl time.Duration) ([]inventory.ReservationResult, error) {
	if tx == nil {
		panic("reserve without transaction")
	}
	f.requests = requests
	f.ttl = ttl
	results := make([]inventory.ReservationResult, 0, len(requests))
	for _, req := range requests {
		result := inventory.ReservationResult{
			ReservationID: uuid.New(),
			ProductID:     req.ProductID,
			Reserved:      true,
		}
		if f.insufficient[req.ProductID] {
			result.Reserved = false
			result.ReservationID = uuid.Nil
			result.Reason = "insufficient stock"
		}
		results = append(results, result)
	}
	return results, nil
}

type fakeCapturer struct {
	hold        *models.EscrowHold
	captured    []int64
	voided      []*escrow.Capture
	failCapture error
}

func (f *fakeCapturer) Capture(_ context.Context, orderID uuid.UUID, amountCents int64, currency enums.Currency) (*escrow.Capture, error) {
	if f.failCapture != nil {
		return nil, f.failCapture
	}
	f.captured = append(f.captured, amountCents)
	return &escrow.Capture{
		OrderID:      orderID,
		AmountCents:  amountCents,
		Currency:     currency,
		ProcessorRef: "proc_" + uuid.NewString(),
	}, nil
}

func (f *fakeCapturer) RecordCaptureTx(_ context.Context, tx *gorm.DB, capture *escrow.Capture) (*models.EscrowHold, error) {
	if tx == nil {
		panic("record capture without transaction")
	}
	ref := capture.ProcessorRef
	hold := &models.EscrowHold{
		ID:            uuid.New(),
		OrderID:       capture.OrderID,
		CapturedCents: capture.AmountCents,
		Currency:      capture.Currency,
		State:         enums.EscrowHoldStateCaptured,
		ProcessorRef:  &ref,
	}
	f.hold = hold
	return hold, nil
}

func (f *fakeCapturer) VoidCapture(_ context.Context, capture *escrow.Capture) error {
	f.voided = append(f.voided, capture)
	return nil
}

type fakeOpener struct {
	cases    []uuid.UUID
	failNext error
}

func (f *fakeOpener) OpenCaseTx(_ context.Context, tx *gorm.DB, orderID, customerID, vendorID uuid.UUID) (*models.ComplianceCase, error) {
	if tx == nil {
		panic("open case without transaction")
	}
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	f.cases = append(f.cases, orderID)
	return &models.ComplianceCase{
		ID:         uuid.New(),
		OrderID:    orderID,
		CustomerID: customerID,
		VendorID:   vendorID,
		Outcome:    enums.ComplianceCaseOutcomeOpen,
	}, nil
}

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	ddl := `
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
);`
	if err := db.Exec(ddl).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

type checkoutFixture struct {
	svc      Service
	db       *gorm.DB
	catalog  *fakeCatalog
	workflow *fakeWorkflow
	reserver *fakeReserver
	capturer *fakeCapturer
	opener   *fakeOpener
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	db := setupCheckoutTestDB(t)
	catalog := &fakeCatalog{
		products: map[uuid.UUID]models.Product{},
		vendors:  map[uuid.UUID]models.Vendor{},
	}
	workflow := &fakeWorkflow{}
	reserver := &fakeReserver{insufficient: map[uuid.UUID]bool{}}
	capturer := &fakeCapturer{}
	opener := &fakeOpener{}
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard})

	svc, err := NewService(catalog, workflow, reserver, capturer, opener, gormTxRunner{db: db}, logg, 15*time.Minute)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return &checkoutFixture{
		svc:      svc,
		db:       db,
		catalog:  catalog,
		workflow: workflow,
		reserver: reserver,
		capturer: capturer,
		opener:   opener,
	}
}

func (f *checkoutFixture) addVendor(status enums.VendorStatus, licenseExpiry *time.Time) uuid.UUID {
	vendor := models.Vendor{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		BusinessName:     "Frontier Arms Supply",
		LicenseNumber:    "FFL-" + uuid.NewString()[:8],
		LicenseExpiresAt: licenseExpiry,
		Status:           status,
	}
	f.catalog.vendors[vendor.ID] = vendor
	return vendor.ID
}

// addProduct registers the product and, unless the vendor is already known,
// an approved vendor with a current license.
func (f *checkoutFixture) addProduct(vendorID uuid.UUID, priceCents int64) models.Product {
	if _, ok := f.catalog.vendors[vendorID]; !ok {
		expiry := time.Now().Add(365 * 24 * time.Hour)
		f.catalog.vendors[vendorID] = models.Vendor{
			ID:               vendorID,
			UserID:           uuid.New(),
			BusinessName:     "Frontier Arms Supply",
			LicenseNumber:    "FFL-" + uuid.NewString()[:8],
			LicenseExpiresAt: &expiry,
			Status:           enums.VendorStatusApproved,
		}
	}
	product := models.Product{
		ID:         uuid.New(),
		VendorID:   vendorID,
		Name:       "cleaning kit",
		SKU:        uuid.NewString(),
		PriceCents: priceCents,
	}
	f.catalog.products[product.ID] = product
	return product
}

func TestCheckoutHappyPathEndsCompliancePending(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	vendorID := uuid.New()
	pistolCase := f.addProduct(vendorID, 74950)
	solvent := f.addProduct(vendorID, 1200)

	order, err := f.svc.Checkout(context.Background(), Input{
		CustomerID: uuid.New(),
		Items: []CartItem{
			{ProductID: pistolCase.ID, Qty: 2},
			{ProductID: solvent.ID, Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if order.State != enums.OrderStateCompliancePending {
		t.Fatalf("expected compliance_pending, got %s", order.State)
	}
	if want := int64(2*74950 + 1200); order.TotalCents != want {
		t.Fatalf("total %d, want %d", order.TotalCents, want)
	}
	if order.EscrowHoldID == nil || *order.EscrowHoldID != f.capturer.hold.ID {
		t.Fatalf("escrow hold not linked: %+v", order.EscrowHoldID)
	}
	if order.ComplianceCaseID == nil {
		t.Fatalf("compliance case not linked")
	}

	wantTriggers := []orders.Trigger{orders.TriggerReserveInventory, orders.TriggerCaptureEscrow, orders.TriggerOpenCompliance}
	if len(f.workflow.triggers) != len(wantTriggers) {
		t.Fatalf("triggers %v, want %v", f.workflow.triggers, wantTriggers)
	}
	for i, trigger := range wantTriggers {
		if f.workflow.triggers[i] != trigger {
			t.Fatalf("trigger %d = %s, want %s", i, f.workflow.triggers[i], trigger)
		}
	}
	if len(f.capturer.captured) != 1 || f.capturer.captured[0] != order.TotalCents {
		t.Fatalf("captured %v, want full total", f.capturer.captured)
	}
	if f.reserver.ttl != 15*time.Minute {
		t.Fatalf("reservation ttl %s", f.reserver.ttl)
	}
	if len(f.reserver.cleared) != 1 || f.reserver.cleared[0] != order.ID {
		t.Fatalf("reservation expiry not cleared after capture: %v", f.reserver.cleared)
	}

	var linked int64
	if err := f.db.Model(&models.OrderLineItem{}).
		Where("order_id = ? AND reservation_id IS NOT NULL", order.ID).
		Count(&linked).Error; err != nil {
		t.Fatalf("count line items: %v", err)
	}
	if linked != 2 {
		t.Fatalf("expected 2 line items linked to reservations, got %d", linked)
	}
}

func TestCheckoutRejectsMixedVendorCart(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	first := f.addProduct(uuid.New(), 1000)
	second := f.addProduct(uuid.New(), 2000)

	_, err := f.svc.Checkout(context.Background(), Input{
		CustomerID: uuid.New(),
		Items: []CartItem{
			{ProductID: first.ID, Qty: 1},
			{ProductID: second.ID, Qty: 1},
		},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.workflow.created != nil {
		t.Fatalf("mixed cart must not create an order")
	}
}

func TestCheckoutRejectsUnknownProduct(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	_, err := f.svc.Checkout(context.Background(), Input{
		CustomerID: uuid.New(),
		Items:      []CartItem{{ProductID: uuid.New(), Qty: 1}},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCheckoutInsufficientStockRollsBack(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	vendorID := uuid.New()
	inStock := f.addProduct(vendorID, 5000)
	lastUnit := f.addProduct(vendorID, 9000)
	f.reserver.insufficient[lastUnit.ID] = true

	_, err := f.svc.Checkout(context.Background(), Input{
		CustomerID: uuid.New(),
		Items: []CartItem{
			{ProductID: inStock.ID, Qty: 1},
			{ProductID: lastUnit.ID, Qty: 1},
		},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(f.capturer.captured) != 0 {
		t.Fatalf("escrow must not be captured after failed reservation")
	}

	var remaining int64
	if err := f.db.Model(&models.OrderLineItem{}).Count(&remaining).Error; err != nil {
		t.Fatalf("count line items: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected rollback to remove line items, got %d", remaining)
	}
}

func TestCheckoutValidatesInput(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	vendorID := uuid.New()
	product := f.addProduct(vendorID, 1000)

	cases := []Input{
		{CustomerID: uuid.Nil, Items: []CartItem{{ProductID: product.ID, Qty: 1}}},
		{CustomerID: uuid.New()},
		{CustomerID: uuid.New(), Items: []CartItem{{ProductID: product.ID, Qty: 0}}},
		{CustomerID: uuid.New(), Items: []CartItem{
			{ProductID: product.ID, Qty: 1},
			{ProductID: product.ID, Qty: 2},
		}},
	}
	for i, input := range cases {
		if _, err := f.svc.Checkout(context.Background(), input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestCheckoutRejectsVendorNotCleared(t *testing.T) {
	t.Parallel()

	expired := time.Now().Add(-24 * time.Hour)
	current := time.Now().Add(90 * 24 * time.Hour)

	cases := []struct {
		name   string
		status enums.VendorStatus
		expiry *time.Time
		code   pkgerrors.Code
	}{
		{"suspended vendor", enums.VendorStatusSuspended, &current, pkgerrors.CodeForbidden},
		{"pending vendor", enums.VendorStatusPending, &current, pkgerrors.CodeForbidden},
		{"expired license", enums.VendorStatusApproved, &expired, pkgerrors.CodeForbidden},
		{"missing license expiry", enums.VendorStatusApproved, nil, pkgerrors.CodeForbidden},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newCheckoutFixture(t)
			vendorID := f.addVendor(tc.status, tc.expiry)
			product := f.addProduct(vendorID, 3000)

			_, err := f.svc.Checkout(context.Background(), Input{
				CustomerID: uuid.New(),
				Items:      []CartItem{{ProductID: product.ID, Qty: 1}},
			})
			if !pkgerrors.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
			if f.workflow.created != nil {
				t.Fatalf("no order may be created for a vendor that cannot sell")
			}
			if len(f.capturer.captured) != 0 {
				t.Fatalf("no funds may move for a vendor that cannot sell")
			}
		})
	}
}

func TestCheckoutCaptureFailureLeavesOrderReserved(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	product := f.addProduct(uuid.New(), 8000)
	f.capturer.failCapture = pkgerrors.New(pkgerrors.CodeDependency, "processor unavailable")

	_, err := f.svc.Checkout(context.Background(), Input{
		CustomerID: uuid.New(),
		Items:      []CartItem{{ProductID: product.ID, Qty: 1}},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	// The first phase committed: the order sits at inventory_reserved with
	// its reservation TTL intact, left for the expiry sweep.
	if f.workflow.created == nil || f.workflow.created.State != enums.OrderStateInventoryReserved {
		t.Fatalf("order should persist at inventory_reserved, got %+v", f.workflow.created)
	}
	if len(f.reserver.cleared) != 0 {
		t.Fatalf("reservation expiry must stay set when capture fails")
	}
	if len(f.capturer.voided) != 0 {
		t.Fatalf("nothing to void when capture never happened")
	}
}

func TestCheckoutVoidsCaptureWhenRecordingFails(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	product := f.addProduct(uuid.New(), 12000)
	f.opener.failNext = pkgerrors.New(pkgerrors.CodeDependency, "case store unavailable")

	_, err := f.svc.Checkout(context.Background(), Input{
		CustomerID: uuid.New(),
		Items:      []CartItem{{ProductID: product.ID, Qty: 1}},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	// The external capture happened before the failing transaction, so the
	// funds must be returned through the processor.
	if len(f.capturer.captured) != 1 {
		t.Fatalf("expected one external capture, got %d", len(f.capturer.captured))
	}
	if len(f.capturer.voided) != 1 {
		t.Fatalf("captured funds must be voided when recording fails, got %d voids", len(f.capturer.voided))
	}
	if f.capturer.voided[0].ProcessorRef == "" || f.capturer.voided[0].AmountCents != 12000 {
		t.Fatalf("void must target the original capture, got %+v", f.capturer.voided[0])
	}
}
