package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/api/middleware"
	"github.com/armoryline/armoryline-backend/internal/orders"
	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/outbox"
)

type stubOrdersService struct {
	order        *models.Order
	events       []models.OrderEvent
	cancelReason string
	cancelled    bool
	listedState  enums.OrderState
}

func (s *stubOrdersService) CreateTx(context.Context, *gorm.DB, *models.Order, []models.OrderLineItem, *outbox.ActorRef) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (s *stubOrdersService) AdvanceTx(context.Context, *gorm.DB, *models.Order, orders.Trigger, *outbox.ActorRef, map[string]any) error {
	return pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (s *stubOrdersService) Cancel(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef, reason string) (*models.Order, error) {
	s.cancelled = true
	s.cancelReason = reason
	return s.order, nil
}

func (s *stubOrdersService) ConfirmTransfer(ctx context.Context, orderID uuid.UUID, confirmationID string, actor *outbox.ActorRef) (*models.Order, error) {
	return s.order, nil
}

func (s *stubOrdersService) Complete(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef) (*models.Order, error) {
	return s.order, nil
}

func (s *stubOrdersService) ApplyComplianceOutcomeTx(context.Context, *gorm.DB, uuid.UUID, enums.ComplianceCaseOutcome) error {
	return pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (s *stubOrdersService) SweepCancelTx(context.Context, *gorm.DB, uuid.UUID) (bool, error) {
	return false, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (s *stubOrdersService) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.order, nil
}

func (s *stubOrdersService) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Order, error) {
	if s.order == nil {
		return nil, nil
	}
	return []models.Order{*s.order}, nil
}

func (s *stubOrdersService) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Order, error) {
	if s.order == nil {
		return nil, nil
	}
	return []models.Order{*s.order}, nil
}

func (s *stubOrdersService) ListByState(ctx context.Context, state enums.OrderState, limit int) ([]models.Order, error) {
	s.listedState = state
	if s.order == nil || s.order.State != state {
		return nil, nil
	}
	return []models.Order{*s.order}, nil
}

func (s *stubOrdersService) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	return s.events, nil
}

func withOrderParam(req *http.Request, orderID uuid.UUID) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("orderId", orderID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestGetOrderForbiddenForOtherCustomer(t *testing.T) {
	t.Parallel()

	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		VendorID:   uuid.New(),
		State:      enums.OrderStateCreated,
	}
	svc := &stubOrdersService{order: order}

	req := authedRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), "", uuid.New(), enums.RoleCustomer)
	req = withOrderParam(req, order.ID)
	recorder := httptest.NewRecorder()

	GetOrder(svc, nil)(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
}

func TestGetOrderAdminSeesAnyOrder(t *testing.T) {
	t.Parallel()

	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		VendorID:   uuid.New(),
		State:      enums.OrderStateEscrowCaptured,
	}
	svc := &stubOrdersService{order: order}

	req := authedRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), "", uuid.New(), enums.RoleAdmin)
	req = withOrderParam(req, order.ID)
	recorder := httptest.NewRecorder()

	GetOrder(svc, nil)(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
}

func TestListOrdersByStateFiltersOnStateParam(t *testing.T) {
	t.Parallel()

	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		VendorID:   uuid.New(),
		State:      enums.OrderStateCompliancePending,
	}
	svc := &stubOrdersService{order: order}

	req := authedRequest(http.MethodGet, "/api/admin/v1/orders?state=compliance_pending", "", uuid.New(), enums.RoleAdmin)
	recorder := httptest.NewRecorder()

	ListOrdersByState(svc, nil)(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
	if svc.listedState != enums.OrderStateCompliancePending {
		t.Fatalf("service asked for state %s", svc.listedState)
	}

	var envelope struct {
		Data []orderResponse `json:"data"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data) != 1 || envelope.Data[0].OrderID != order.ID.String() {
		t.Fatalf("unexpected listing: %+v", envelope.Data)
	}
}

func TestListOrdersByStateRejectsUnknownState(t *testing.T) {
	t.Parallel()

	svc := &stubOrdersService{}

	req := authedRequest(http.MethodGet, "/api/admin/v1/orders?state=quarantined", "", uuid.New(), enums.RoleAdmin)
	recorder := httptest.NewRecorder()

	ListOrdersByState(svc, nil)(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
}

func TestCancelOrderForwardsReason(t *testing.T) {
	t.Parallel()

	customerID := uuid.New()
	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		VendorID:   uuid.New(),
		State:      enums.OrderStateInventoryReserved,
	}
	svc := &stubOrdersService{order: order}

	req := authedRequest(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/cancel", `{"reason":"changed my mind"}`, customerID, enums.RoleCustomer)
	req = withOrderParam(req, order.ID)
	recorder := httptest.NewRecorder()

	CancelOrder(svc, nil)(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
	if !svc.cancelled {
		t.Fatalf("cancel was not invoked")
	}
	if svc.cancelReason != "changed my mind" {
		t.Fatalf("unexpected reason: %q", svc.cancelReason)
	}
}

func TestCancelOrderRejectsVendors(t *testing.T) {
	t.Parallel()

	vendorID := uuid.New()
	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		VendorID:   vendorID,
		State:      enums.OrderStateInventoryReserved,
	}
	svc := &stubOrdersService{order: order}

	req := authedRequest(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/cancel", `{"reason":"nope"}`, uuid.New(), enums.RoleVendor)
	ctx := middleware.WithVendorID(req.Context(), vendorID.String())
	req = withOrderParam(req.WithContext(ctx), order.ID)
	recorder := httptest.NewRecorder()

	CancelOrder(svc, nil)(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
	if svc.cancelled {
		t.Fatalf("cancel must not run for vendors")
	}
}

func TestConfirmTransferRequiresConfirmationID(t *testing.T) {
	t.Parallel()

	svc := &stubOrdersService{order: &models.Order{ID: uuid.New()}}

	req := authedRequest(http.MethodPost, "/api/admin/v1/orders/x/transfer-confirmation", `{"confirmation_id":""}`, uuid.New(), enums.RoleAdmin)
	req = withOrderParam(req, svc.order.ID)
	recorder := httptest.NewRecorder()

	ConfirmTransfer(svc, nil)(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
}

func TestOrderHistoryReturnsTransitions(t *testing.T) {
	t.Parallel()

	customerID := uuid.New()
	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		VendorID:   uuid.New(),
		State:      enums.OrderStateEscrowCaptured,
	}
	svc := &stubOrdersService{
		order: order,
		events: []models.OrderEvent{
			{
				OrderID:   order.ID,
				Seq:       1,
				FromState: enums.OrderStateCreated,
				ToState:   enums.OrderStateInventoryReserved,
				Trigger:   "reserve_inventory",
				CreatedAt: time.Now(),
			},
			{
				OrderID:   order.ID,
				Seq:       2,
				FromState: enums.OrderStateInventoryReserved,
				ToState:   enums.OrderStateEscrowCaptured,
				Trigger:   "capture_escrow",
				CreatedAt: time.Now(),
			},
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String()+"/events", "", customerID, enums.RoleCustomer)
	req = withOrderParam(req, order.ID)
	recorder := httptest.NewRecorder()

	OrderHistory(svc, nil)(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
	var envelope struct {
		Data []orderEventResponse `json:"data"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data) != 2 {
		t.Fatalf("unexpected event count: %d", len(envelope.Data))
	}
	if envelope.Data[0].Seq != 1 || envelope.Data[1].ToState != enums.OrderStateEscrowCaptured.String() {
		t.Fatalf("unexpected history payload: %+v", envelope.Data)
	}
}
