package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/armoryline/armoryline-backend/api/middleware"
	checkoutsvc "github.com/armoryline/armoryline-backend/internal/checkout"
	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
)

type stubCheckoutService struct {
	order *models.Order
	err   error
	input checkoutsvc.Input
}

func (s *stubCheckoutService) Checkout(ctx context.Context, input checkoutsvc.Input) (*models.Order, error) {
	s.input = input
	return s.order, s.err
}

func authedRequest(method, target, body string, userID uuid.UUID, role enums.Role) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, role.String())
	return req.WithContext(ctx)
}

func TestCheckoutSuccess(t *testing.T) {
	t.Parallel()

	customerID := uuid.New()
	productID := uuid.New()
	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		VendorID:   uuid.New(),
		State:      enums.OrderStateCompliancePending,
		Currency:   enums.CurrencyUSD,
		TotalCents: 149900,
	}
	svc := &stubCheckoutService{order: order}

	body := `{"items":[{"product_id":"` + productID.String() + `","qty":2}]}`
	req := authedRequest(http.MethodPost, "/api/v1/checkout", body, customerID, enums.RoleCustomer)
	recorder := httptest.NewRecorder()

	Checkout(svc, nil)(recorder, req)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
	var envelope struct {
		Data orderResponse `json:"data"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.OrderID != order.ID.String() {
		t.Fatalf("unexpected order id: %s", envelope.Data.OrderID)
	}
	if envelope.Data.State != enums.OrderStateCompliancePending.String() {
		t.Fatalf("unexpected state: %s", envelope.Data.State)
	}
	if svc.input.CustomerID != customerID {
		t.Fatalf("customer id not forwarded")
	}
	if len(svc.input.Items) != 1 || svc.input.Items[0].Qty != 2 {
		t.Fatalf("cart items not forwarded: %+v", svc.input.Items)
	}
}

func TestCheckoutRequiresCredentials(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"items":[]}`))
	recorder := httptest.NewRecorder()

	Checkout(&stubCheckoutService{}, nil)(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	t.Parallel()

	req := authedRequest(http.MethodPost, "/api/v1/checkout", `{"items":[]}`, uuid.New(), enums.RoleCustomer)
	recorder := httptest.NewRecorder()

	Checkout(&stubCheckoutService{}, nil)(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
}
