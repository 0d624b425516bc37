package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/armoryline/armoryline-backend/api/responses"
	"github.com/armoryline/armoryline-backend/api/validators"
	"github.com/armoryline/armoryline-backend/internal/orders"
	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/logger"
	"github.com/armoryline/armoryline-backend/pkg/outbox"
)

const (
	defaultOrderListLimit = 25
	maxOrderListLimit     = 100
)

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type confirmTransferRequest struct {
	ConfirmationID string `json:"confirmation_id" validate:"required,max=120"`
}

type orderEventResponse struct {
	Seq       int             `json:"seq"`
	FromState string          `json:"from_state"`
	ToState   string          `json:"to_state"`
	Trigger   string          `json:"trigger"`
	ActorID   *string         `json:"actor_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// canViewOrder gates read access: customers see their own orders, vendors see
// their vendor's orders, admins see everything.
func canViewOrder(actor *outbox.ActorRef, order *models.Order) bool {
	switch actor.Role {
	case enums.RoleAdmin.String():
		return true
	case enums.RoleVendor.String():
		return actor.VendorID != nil && *actor.VendorID == order.VendorID
	default:
		return actor.UserID == order.CustomerID
	}
}

func loadVisibleOrder(r *http.Request, svc orders.Service) (*models.Order, *outbox.ActorRef, error) {
	actor, err := actorFromRequest(r)
	if err != nil {
		return nil, nil, err
	}
	orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
	if err != nil {
		return nil, nil, err
	}
	order, err := svc.FindByID(r.Context(), orderID)
	if err != nil {
		return nil, nil, err
	}
	if !canViewOrder(actor, order) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to caller")
	}
	return order, actor, nil
}

// GetOrder returns a single order with line items.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		order, _, err := loadVisibleOrder(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// ListOrdersByState returns orders in a given workflow state for the ops
// dashboard. The state query parameter is required.
func ListOrdersByState(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		state, err := enums.ParseOrderState(r.URL.Query().Get("state"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "state query parameter must be a valid order state"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultOrderListLimit, 1, maxOrderListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByState(r.Context(), state, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]orderResponse, 0, len(list))
		for i := range list {
			out = append(out, newOrderResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// ListOrders returns the caller's orders: the customer view for customers and
// the vendor view for vendor staff.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultOrderListLimit, 1, maxOrderListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var list []models.Order
		switch actor.Role {
		case enums.RoleVendor.String():
			if actor.VendorID == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing"))
				return
			}
			list, err = svc.ListByVendor(r.Context(), *actor.VendorID, limit)
		default:
			list, err = svc.ListByCustomer(r.Context(), actor.UserID, limit)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]orderResponse, 0, len(list))
		for i := range list {
			out = append(out, newOrderResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// OrderHistory returns the transition log for an order, oldest first.
func OrderHistory(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		order, _, err := loadVisibleOrder(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, err := svc.History(r.Context(), order.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]orderEventResponse, 0, len(events))
		for _, event := range events {
			item := orderEventResponse{
				Seq:       event.Seq,
				FromState: event.FromState.String(),
				ToState:   event.ToState.String(),
				Trigger:   event.Trigger,
				Metadata:  event.Metadata,
				CreatedAt: event.CreatedAt,
			}
			if event.ActorID != nil {
				id := event.ActorID.String()
				item.ActorID = &id
			}
			out = append(out, item)
		}
		responses.WriteSuccess(w, out)
	}
}

// CancelOrder unwinds an order on the customer's (or an admin's) behalf.
func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		order, actor, err := loadVisibleOrder(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if actor.Role == enums.RoleVendor.String() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "vendors cannot cancel orders"))
			return
		}

		var payload cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cancelled, err := svc.Cancel(r.Context(), order.ID, actor, strings.TrimSpace(payload.Reason))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(cancelled))
	}
}

// ConfirmTransfer records the regulated-transfer confirmation and authorizes
// handover. Admin only; the licensed transfer agent reports out of band.
func ConfirmTransfer(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload confirmTransferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.ConfirmTransfer(r.Context(), orderID, strings.TrimSpace(payload.ConfirmationID), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// CompleteOrder finalizes a transfer-authorized order: escrow releases to the
// vendor and the payout is scheduled.
func CompleteOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Complete(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}
