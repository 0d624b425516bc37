package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/armoryline/armoryline-backend/api/responses"
	"github.com/armoryline/armoryline-backend/api/validators"
	checkoutsvc "github.com/armoryline/armoryline-backend/internal/checkout"
	"github.com/armoryline/armoryline-backend/pkg/db/models"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/logger"
	"github.com/armoryline/armoryline-backend/pkg/types"
)

type checkoutRequest struct {
	Items           []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress *types.Address        `json:"shipping_address,omitempty"`
}

type checkoutItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,min=1"`
}

type orderResponse struct {
	OrderID                string             `json:"order_id"`
	State                  string             `json:"state"`
	VendorID               string             `json:"vendor_id"`
	Currency               string             `json:"currency"`
	TotalCents             int64              `json:"total_cents"`
	EscrowHoldID           *string            `json:"escrow_hold_id,omitempty"`
	ComplianceCaseID       *string            `json:"compliance_case_id,omitempty"`
	TransferConfirmationID *string            `json:"transfer_confirmation_id,omitempty"`
	Items                  []lineItemResponse `json:"items,omitempty"`
	CancelledAt            *time.Time         `json:"cancelled_at,omitempty"`
	CompletedAt            *time.Time         `json:"completed_at,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
}

type lineItemResponse struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

func newOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		OrderID:                order.ID.String(),
		State:                  order.State.String(),
		VendorID:               order.VendorID.String(),
		Currency:               string(order.Currency),
		TotalCents:             order.TotalCents,
		TransferConfirmationID: order.TransferConfirmationID,
		CancelledAt:            order.CancelledAt,
		CompletedAt:            order.CompletedAt,
		CreatedAt:              order.CreatedAt,
	}
	if order.EscrowHoldID != nil {
		id := order.EscrowHoldID.String()
		resp.EscrowHoldID = &id
	}
	if order.ComplianceCaseID != nil {
		id := order.ComplianceCaseID.String()
		resp.ComplianceCaseID = &id
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, lineItemResponse{
			ProductID:      item.ProductID.String(),
			Name:           item.Name,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			SubtotalCents:  item.SubtotalCents,
		})
	}
	return resp
}

// Checkout submits a single-vendor cart and runs it to compliance_pending.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.ShippingAddress != nil {
			if err := payload.ShippingAddress.Validate(); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address"))
				return
			}
		}

		items := make([]checkoutsvc.CartItem, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, checkoutsvc.CartItem{ProductID: item.ProductID, Qty: item.Qty})
		}
		order, err := svc.Checkout(r.Context(), checkoutsvc.Input{
			CustomerID:      actor.UserID,
			Items:           items,
			ShippingAddress: payload.ShippingAddress,
			Actor:           actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}
