package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/armoryline/armoryline-backend/api/responses"
	"github.com/armoryline/armoryline-backend/api/validators"
	"github.com/armoryline/armoryline-backend/internal/payouts"
	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/logger"
)

type payoutDisbursementRequest struct {
	Succeeded     bool    `json:"succeeded"`
	FailureReason *string `json:"failure_reason,omitempty" validate:"omitempty,max=500"`
}

type payoutResponse struct {
	PayoutID       string     `json:"payout_id"`
	OrderID        string     `json:"order_id"`
	VendorID       string     `json:"vendor_id"`
	Currency       string     `json:"currency"`
	GrossCents     int64      `json:"gross_cents"`
	CommissionRate string     `json:"commission_rate"`
	NetCents       int64      `json:"net_cents"`
	Status         string     `json:"status"`
	FailureReason  *string    `json:"failure_reason,omitempty"`
	DisbursedAt    *time.Time `json:"disbursed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newPayoutResponse(record *models.PayoutRecord) payoutResponse {
	return payoutResponse{
		PayoutID:       record.ID.String(),
		OrderID:        record.OrderID.String(),
		VendorID:       record.VendorID.String(),
		Currency:       string(record.Currency),
		GrossCents:     record.GrossCents,
		CommissionRate: record.CommissionRate,
		NetCents:       record.NetCents,
		Status:         string(record.Status),
		FailureReason:  record.FailureReason,
		DisbursedAt:    record.DisbursedAt,
		CreatedAt:      record.CreatedAt,
	}
}

// SettlePayout records the disbursement outcome reported by the payment rail.
func SettlePayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		payoutID, err := validators.ParsePathUUID(chi.URLParam(r, "payoutId"), "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload payoutDisbursementRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !payload.Succeeded && (payload.FailureReason == nil || strings.TrimSpace(*payload.FailureReason) == "") {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "failure reason is required for failed disbursements"))
			return
		}

		record, err := svc.Settle(r.Context(), payouts.SettleInput{
			PayoutID:      payoutID,
			Succeeded:     payload.Succeeded,
			FailureReason: payload.FailureReason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutResponse(record))
	}
}

// GetPayoutByOrder returns the payout scheduled for a completed order.
func GetPayoutByOrder(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.FindByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutResponse(record))
	}
}

// ListVendorPayouts returns the caller's vendor payout history.
func ListVendorPayouts(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if actor.Role != enums.RoleVendor.String() || actor.VendorID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultOrderListLimit, 1, maxOrderListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByVendor(r.Context(), *actor.VendorID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]payoutResponse, 0, len(list))
		for i := range list {
			out = append(out, newPayoutResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
