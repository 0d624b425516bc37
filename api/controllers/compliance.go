package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/armoryline/armoryline-backend/api/responses"
	"github.com/armoryline/armoryline-backend/api/validators"
	"github.com/armoryline/armoryline-backend/internal/compliance"
	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/logger"
)

type complianceResultRequest struct {
	Kind   string `json:"kind" validate:"required"`
	Status string `json:"status" validate:"required"`
}

type complianceCheckResponse struct {
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	ReportedAt *time.Time `json:"reported_at,omitempty"`
}

type complianceCaseResponse struct {
	CaseID    string                    `json:"case_id"`
	OrderID   string                    `json:"order_id"`
	Outcome   string                    `json:"outcome"`
	Checks    []complianceCheckResponse `json:"checks"`
	DecidedAt *time.Time                `json:"decided_at,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
}

func newComplianceCaseResponse(c *models.ComplianceCase) complianceCaseResponse {
	resp := complianceCaseResponse{
		CaseID:    c.ID.String(),
		OrderID:   c.OrderID.String(),
		Outcome:   string(c.Outcome),
		DecidedAt: c.DecidedAt,
		CreatedAt: c.CreatedAt,
	}
	for _, check := range c.Checks {
		resp.Checks = append(resp.Checks, complianceCheckResponse{
			Kind:       string(check.Kind),
			Status:     string(check.Status),
			ReportedAt: check.ReportedAt,
		})
	}
	return resp
}

// ReportComplianceResult ingests one screening result from the compliance
// provider. A terminal result may decide the case and move the owning order.
func ReportComplianceResult(svc compliance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "compliance service unavailable"))
			return
		}

		caseID, err := validators.ParsePathUUID(chi.URLParam(r, "caseId"), "caseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload complianceResultRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := enums.ParseComplianceCheckKind(payload.Kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid check kind"))
			return
		}
		status, err := enums.ParseComplianceCheckStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid check status"))
			return
		}

		updated, err := svc.ReportResult(r.Context(), compliance.ResultInput{
			CaseID: caseID,
			Kind:   kind,
			Status: status,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newComplianceCaseResponse(updated))
	}
}

// GetComplianceCaseByOrder returns the case attached to an order.
func GetComplianceCaseByOrder(svc compliance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "compliance service unavailable"))
			return
		}
		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		found, err := svc.FindCaseByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newComplianceCaseResponse(found))
	}
}
