package controllers

import (
	"net/http"

	"github.com/armoryline/armoryline-backend/api/responses"
	"github.com/armoryline/armoryline-backend/api/validators"
	"github.com/armoryline/armoryline-backend/internal/identity"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/logger"
)

type sendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyOTPRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

type sessionResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// SendOTP asks the identity verifier to issue a login code.
func SendOTP(svc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity service unavailable"))
			return
		}

		var payload sendOTPRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SendOTP(r.Context(), payload.Email); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
	}
}

// VerifyOTP exchanges a login code for a session token.
func VerifyOTP(svc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity service unavailable"))
			return
		}

		var payload verifyOTPRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.VerifyOTP(r.Context(), identity.VerifyInput{
			Email:       payload.Email,
			Code:        payload.Code,
			Fingerprint: payload.Fingerprint,
			IP:          r.RemoteAddr,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessionResponse{
			Token:  session.Token,
			UserID: session.User.ID.String(),
			Role:   string(session.User.Role),
		})
	}
}
