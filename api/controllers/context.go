package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/armoryline/armoryline-backend/api/middleware"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/outbox"
)

// actorFromRequest rebuilds the authenticated actor from the request context.
func actorFromRequest(r *http.Request) (*outbox.ActorRef, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid user id in context")
	}
	actor := &outbox.ActorRef{
		UserID: userID,
		Role:   middleware.RoleFromContext(r.Context()),
	}
	if rawVendor := middleware.VendorIDFromContext(r.Context()); rawVendor != "" {
		if vendorID, err := uuid.Parse(rawVendor); err == nil {
			actor.VendorID = &vendorID
		}
	}
	return actor, nil
}
