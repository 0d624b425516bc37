package middleware

import (
	"net/http"

	"github.com/armoryline/armoryline-backend/api/responses"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/logger"
)

// RequireRole gates a route on an exact actor role. Authorization is a
// precondition of every transition endpoint, never part of the state machine.
func RequireRole(role string, logg *logger.Logger) func(http.Handler) http.Handler {
	return RequireAnyRole(logg, role)
}

// RequireAnyRole gates a route on one of the listed roles.
func RequireAnyRole(logg *logger.Logger, roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
