package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dukamoja/pos-backend/api/responses"
	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
	"github.com/dukamoja/pos-backend/pkg/logger"
)

// RequireManualVerifier gates routes that confirm money movements by hand.
// Cashiers can initiate and poll, but only managers and admins may vouch for
// a receipt.
func RequireManualVerifier(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !RoleFromContext(r.Context()).CanManuallyVerify() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "manager or admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireBranch rejects requests whose token carries no branch scope. Every
// branch-sensitive operation needs to know which till is asking.
func RequireBranch(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if BranchIDFromContext(r.Context()) == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "token is not scoped to a branch"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
