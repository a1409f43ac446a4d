package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"kbquery/domain/graph"
	"kbquery/pkg/common"
	apperrors "kbquery/pkg/errors"
)

// Scope headers
const (
	HeaderOrgID     = "X-Org-ID"
	HeaderDomainID  = "X-Domain-ID"
	HeaderProjectID = "X-Project-ID"
	HeaderTeamID    = "X-Team-ID"
)

// Scope reads the caller's scope filter from request headers into the
// context. Requests without an org are rejected.
func Scope(errs *apperrors.ErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := graph.Scope{
				OrgID:     r.Header.Get(HeaderOrgID),
				DomainID:  r.Header.Get(HeaderDomainID),
				ProjectID: r.Header.Get(HeaderProjectID),
				TeamID:    r.Header.Get(HeaderTeamID),
			}.Normalize()

			if scope.IsZero() {
				errs.Handle(w, r, apperrors.NewValidationError(strings.ToLower(HeaderOrgID)+" header is required"))
				return
			}

			ctx := common.WithScope(r.Context(), scope)
			if id := middleware.GetReqID(ctx); id != "" {
				ctx = common.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
