package middleware

import (
	"net/http"

	"github.com/angelmondragon/printdesk-backend/api/responses"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
)

// RequireRole admits authenticated callers holding one of roles. With
// enforce false, anonymous callers pass so local setups can run without an
// identity provider.
func RequireRole(enforce bool, logg *logger.Logger, roles ...enums.MemberRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" && !enforce {
				next.ServeHTTP(w, r)
				return
			}
			for _, allowed := range roles {
				if role == string(allowed) {
					next.ServeHTTP(w, r)
					return
				}
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
		})
	}
}
