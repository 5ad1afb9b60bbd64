package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/printdesk-backend/api/responses"
	pkgAuth "github.com/angelmondragon/printdesk-backend/pkg/auth"
	"github.com/angelmondragon/printdesk-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the actor.
// When required is false, requests without an Authorization header pass
// through anonymously; a present but invalid token is always rejected.
func Auth(cfg config.JWTConfig, required bool, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			agentID := ""
			if claims.AgentID != nil {
				agentID = claims.AgentID.String()
			}
			ctx := WithActor(r.Context(), claims.ActorID(), string(claims.Role), agentID)

			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.ActorID())
				ctx = logg.WithActorRole(ctx, string(claims.Role))
				if agentID != "" {
					ctx = logg.WithAgentID(ctx, agentID)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
