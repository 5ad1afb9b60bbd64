package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/printdesk-backend/pkg/enums"
)

// AccessTokenClaims is the token shape issued by the upstream identity
// provider. The actor is the token subject; agents additionally carry the
// agent profile they act as.
type AccessTokenClaims struct {
	Role    enums.MemberRole `json:"role"`
	AgentID *uuid.UUID       `json:"agent_id,omitempty"`
	Name    string           `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// ActorID returns the identifier recorded as assignedBy and in audit events.
func (c AccessTokenClaims) ActorID() string {
	return c.Subject
}
