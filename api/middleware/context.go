package middleware

import "context"

type contextKey string

const (
	ctxActorID contextKey = "actor_id"
	ctxRole    contextKey = "actor_role"
	ctxAgentID contextKey = "agent_id"
)

func ActorIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxActorID)
}

func RoleFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxRole)
}

// AgentIDFromContext returns the agent profile an agent token acts as.
func AgentIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxAgentID)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithActor injects the caller identity into the context.
func WithActor(ctx context.Context, actorID, role, agentID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxActorID, actorID)
	ctx = context.WithValue(ctx, ctxRole, role)
	if agentID != "" {
		ctx = context.WithValue(ctx, ctxAgentID, agentID)
	}
	return ctx
}
