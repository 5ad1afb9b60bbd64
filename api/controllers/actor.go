package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/printdesk-backend/api/middleware"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox"
)

const maxBodyBytes = 1 << 20

// actorRef returns the authenticated caller, or nil for anonymous requests.
func actorRef(r *http.Request) *outbox.ActorRef {
	id := middleware.ActorIDFromContext(r.Context())
	if id == "" {
		return nil
	}
	return &outbox.ActorRef{ID: id, Role: middleware.RoleFromContext(r.Context())}
}

// authorizeAgent restricts agent callers to their own profile. Dispatchers,
// admins and anonymous callers (when auth is not enforced) pass.
func authorizeAgent(r *http.Request, agentID uuid.UUID) error {
	if middleware.RoleFromContext(r.Context()) != string(enums.MemberRoleAgent) {
		return nil
	}
	if middleware.AgentIDFromContext(r.Context()) != agentID.String() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "agents may only act on their own profile")
	}
	return nil
}

// readBody buffers a bounded request body.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	return body, nil
}

// actionOf resolves the group discriminator from ?action= or the body's
// "action" field. The query string wins.
func actionOf(r *http.Request, body []byte) string {
	if action := strings.TrimSpace(r.URL.Query().Get("action")); action != "" {
		return action
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	var discriminator struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &discriminator); err != nil {
		return ""
	}
	return strings.TrimSpace(discriminator.Action)
}

func unknownAction(action string, known ...string) error {
	if action == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "action is required").WithDetails(map[string]any{"actions": known})
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "unknown action").WithDetails(map[string]any{"action": action, "actions": known})
}
