package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/printdesk-backend/api/responses"
	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/printdesk-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	standardReplayWindow = 24 * time.Hour
	// assign-order reserves capacity, so its responses outlive client retries by days
	assignReplayWindow = 7 * 24 * time.Hour

	apiPrefix = "/api/v1"
)

// replayWindows lists the write commands whose responses are kept for replay.
// Queries sharing the same group routes are never recorded.
var replayWindows = map[string]time.Duration{
	"assign-order":             assignReplayWindow,
	"update-assignment-status": standardReplayWindow,
	"check-in":                 standardReplayWindow,
	"check-out":                standardReplayWindow,
	"start-break":              standardReplayWindow,
	"end-break":                standardReplayWindow,
}

// groupRoutes take the command from the action discriminator.
var groupRoutes = map[string]bool{
	apiPrefix + "/assignments": true,
	apiPrefix + "/attendance":  true,
}

// orderAliases maps the last segment of /orders/{orderId}/<verb> to the
// command the alias stands for.
var orderAliases = map[string]string{
	"assign":            "assign-order",
	"assignment-status": "update-assignment-status",
}

// invocation is one keyed command call.
type invocation struct {
	command string
	target  string
	window  time.Duration
}

func (c invocation) scope(actorID string) string {
	return strings.Join([]string{actorID, c.command, c.target}, "|")
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Idempotency replays the recorded response when a write command is retried
// with the same Idempotency-Key. The key is scoped to the caller and the
// command, so one key may be reused across different commands. Reusing it
// for the same command with a different body is rejected.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if store == nil || key == "" || r.Method != http.MethodPost || !keyedRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			call, ok := resolveInvocation(r, body)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			storeKey := store.IdempotencyKey(call.scope(ActorIDFromContext(ctx)), key)
			fingerprint := fingerprintOf(call.command, body)

			raw, err := store.Get(ctx, storeKey)
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up idempotency key"))
				return
			default:
				var prior storedResponse
				if err := json.Unmarshal([]byte(raw), &prior); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
					return
				}
				if prior.Fingerprint != fingerprint {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body").
						WithDetails(map[string]any{"command": call.command}))
					return
				}
				prior.replay(w)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if !replayable(status) {
				return
			}
			encoded, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				Fingerprint: fingerprint,
			})
			if err != nil {
				logg.Error(ctx, "encode idempotency record", err)
				return
			}
			if _, err := store.SetNX(ctx, storeKey, string(encoded), call.window); err != nil {
				logg.Error(logg.WithField(ctx, "command", call.command), "store idempotency record", err)
			}
		})
	}
}

// keyedRoute reports whether path can carry a replayable command at all, so
// query traffic skips buffering its body.
func keyedRoute(path string) bool {
	if groupRoutes[path] {
		return true
	}
	_, _, ok := orderAlias(path)
	return ok
}

func resolveInvocation(r *http.Request, body []byte) (invocation, bool) {
	var call invocation
	if groupRoutes[r.URL.Path] {
		call.command = discriminator(r, body)
	} else if orderID, verb, ok := orderAlias(r.URL.Path); ok {
		call.command, call.target = orderAliases[verb], orderID
	}
	window, ok := replayWindows[call.command]
	if !ok {
		return invocation{}, false
	}
	call.window = window
	return call, true
}

// orderAlias splits /api/v1/orders/{orderId}/<verb>.
func orderAlias(path string) (orderID, verb string, ok bool) {
	rest, found := strings.CutPrefix(path, apiPrefix+"/orders/")
	if !found {
		return "", "", false
	}
	orderID, verb, found = strings.Cut(rest, "/")
	if !found || orderID == "" {
		return "", "", false
	}
	if _, known := orderAliases[verb]; !known {
		return "", "", false
	}
	return orderID, verb, true
}

// discriminator reads ?action= first, then the body's "action" field.
func discriminator(r *http.Request, body []byte) string {
	if action := strings.TrimSpace(r.URL.Query().Get("action")); action != "" {
		return action
	}
	var envelope struct {
		Action string `json:"action"`
	}
	if json.Unmarshal(body, &envelope) != nil {
		return ""
	}
	return strings.TrimSpace(envelope.Action)
}

func fingerprintOf(command string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(command))
	h.Write([]byte{0})
	h.Write(bytes.TrimSpace(body))
	return hex.EncodeToString(h.Sum(nil))
}

// replayable excludes outcomes a retry may legitimately change: state
// conflicts such as a full agent, and server failures.
func replayable(status int) bool {
	return status < http.StatusInternalServerError && status != http.StatusConflict
}

func (s storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
