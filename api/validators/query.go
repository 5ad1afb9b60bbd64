package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
)

// WorkDateLayout is the calendar-day format used by attendance queries.
const WorkDateLayout = time.DateOnly

func queryParam(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func badParam(field, msg string, cause error, extra map[string]any) error {
	details := map[string]any{"field": field}
	for k, v := range extra {
		details[k] = v
	}
	if cause == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, msg).WithDetails(details)
}

// ParseQueryInt returns fallback when key is absent and rejects values
// outside [lo, hi].
func ParseQueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	raw := queryParam(r, key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, badParam(key, key+" must be a whole number", nil, nil)
	case n < lo || n > hi:
		return 0, badParam(key, key+" is out of range", nil, map[string]any{"min": lo, "max": hi})
	}
	return n, nil
}

// ParseQueryUUID returns nil when the parameter is absent.
func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := queryParam(r, key)
	if raw == "" {
		return nil, nil
	}
	id, err := ParseUUID(raw, key)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ParseUUID validates a required identifier from a path or body field.
func ParseUUID(raw, field string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, badParam(field, field+" is required", nil, nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badParam(field, "invalid "+field, err, nil)
	}
	return id, nil
}

// ParseQueryDate returns "" when the parameter is absent.
func ParseQueryDate(r *http.Request, key string) (string, error) {
	raw := queryParam(r, key)
	if raw == "" {
		return "", nil
	}
	if _, err := time.Parse(WorkDateLayout, raw); err != nil {
		return "", badParam(key, key+" must be YYYY-MM-DD", nil, nil)
	}
	return raw, nil
}
