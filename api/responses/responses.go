package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/types"
)

// WriteSuccess writes {success:true, data} with status 200.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Success: true, Data: data})
}

// WriteError maps err onto the JSON error envelope. Untyped errors become
// CodeInternal; only codes that allow it expose their own message and details.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	payload := types.ErrorEnvelope{
		Error:     meta.PublicMessage,
		Code:      string(typed.Code()),
		Retryable: meta.Retryable,
	}
	if meta.CallerMessage && typed.Message() != "" {
		payload.Error = typed.Message()
	}
	if meta.DetailsAllowed {
		payload.Details = typed.Details()
	}

	fields := pkgerrors.Diagnose(err).Fields()
	if details, ok := typed.Details().(map[string]any); ok {
		if step, ok := details["step"]; ok {
			fields["step"] = step
		}
	}
	logg.Error(logg.WithFields(ctx, fields), "request.error", err)

	writeJSON(w, meta.HTTPStatus, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
