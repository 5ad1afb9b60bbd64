package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/printdesk-backend/pkg/logger"
)

// Logging writes one access line per request once the handler returns.
// Health checks are only logged when they fail.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := writtenStatus(ww)
			if strings.HasPrefix(r.URL.Path, "/health") && status < http.StatusInternalServerError {
				return
			}
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			accessLog(ctx, logg, status)
		})
	}
}

func accessLog(ctx context.Context, logg *logger.Logger, status int) {
	switch {
	case status >= http.StatusInternalServerError:
		// the handler already logged the cause through responses.WriteError
		logg.Warn(ctx, "request failed")
	case status >= http.StatusBadRequest:
		logg.Info(ctx, "request rejected")
	default:
		logg.Debug(ctx, "request served")
	}
}

// writtenStatus treats a handler that wrote nothing as an implicit 200.
func writtenStatus(ww chimw.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}
