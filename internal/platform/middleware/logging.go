package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/platform/telemetry"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Logging logs one "http request" line per request and counts it when
// metrics are given. The caller's user id is included once auth has run.
func Logging(logger *slog.Logger, metrics ...*telemetry.Metrics) func(http.Handler) http.Handler {
	var m *telemetry.Metrics
	if len(metrics) > 0 {
		m = metrics[0]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if id := GetRequestID(r.Context()); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			if identity := auth.GetIdentity(r.Context()); identity != nil {
				attrs = append(attrs, "user_id", identity.UserID)
			}
			logger.InfoContext(r.Context(), "http request", attrs...)
			m.HTTPRequest(r.Method, strconv.Itoa(rec.status))
		})
	}
}
