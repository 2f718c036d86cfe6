package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// responseTap captures the status code the downstream handler writes.
type responseTap struct {
	http.ResponseWriter
	status int
}

func (t *responseTap) WriteHeader(code int) {
	t.status = code
	t.ResponseWriter.WriteHeader(code)
}

// Middleware wraps the telemetry mux, recording request duration to
// [Metrics.HTTPRequestDuration] with method, path, and status attributes.
//
// Successful requests log at Debug: the probe endpoints are polled every few
// seconds and would otherwise drown the bridge's own logs. Server errors log
// at Warn.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			tap := &responseTap{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(tap, r)
			elapsed := time.Since(start)

			m.HTTPRequestDuration.Record(r.Context(), elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", r.URL.Path),
					attribute.String("status", strconv.Itoa(tap.status)),
				),
			)

			level := slog.LevelDebug
			if tap.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			slog.LogAttrs(r.Context(), level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", tap.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
