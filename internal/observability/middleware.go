package observability

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMetricsMiddleware records request counts and latency and opens a span
// per request. Either of metrics and tracer may be nil.
func HTTPMetricsMiddleware(metrics *MetricsCollector, tracer trace.Tracer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routeLabel(r.URL.Path)

		if tracer != nil {
			ctx, span := tracer.Start(r.Context(), "http.request",
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.route", path),
				))
			defer span.End()
			r = r.WithContext(ctx)
		}

		if metrics != nil {
			metrics.ActiveRequests.Inc()
			defer metrics.ActiveRequests.Dec()
		}

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		if metrics != nil {
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, statusCode(rec.code)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.code = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer; the
// WebSocket upgrade needs its Hijacker.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// routeLabel collapses path segments that follow a collection name into
// a placeholder so session ids and command names do not become labels.
func routeLabel(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		switch parts[i-1] {
		case "sessions", "commands", "lessons":
			if parts[i] != "" {
				parts[i] = "{id}"
			}
		}
	}
	return strings.Join(parts, "/")
}
