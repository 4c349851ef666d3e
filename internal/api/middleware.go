package api

import (
	"net/http"
	"time"

	"davel-library/internal/common/logger"
	"davel-library/internal/common/observability"

	"github.com/go-chi/chi/v5"
)

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// RequestLogging logs one line per request.
func RequestLogging(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			fields := map[string]interface{}{
				"method":      r.Method,
				"route":       routePattern(r),
				"status":      rec.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if sid := r.Header.Get(SessionHeader); sid != "" {
				fields["session_id"] = sid
			}
			if rec.statusCode >= http.StatusInternalServerError {
				log.Error("request failed", fields)
			} else {
				log.Info("request served", fields)
			}
		})
	}
}

// RequestMetrics records request count and latency by route pattern.
func RequestMetrics(obs *observability.Observability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			obs.RecordRequest(r.Context(), r.Method, routePattern(r), rec.statusCode, time.Since(start))
		})
	}
}
