package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/autodoor/internal/logging"
	"github.com/BrandonDHaskell/autodoor/internal/metrics"
)

// requestLogger tags each request with a request id, stores a scoped logger
// in its context and logs the outcome.
func requestLogger(logger zerolog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now().UTC()

			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = logging.NewRequestID()
			}
			w.Header().Set("X-Request-ID", id)

			reqLog := logger.With().Str("request_id", id).Logger()
			ctx := logging.WithRequestID(r.Context(), id)
			ctx = logging.WithContext(ctx, reqLog)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			dur := time.Since(start)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			if m != nil {
				m.RecordHTTPRequest(r.Method, route, status, dur)
			}

			ev := reqLog.Info()
			if status >= http.StatusInternalServerError {
				ev = reqLog.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Str("from", r.RemoteAddr).
				Dur("dur", dur).
				Msg("http request")
		})
	}
}

// controlRateLimit limits state-changing requests per client IP. A
// non-positive rate disables it.
func (s *Server) controlRateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.fail(w, r, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	)
}
