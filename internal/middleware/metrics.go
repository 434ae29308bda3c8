package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/compiler-playground/internal/metrics"
)

// Metrics records request counts and latency per chi route pattern
// ("/snippets/{id}", not "/snippets/abc123"), which keeps label
// cardinality bounded. Unmatched requests are recorded as "unmatched".
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			m.RequestObserved(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}
