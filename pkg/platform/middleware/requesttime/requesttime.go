// Package requesttime pins a single "now" per HTTP request so submission
// timestamps, review timestamps and rate-limit windows agree with each other.
package requesttime

import (
	"net/http"
	"time"

	"vouch/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
