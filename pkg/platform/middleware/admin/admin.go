package admin

import (
	"log/slog"
	"net/http"

	request "vouch/pkg/platform/middleware/request"
	"vouch/pkg/requestcontext"
)

// RequireAdmin rejects callers whose authenticated role is not admin. It must
// run after auth.RequireAuth. Services re-check the role themselves; this only
// keeps non-admin traffic off moderation routes early.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.Role(ctx).IsAdmin() {
				logger.WarnContext(ctx, "admin route denied",
					"user_id", requestcontext.UserID(ctx).String(),
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"admin role required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
