package testutil

import (
	"net/http"

	id "vouch/pkg/domain"
	"vouch/pkg/requestcontext"
)

// WithCaller puts an authenticated caller on the request context, the way the
// auth middleware would.
func WithCaller(req *http.Request, userID id.UserID, role id.Role) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}

// WithRequestID sets the correlation ID a handler will log and audit with.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
