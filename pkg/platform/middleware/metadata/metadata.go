package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"vouch/pkg/requestcontext"
)

// ClientMetadata extracts client IP address and User-Agent from the request and
// adds them, plus a compact "browser/os" label, to the context. Moderators see
// the label next to each submission.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIPFromRequest(r)
		userAgent := r.Header.Get("User-Agent")

		ctx := requestcontext.WithClientMetadata(r.Context(), ip, userAgent, ClientLabel(userAgent))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientLabel summarises a User-Agent as "browser/os", "bot/<name>" or "" when absent.
func ClientLabel(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if ua.Bot() {
		return "bot/" + browser
	}
	os := ua.OS()
	if os == "" {
		os = "unknown"
	}
	if ua.Mobile() {
		os += " (mobile)"
	}
	return browser + "/" + os
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For may hold "client, proxy1, proxy2"; the first entry is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" or "[::1]:port".
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
