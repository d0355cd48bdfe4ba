package web

import (
	"net/http"

	"github.com/JonMunkholm/csvportal/internal/core"
)

// requestMetadata adds IP and User-Agent to the context for audit logging.
// RemoteAddr has already been reduced to the client IP by TrustedRealIP.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithIPAddress(r.Context(), r.RemoteAddr)
		ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
