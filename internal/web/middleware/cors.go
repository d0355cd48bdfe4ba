package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvportal/internal/core"
)

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, X-Request-Id"
	corsMaxAge       = "600"
)

// CORS admits cross-origin requests from the allow-list. An entry of "*"
// admits every origin. Requests without an Origin header pass untouched;
// preflights from allowed origins are answered with 204 and requests from
// any other origin are refused with 403.
func CORS(allowed []string, fail ErrorWriter) func(http.Handler) http.Handler {
	origins := make(map[string]bool, len(allowed))
	allowAll := false
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			origins[strings.ToLower(o)] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")

			if !allowAll && !origins[strings.ToLower(origin)] {
				slog.Warn("cors: origin not allowed", "origin", origin, "path", r.URL.Path)
				fail(w, r, core.NewError(core.KindForbidden, "Origin not allowed"))
				return
			}

			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
