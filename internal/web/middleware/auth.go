package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/csvportal/internal/auth"
	"github.com/JonMunkholm/csvportal/internal/core"
)

// Authenticator resolves a bearer token to the calling user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (core.Principal, error)
}

// ErrorWriter renders err as the response. Handlers and middleware share it
// so every failure has the same JSON shape.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// BearerAuth requires a valid "Authorization: Bearer <jwt>" header and
// attaches the resolved core.Principal to the request context.
func BearerAuth(authn Authenticator, fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractBearer(r.Header.Get("Authorization"))
			if token == "" {
				fail(w, r, core.NewError(core.KindAuth, "Missing or invalid authorization header"))
				return
			}

			p, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				slog.Warn("auth: rejected token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				fail(w, r, err)
				return
			}

			recordUser(r.Context(), p.Username)
			next.ServeHTTP(w, r.WithContext(core.ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin lets only ADMIN and SUPERADMIN callers through. It must run
// after BearerAuth.
func RequireAdmin(fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := core.PrincipalFromContext(r.Context())
			if !ok {
				fail(w, r, core.NewError(core.KindAuth, "Authentication required"))
				return
			}
			if !p.Role.IsAdmin() {
				fail(w, r, core.NewError(core.KindForbidden, "Administrator access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
