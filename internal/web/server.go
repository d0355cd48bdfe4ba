// Package web provides the JSON HTTP API of the upload portal.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/csvportal/internal/core"
	pmw "github.com/JonMunkholm/csvportal/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options configures the HTTP layer.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds each request's context (default: 60s)
	RequestTimeout time.Duration

	TrustedProxies []string
	AllowedOrigins []string
	EnableCSP      bool

	RateLimitEnabled  bool
	RequestsPerMinute int
	LoginAttempts     int
	LoginWindow       time.Duration

	// MaxFileSize caps decoded uploads sent to /api/uploads/validate.
	MaxFileSize int64
}

func (o *Options) applyDefaults() {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	if o.RequestsPerMinute <= 0 {
		o.RequestsPerMinute = 100
	}
	if o.LoginAttempts <= 0 {
		o.LoginAttempts = 5
	}
	if o.LoginWindow <= 0 {
		o.LoginWindow = 15 * time.Minute
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = core.DefaultMaxFileSize
	}
}

// Server is the HTTP server for the portal API.
type Server struct {
	service *core.Service
	opts    Options
	router  *chi.Mux
	server  *http.Server

	limiter      *rateLimiter
	loginLimiter *rateLimiter
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, opts Options) *Server {
	opts.applyDefaults()
	s := &Server{
		service: service,
		opts:    opts,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(pmw.TrustedRealIP(s.opts.TrustedProxies))
	s.router.Use(pmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.opts.RequestTimeout))
	s.router.Use(pmw.SecurityHeaders(s.opts.EnableCSP))
	s.router.Use(pmw.CORS(s.opts.AllowedOrigins, respondError))
	s.router.Use(requestMetadata)

	if s.opts.RateLimitEnabled {
		s.limiter = newRateLimiter(s.opts.RequestsPerMinute, time.Minute)
		s.router.Use(s.limiter.middleware("Too many requests"))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, core.NewError(core.KindNotFound, "Route not found"))
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorJSON(w, http.StatusMethodNotAllowed, ErrorBody{Code: "METHOD_NOT_ALLOWED", Message: "Method not allowed"})
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/health/db", s.handleHealthDB)

		r.Group(func(r chi.Router) {
			if s.opts.RateLimitEnabled {
				s.loginLimiter = newRateLimiter(s.opts.LoginAttempts, s.opts.LoginWindow)
				r.Use(s.loginLimiter.middleware("Too many login attempts"))
			}
			r.Post("/auth/login", s.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(pmw.BearerAuth(s.service, respondError))

			r.Route("/uploads", func(r chi.Router) {
				r.Post("/validate", s.handleValidate)
				r.Post("/sas", s.handleIssueSAS)
				r.Post("/complete", s.handleComplete)
				r.Get("/check-today", s.handleCheckToday)
				r.Post("/delete-today", s.handleDeleteToday)
				r.Get("/{id}", s.handleGetUpload)
			})

			r.Group(func(r chi.Router) {
				r.Use(pmw.RequireAdmin(respondError))

				r.Route("/users", func(r chi.Router) {
					r.Get("/", s.handleListUsers)
					r.Post("/create", s.handleCreateUser)
					r.Get("/{id}", s.handleGetUser)
					r.Put("/{id}", s.handleUpdateUser)
					r.Delete("/{id}", s.handleDeleteUser)
					r.Post("/{id}/reset-password", s.handleResetPassword)
				})

				r.Get("/audit/list", s.handleAuditList)
				r.Get("/audit/export", s.handleAuditExport)
			})
		})
	})
}

// Start begins listening for HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       s.opts.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.opts.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its background loops.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Close stops the rate limiter cleanup loops.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.stop()
	}
	if s.loginLimiter != nil {
		s.loginLimiter.stop()
	}
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// writeJSON encodes v as JSON with status 200.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// maxJSONBody caps ordinary JSON request bodies.
const maxJSONBody = 1 << 20

// decodeJSON reads a JSON body of at most limit bytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return core.NewError(core.KindValidation, "Request body too large")
		case errors.Is(err, io.EOF):
			return core.NewError(core.KindValidation, "Request body is required")
		default:
			return core.NewError(core.KindValidation, "Invalid JSON body")
		}
	}
	return nil
}
