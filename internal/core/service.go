package core

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/csvportal/internal/auth"
	"github.com/JonMunkholm/csvportal/internal/bizdate"
	"github.com/JonMunkholm/csvportal/internal/csvcheck"
)

// DefaultMaxFileSize is the upload ceiling when Options leaves it unset (150MB).
const DefaultMaxFileSize int64 = 150 * 1024 * 1024

// GeneratedPasswordLength is the length of passwords created for new users
// and password resets.
const GeneratedPasswordLength = 16

// DefaultAllowedMimeTypes are the content types accepted by IssueUploadURL.
var DefaultAllowedMimeTypes = []string{"text/csv", "application/vnd.ms-excel"}

// Options tunes the service. Zero values fall back to defaults.
type Options struct {
	MaxFileSize              int64
	AllowedMimeTypes         []string
	SASExpiry                time.Duration
	MaxConcurrentValidations int
	MaxValidationWait        time.Duration
	PasswordParams           auth.Argon2Params
}

// Service provides the core business logic of the upload portal.
type Service struct {
	store     Store
	blobs     BlobStore
	calendar  *bizdate.Calendar
	tokens    *auth.TokenIssuer
	validator *csvcheck.Validator
	limiter   *ValidationLimiter
	opts      Options
}

// NewService creates a new Service instance. tokens may be nil for callers
// that never log users in (portalctl).
func NewService(store Store, blobs BlobStore, calendar *bizdate.Calendar, tokens *auth.TokenIssuer, opts Options) (*Service, error) {
	if store == nil {
		return nil, errors.New("core: store is required")
	}
	if calendar == nil {
		return nil, errors.New("core: calendar is required")
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if len(opts.AllowedMimeTypes) == 0 {
		opts.AllowedMimeTypes = DefaultAllowedMimeTypes
	}
	if opts.SASExpiry <= 0 {
		opts.SASExpiry = 10 * time.Minute
	}
	if opts.PasswordParams == (auth.Argon2Params{}) {
		opts.PasswordParams = auth.DefaultArgon2Params
	}

	return &Service{
		store:     store,
		blobs:     blobs,
		calendar:  calendar,
		tokens:    tokens,
		validator: csvcheck.New(calendar),
		limiter:   NewValidationLimiter(opts.MaxConcurrentValidations, opts.MaxValidationWait),
		opts:      opts,
	}, nil
}

// Limiter exposes the validation limiter for health reporting and shutdown.
func (s *Service) Limiter() *ValidationLimiter {
	return s.limiter
}

// Calendar returns the business calendar.
func (s *Service) Calendar() *bizdate.Calendar {
	return s.calendar
}

// Ping checks database connectivity.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
