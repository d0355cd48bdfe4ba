package core

// validation_limiter.go bounds how many uploaded files are downloaded and
// validated at the same time during CompleteUpload.
//
// Each validation holds a whole file in memory, so the limiter uses a
// semaphore to cap parallel work. When all slots are occupied, new requests
// wait up to maxWait before failing with ErrTooManyValidations.
//
// WaitForDrain blocks until in-flight validations finish and is used during
// graceful shutdown.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyValidations is returned when all validation slots are occupied
// and the wait timeout expires. Clients should retry after a short delay.
var ErrTooManyValidations = errors.New("too many validations in progress, please try again later")

// DefaultMaxConcurrentValidations is the default limit for parallel validations.
const DefaultMaxConcurrentValidations = 4

// DefaultMaxValidationWait is how long to wait for a slot before rejecting.
const DefaultMaxValidationWait = 15 * time.Second

// ValidationLimiter controls concurrent file validation using a semaphore.
type ValidationLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int32
}

// NewValidationLimiter creates a limiter that allows at most maxConcurrent
// simultaneous validations.
func NewValidationLimiter(maxConcurrent int, maxWait time.Duration) *ValidationLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentValidations
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxValidationWait
	}
	return &ValidationLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting at most maxWait.
// The caller MUST call Release() when the validation completes.
func (l *ValidationLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyValidations
	}
}

// Release returns a slot taken by Acquire.
func (l *ValidationLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of validations in progress.
func (l *ValidationLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// Available returns the number of free slots.
func (l *ValidationLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until all active validations complete or ctx is done.
func (l *ValidationLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// LimiterStatus is a snapshot of the limiter's state.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the current limiter state for the health endpoint.
func (l *ValidationLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: cap(l.slots),
	}
}
