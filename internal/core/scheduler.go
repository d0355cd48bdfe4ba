package core

// scheduler.go runs background maintenance for upload sessions.
//
// The sweeper expires PENDING sessions whose upload URL has lapsed so that
// abandoned uploads stop showing as in progress. It logs failures but never
// stops the application.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often the sweeper runs when none is configured.
const DefaultSweepInterval = 5 * time.Minute

// StartSessionSweeper expires stale sessions immediately, then every interval,
// until ctx is cancelled.
func (s *Service) StartSessionSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	slog.Info("session sweeper started",
		"interval", interval.String(),
		"session_ttl", s.opts.SASExpiry.String(),
	)

	s.runSweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

// runSweep performs one expiry pass.
func (s *Service) runSweep(ctx context.Context) {
	start := time.Now()
	expired, err := s.ExpireStaleSessions(ctx)
	if err != nil {
		slog.Error("session sweep failed", "error", err)
		return
	}
	if expired > 0 {
		slog.Info("expired stale upload sessions",
			"sessions_expired", expired,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	slog.Debug("session sweep found nothing to expire", "duration_ms", time.Since(start).Milliseconds())
}
