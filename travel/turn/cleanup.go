package turn

import (
	"time"
)

// CleanupConfig holds the background cleanup parameters.
type CleanupConfig struct {
	// Interval is how often to run cleanup (default: 5 minutes).
	Interval time.Duration
}

// DefaultCleanupConfig returns default cleanup configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{Interval: 5 * time.Minute}
}

// StartCleanupLoop periodically drops rate limit windows with no live turns.
// The returned function stops the loop.
func (s *Service) StartCleanupLoop(cfg CleanupConfig) func() {
	if cfg.Interval <= 0 {
		cfg = DefaultCleanupConfig()
	}

	ticker := time.NewTicker(cfg.Interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				s.runCleanupCycle()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}

// runCleanupCycle performs a single cleanup cycle with panic recovery.
func (s *Service) runCleanupCycle() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cleanup_panic_recovered", "error", r)
		}
	}()

	cleaned, tracked := 0, 0
	if s.limiter != nil {
		cleaned = s.limiter.CleanupExpired()
		tracked = s.limiter.Len()
	}
	s.logger.Debug("cleanup_cycle_completed",
		"rate_sessions_cleaned", cleaned,
		"rate_sessions_tracked", tracked,
		"session_locks_held", s.locks.Len(),
	)
}
