package session

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is matched by every RateLimitedError.
var ErrRateLimited = errors.New("turn rate limit exceeded")

// RateLimitedError reports which window rejected a turn.
type RateLimitedError struct {
	SessionID  string
	LimitType  string
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("session %s exceeded %d turns per %s, retry after %s",
		e.SessionID, e.Limit, e.LimitType, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// =============================================================================
// Rate Limit Config & Result
// =============================================================================

// RateLimitConfig caps turns per session. A zero limit disables that window.
type RateLimitConfig struct {
	TurnsPerMinute int `json:"turns_per_minute"`
	TurnsPerHour   int `json:"turns_per_hour"`
}

// Enabled reports whether any window is limited.
func (c RateLimitConfig) Enabled() bool {
	return c.TurnsPerMinute > 0 || c.TurnsPerHour > 0
}

// RateLimitResult is the outcome of one Allow call. Remaining is -1 when no
// window is limited.
type RateLimitResult struct {
	Allowed    bool
	LimitType  string
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// =============================================================================
// Rate Limiter
// =============================================================================

// window is one token bucket sized so that a full window of turns may arrive
// at once and then refills evenly over the window length.
type window struct {
	name    string
	limit   int
	limiter *rate.Limiter
}

type limiterEntry struct {
	windows []window
}

// idle reports whether every bucket has refilled, so dropping the entry
// loses no history.
func (e *limiterEntry) idle(now time.Time) bool {
	for _, w := range e.windows {
		if w.limiter.TokensAt(now) < float64(w.limit) {
			return false
		}
	}
	return true
}

// RateLimiter limits turns per session.
type RateLimiter struct {
	cfg      RateLimitConfig
	limiters map[string]*limiterEntry
	now      func() time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:      cfg,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

func (r *RateLimiter) newEntry() *limiterEntry {
	entry := &limiterEntry{}
	for _, c := range []struct {
		name   string
		length time.Duration
		limit  int
	}{
		{"minute", time.Minute, r.cfg.TurnsPerMinute},
		{"hour", time.Hour, r.cfg.TurnsPerHour},
	} {
		if c.limit <= 0 {
			continue
		}
		entry.windows = append(entry.windows, window{
			name:    c.name,
			limit:   c.limit,
			limiter: rate.NewLimiter(rate.Every(c.length/time.Duration(c.limit)), c.limit),
		})
	}
	return entry
}

// Allow takes one turn from every window of the session. When any window is
// exhausted nothing is taken and the result carries the wait until it refills.
func (r *RateLimiter) Allow(sessionID string) RateLimitResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()

	entry, ok := r.limiters[sessionID]
	if !ok {
		entry = r.newEntry()
		r.limiters[sessionID] = entry
	}

	reserved := make([]*rate.Reservation, 0, len(entry.windows))
	for _, w := range entry.windows {
		res := w.limiter.ReserveN(now, 1)
		if delay := res.DelayFrom(now); delay > 0 {
			res.CancelAt(now)
			for _, prev := range reserved {
				prev.CancelAt(now)
			}
			return RateLimitResult{LimitType: w.name, Limit: w.limit, RetryAfter: delay}
		}
		reserved = append(reserved, res)
	}

	remaining := -1
	for _, w := range entry.windows {
		left := int(math.Floor(w.limiter.TokensAt(now)))
		if remaining < 0 || left < remaining {
			remaining = left
		}
	}
	return RateLimitResult{Allowed: true, Remaining: remaining}
}

// CleanupExpired drops sessions whose windows have fully refilled and
// returns how many were dropped.
func (r *RateLimiter) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	cleaned := 0
	for id, entry := range r.limiters {
		if entry.idle(now) {
			delete(r.limiters, id)
			cleaned++
		}
	}
	return cleaned
}

// Len reports how many sessions have limiter state.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}
