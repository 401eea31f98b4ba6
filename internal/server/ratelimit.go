package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig holds per-client request limits. A zero limit disables
// that particular check.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// RateLimiter tracks fixed minute, hour and day windows per client.
type RateLimiter struct {
	mu sync.Mutex

	limits RateLimitConfig
	now    func() time.Time

	clients map[string]*clientUsage
}

type clientUsage struct {
	minuteStart time.Time
	minuteCount int

	hourStart time.Time
	hourCount int

	dayStart time.Time
	dayCount int
	dayBytes int64
	lastSeen time.Time
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	RequestsThisMinute int
	RequestsThisHour   int
	RequestsToday      int
	BytesToday         int64
	LastSeen           time.Time
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(limits RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		now:     time.Now,
		clients: make(map[string]*clientUsage),
	}
}

// CheckRateLimit records a request of dataSize bytes from clientID, or
// returns a *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) CheckRateLimit(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.client(clientID, now)
	u.roll(now)

	if err := rl.checkWindows(u, now); err != nil {
		return err
	}
	if err := rl.checkQuotas(u, dataSize); err != nil {
		return err
	}

	u.minuteCount++
	u.hourCount++
	u.dayCount++
	u.dayBytes += dataSize
	u.lastSeen = now
	return nil
}

func (rl *RateLimiter) checkWindows(u *clientUsage, now time.Time) error {
	if rl.limits.RequestsPerMinute > 0 && u.minuteCount >= rl.limits.RequestsPerMinute {
		return &RateLimitError{
			Type:       "minute",
			Limit:      rl.limits.RequestsPerMinute,
			RetryAfter: u.minuteStart.Add(time.Minute).Sub(now),
		}
	}
	if rl.limits.RequestsPerHour > 0 && u.hourCount >= rl.limits.RequestsPerHour {
		return &RateLimitError{
			Type:       "hour",
			Limit:      rl.limits.RequestsPerHour,
			RetryAfter: u.hourStart.Add(time.Hour).Sub(now),
		}
	}
	return nil
}

func (rl *RateLimiter) checkQuotas(u *clientUsage, dataSize int64) error {
	resets := u.dayStart.AddDate(0, 0, 1)
	if rl.limits.MaxRequestsPerDay > 0 && u.dayCount >= rl.limits.MaxRequestsPerDay {
		return &QuotaExceededError{
			Type:   "requests",
			Limit:  int64(rl.limits.MaxRequestsPerDay),
			Used:   int64(u.dayCount),
			Resets: resets,
		}
	}
	if rl.limits.MaxDataPerDay > 0 && u.dayBytes+dataSize > rl.limits.MaxDataPerDay {
		return &QuotaExceededError{
			Type:   "data",
			Limit:  rl.limits.MaxDataPerDay,
			Used:   u.dayBytes,
			Resets: resets,
		}
	}
	return nil
}

func (rl *RateLimiter) client(clientID string, now time.Time) *clientUsage {
	u, ok := rl.clients[clientID]
	if !ok {
		u = &clientUsage{}
		u.roll(now)
		rl.clients[clientID] = u
	}
	return u
}

// roll starts new windows once the current ones have elapsed. Days follow
// the local calendar.
func (u *clientUsage) roll(now time.Time) {
	if u.minuteStart.IsZero() || now.Sub(u.minuteStart) >= time.Minute {
		u.minuteStart = now.Truncate(time.Minute)
		u.minuteCount = 0
	}
	if u.hourStart.IsZero() || now.Sub(u.hourStart) >= time.Hour {
		u.hourStart = now.Truncate(time.Hour)
		u.hourCount = 0
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !u.dayStart.Equal(day) {
		u.dayStart = day
		u.dayCount = 0
		u.dayBytes = 0
	}
}

// GetUsage returns current usage for a client.
func (rl *RateLimiter) GetUsage(clientID string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[clientID]
	if !ok {
		return Usage{}
	}
	u.roll(rl.now())
	return Usage{
		RequestsThisMinute: u.minuteCount,
		RequestsThisHour:   u.hourCount,
		RequestsToday:      u.dayCount,
		BytesToday:         u.dayBytes,
		LastSeen:           u.lastSeen,
	}
}

// Prune forgets clients not seen for longer than idle and returns how many
// were removed.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for id, u := range rl.clients {
		if now.Sub(u.lastSeen) > idle {
			delete(rl.clients, id)
			removed++
		}
	}
	return removed
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a daily quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
