// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Checker is the limiter surface used by the form guard and admin login.
// Implementations must be safe for concurrent use.
type Checker interface {
	// Allow records one attempt for key and reports whether it is within
	// the limit.
	Allow(ctx context.Context, key string) (bool, error)
	// Reset clears the attempts recorded for key.
	Reset(ctx context.Context, key string) error
}

// Limiter provides in-process rate limiting using a fixed window per key.
// It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int           // max requests per window
	duration time.Duration // window duration
	cleanup  time.Duration // how often to clean old entries
	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	count     int
	expiresAt time.Time
}

// New creates a new rate limiter.
// limit: maximum requests allowed per duration
// duration: the time window for counting requests
func New(limit int, duration time.Duration) *Limiter {
	l := &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		cleanup:  duration * 2, // cleanup entries older than 2x duration
		stop:     make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// AllowKey checks if a request from the given key should be allowed.
// Returns true if allowed, false if rate limited.
func (l *Limiter) AllowKey(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, exists := l.windows[key]

	// If no window exists or window expired, create new one
	if !exists || now.After(w.expiresAt) {
		l.windows[key] = &window{
			count:     1,
			expiresAt: now.Add(l.duration),
		}
		return true
	}

	// Window still active - check limit
	if w.count >= l.limit {
		return false
	}

	w.count++
	return true
}

// Allow implements Checker.
func (l *Limiter) Allow(_ context.Context, key string) (bool, error) {
	return l.AllowKey(key), nil
}

// Remaining returns how many requests are left for this key in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, exists := l.windows[key]

	if !exists || now.After(w.expiresAt) {
		return l.limit
	}

	remaining := l.limit - w.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the rate limit for a specific key.
func (l *Limiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
	return nil
}

// Close stops the background cleanup goroutine.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// cleanupLoop periodically removes expired entries to prevent memory leaks.
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
		l.mu.Lock()
		now := time.Now()
		for key, w := range l.windows {
			if now.After(w.expiresAt) {
				delete(l.windows, key)
			}
		}
		l.mu.Unlock()
	}
}

// LoginLimiter provides specialized rate limiting for admin login attempts.
// It tracks both IP-based and name-based limits to prevent:
// - Distributed attacks from multiple IPs
// - Targeted attacks on the admin account
type LoginLimiter struct {
	ipLimiter   Checker
	nameLimiter Checker
}

// NewLoginLimiter creates a limiter configured for login protection.
// Defaults: 10 attempts per IP per minute, 5 attempts per name per 5 minutes.
func NewLoginLimiter() *LoginLimiter {
	return &LoginLimiter{
		ipLimiter:   New(10, time.Minute),
		nameLimiter: New(5, 5*time.Minute),
	}
}

// NewLoginLimiterWith creates a login limiter from existing checkers.
func NewLoginLimiterWith(ip, name Checker) *LoginLimiter {
	return &LoginLimiter{ipLimiter: ip, nameLimiter: name}
}

// Check verifies if a login attempt should be allowed.
// Returns (allowed, reason) where reason explains why it was blocked.
// Limiter errors fail open; login still requires the password.
func (ll *LoginLimiter) Check(ctx context.Context, ip, name string) (bool, string) {
	if ok, err := ll.ipLimiter.Allow(ctx, "login:ip:"+ip); err == nil && !ok {
		return false, "Too many login attempts. Please wait a minute before trying again."
	}

	if name != "" {
		key := "login:name:" + strings.ToLower(strings.TrimSpace(name))
		if ok, err := ll.nameLimiter.Allow(ctx, key); err == nil && !ok {
			return false, "Too many login attempts for this account. Please wait a few minutes."
		}
	}

	return true, ""
}

// ResetName clears the rate limit for a name after successful login.
func (ll *LoginLimiter) ResetName(ctx context.Context, name string) {
	if name != "" {
		_ = ll.nameLimiter.Reset(ctx, "login:name:"+strings.ToLower(strings.TrimSpace(name)))
	}
}
