package auth

import (
	"log/slog"
	"sync"
	"time"
)

const (
	maxLoginFailures   = 5                // Max failures before blocking
	loginBlockDuration = 15 * time.Minute // How long to block
	loginFailureWindow = 5 * time.Minute  // Window for counting failures
)

// loginFailure tracks failed login attempts of one client
type loginFailure struct {
	count     int
	lastFail  time.Time
	blockedAt time.Time
}

// LoginThrottle blocks clients that keep failing to log in
type LoginThrottle struct {
	mu       sync.Mutex
	failures map[string]*loginFailure
	logger   *slog.Logger
	now      func() time.Time
}

// NewLoginThrottle creates an empty throttle
func NewLoginThrottle(logger *slog.Logger) *LoginThrottle {
	return &LoginThrottle{
		failures: make(map[string]*loginFailure),
		logger:   logger,
		now:      time.Now,
	}
}

// Blocked checks if the client is blocked due to too many failures
func (t *LoginThrottle) Blocked(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.failures[ip]
	return ok && !f.blockedAt.IsZero() && t.now().Sub(f.blockedAt) < loginBlockDuration
}

// Failure records a failed login and reports whether the client is now
// blocked
func (t *LoginThrottle) Failure(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.prune(now)

	f, ok := t.failures[ip]
	if !ok {
		f = &loginFailure{}
		t.failures[ip] = f
	}

	// Reset the counter when the window has passed
	if now.Sub(f.lastFail) > loginFailureWindow {
		f.count = 0
		f.blockedAt = time.Time{}
	}

	f.count++
	f.lastFail = now

	if f.count >= maxLoginFailures {
		f.blockedAt = now
		t.logger.Warn("client blocked due to login failures", "ip", ip, "failures", f.count)
		return true
	}
	return false
}

// Reset clears the record on a successful login
func (t *LoginThrottle) Reset(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, ip)
}

// prune drops records that can no longer block anyone
func (t *LoginThrottle) prune(now time.Time) {
	for ip, f := range t.failures {
		if now.Sub(f.lastFail) > loginFailureWindow && now.Sub(f.blockedAt) > loginBlockDuration {
			delete(t.failures, ip)
		}
	}
}
