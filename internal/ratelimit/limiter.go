// Package ratelimit provides the per-user ingress message budget.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures the fixed-window limiter.
type Config struct {
	// MessagesPerWindow is the number of messages allowed per window.
	MessagesPerWindow int `yaml:"messages_per_window"`
	// Window is the fixed window length.
	Window time.Duration `yaml:"window"`
	// Enabled controls whether limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default ingress budget: 20 messages per minute.
func DefaultConfig() Config {
	return Config{
		MessagesPerWindow: 20,
		Window:            time.Minute,
		Enabled:           true,
	}
}

type window struct {
	start time.Time
	count int
}

// Limiter tracks a fixed counting window per user. Over-limit users are
// rejected until their window rolls over.
type Limiter struct {
	mu      sync.Mutex
	config  Config
	windows map[int64]*window
	now     func() time.Time
	maxKeys int
}

// NewLimiter creates a limiter with the given configuration.
func NewLimiter(config Config) *Limiter {
	if config.MessagesPerWindow <= 0 {
		config.MessagesPerWindow = 20
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &Limiter{
		config:  config,
		windows: make(map[int64]*window),
		now:     time.Now,
		maxKeys: 10000,
	}
}

// Allow reports whether the user may send another message now, consuming
// one slot if so.
func (l *Limiter) Allow(userID int64) bool {
	if !l.config.Enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[userID]
	if !ok || now.Sub(w.start) >= l.config.Window {
		if len(l.windows) >= l.maxKeys {
			l.prune(now)
		}
		l.windows[userID] = &window{start: now, count: 1}
		return true
	}
	if w.count >= l.config.MessagesPerWindow {
		return false
	}
	w.count++
	return true
}

// Cooldown returns how long the user must wait before the window resets.
func (l *Limiter) Cooldown(userID int64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[userID]
	if !ok {
		return 0
	}
	remaining := l.config.Window - l.now().Sub(w.start)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the window for a user.
func (l *Limiter) Reset(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, userID)
}

// prune drops expired windows (must be called with the lock held).
func (l *Limiter) prune(now time.Time) {
	for id, w := range l.windows {
		if now.Sub(w.start) >= l.config.Window {
			delete(l.windows, id)
		}
	}
}
