package websocket

import (
	"sync"
	"time"
)

const (
	rateLimitWindow = time.Minute
	rateLimitMax    = 100
)

// RateLimiter caps events per connection to 100 per minute.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimit
}

type clientLimit struct {
	eventCount  int
	windowStart time.Time
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimit),
	}
}

// Allow reports whether the connection may dispatch another event.
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.clients[connID]
	if !exists {
		rl.clients[connID] = &clientLimit{eventCount: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= rateLimitWindow {
		limit.eventCount = 1
		limit.windowStart = now
		return true
	}

	if limit.eventCount >= rateLimitMax {
		return false
	}

	limit.eventCount++
	return true
}

// Forget drops tracking state for a closed connection.
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, connID)
}
