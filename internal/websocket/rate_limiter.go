package websocket

import (
	"sync"
	"time"
)

// RateLimiter caps inbound patch frames per participant. Keystroke-grained
// editors send bursts, so the ceiling is generous; it exists to contain a
// runaway client, not to shape normal typing.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*clientLimit
}

type clientLimit struct {
	frameCount  int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing limit frames per window.
// Non-positive arguments fall back to 600 frames per minute.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 600
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientLimit),
	}
}

// Allow reports whether the participant may send another frame.
func (rl *RateLimiter) Allow(participantID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.clients[participantID]
	if !exists {
		rl.clients[participantID] = &clientLimit{frameCount: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= rl.window {
		limit.frameCount = 1
		limit.windowStart = now
		return true
	}

	if limit.frameCount >= rl.limit {
		return false
	}

	limit.frameCount++
	return true
}

// Cleanup removes stale client entries. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for participantID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*rl.window {
			delete(rl.clients, participantID)
		}
	}
}
