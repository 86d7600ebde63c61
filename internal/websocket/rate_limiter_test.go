package websocket

import (
	"testing"
	"time"
)

func TestRateLimiter_EnforcesLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("Frame %d should be allowed", i+1)
		}
	}
	if rl.Allow("alice") {
		t.Error("Frame over the limit should be rejected")
	}

	// Limits are per participant.
	if !rl.Allow("bob") {
		t.Error("Other participants are not affected by alice's limit")
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	if !rl.Allow("alice") {
		t.Fatal("First frame should be allowed")
	}
	if rl.Allow("alice") {
		t.Fatal("Second frame in the window should be rejected")
	}

	time.Sleep(25 * time.Millisecond)

	if !rl.Allow("alice") {
		t.Error("Frame after window reset should be allowed")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10*time.Millisecond)

	rl.Allow("alice")
	time.Sleep(60 * time.Millisecond)
	rl.Cleanup()

	rl.mu.Lock()
	_, exists := rl.clients["alice"]
	rl.mu.Unlock()
	if exists {
		t.Error("Stale client entry survived cleanup")
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.limit != 600 || rl.window != time.Minute {
		t.Errorf("Defaults = %d/%v, want 600/minute", rl.limit, rl.window)
	}
}
