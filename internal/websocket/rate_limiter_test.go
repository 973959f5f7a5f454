package websocket

import "testing"

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	limiter := NewRateLimiter()

	for i := 0; i < rateLimitMax; i++ {
		if !limiter.Allow("conn-1") {
			t.Fatalf("event %d should be allowed", i+1)
		}
	}
	if limiter.Allow("conn-1") {
		t.Errorf("event %d should be rejected", rateLimitMax+1)
	}
}

func TestRateLimiter_ConnectionsAreIndependent(t *testing.T) {
	limiter := NewRateLimiter()

	for i := 0; i < rateLimitMax; i++ {
		limiter.Allow("busy")
	}
	if limiter.Allow("busy") {
		t.Fatal("busy connection should be limited")
	}
	if !limiter.Allow("quiet") {
		t.Error("an unrelated connection must not be affected")
	}
}

func TestRateLimiter_ForgetResetsState(t *testing.T) {
	limiter := NewRateLimiter()

	for i := 0; i < rateLimitMax; i++ {
		limiter.Allow("conn-1")
	}
	limiter.Forget("conn-1")

	if !limiter.Allow("conn-1") {
		t.Error("forgotten connection should start a fresh window")
	}
}
