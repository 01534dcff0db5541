package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 3})
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request beyond burst allowed")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("other client affected by first client's bucket")
	}
	if reset := rl.Reset("10.0.0.1"); !reset.After(time.Now()) {
		t.Errorf("Reset() = %v, want a future time", reset)
	}
}

func TestRateLimiterDefaultBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60})
	defer rl.Stop()
	if got := rl.Remaining("10.0.0.1"); got != 10 {
		t.Errorf("Remaining() = %d, want default burst 10", got)
	}
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 1})
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.prune(time.Now().Add(10 * time.Minute))

	rl.mu.RLock()
	n := len(rl.buckets)
	rl.mu.RUnlock()
	if n != 0 {
		t.Errorf("%d buckets left after prune", n)
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 1})
	defer rl.Stop()
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/units", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("X-RateLimit-Limit = %q", w.Header().Get("X-RateLimit-Limit"))
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	expectError(t, w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED")
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"remote addr", "", "", "192.0.2.1:5000", "192.0.2.1"},
		{"forwarded leftmost", "203.0.113.5, 10.0.0.1", "", "192.0.2.1:5000", "203.0.113.5"},
		{"invalid forwarded falls back", "not-an-ip", "198.51.100.7", "192.0.2.1:5000", "198.51.100.7"},
		{"ipv6", "", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"garbage", "", "", "garbage", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
