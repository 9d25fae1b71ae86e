package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func limitedHandler(t *testing.T, rps float64, burst int) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRateLimiter(ctx, rps, burst).Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/proxy/camera?code=001000", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	h := limitedHandler(t, 0.2, 3)

	for i := range 3 {
		if w := hit(h, "203.0.113.1:1234"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	w := hit(h, "203.0.113.1:1234")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	// One token every five seconds.
	secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || secs < 1 || secs > 5 {
		t.Errorf("Retry-After = %q, want 1..5", w.Header().Get("Retry-After"))
	}

	if w := hit(h, "203.0.113.9:1234"); w.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want 200", w.Code)
	}
}

func TestRateLimiter_ZeroRateDisablesLimiting(t *testing.T) {
	h := limitedHandler(t, 0, 3)

	for i := range 10 {
		if w := hit(h, "203.0.113.1:1234"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	rl := NewRateLimiter(context.Background(), -1, 1)
	now := time.Now()
	for range 5 {
		if wait := rl.reserve("198.51.100.7", now); wait != 0 {
			t.Fatalf("reserve wait = %v, want 0 when limiting is off", wait)
		}
	}
}

func TestRateLimiter_RejectedRequestsDoNotConsumeTokens(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 1)
	now := time.Now()

	if wait := rl.reserve("198.51.100.7", now); wait != 0 {
		t.Fatalf("first reserve wait = %v", wait)
	}
	for range 5 {
		if wait := rl.reserve("198.51.100.7", now); wait <= 0 {
			t.Fatal("expected rejection while the bucket is empty")
		}
	}
	if wait := rl.reserve("198.51.100.7", now.Add(1100*time.Millisecond)); wait != 0 {
		t.Errorf("after refill wait = %v, want 0", wait)
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 10, 10)
	now := time.Now()
	rl.reserve("198.51.100.1", now.Add(-time.Hour))
	rl.reserve("198.51.100.2", now)

	if n := rl.sweep(now); n != 1 {
		t.Errorf("remaining = %d, want 1", n)
	}
}

func TestRateLimiter_NilContext(t *testing.T) {
	rl := NewRateLimiter(nil, 1, 0) //nolint:staticcheck // SA1012: nil context must not panic
	if rl.burst != 1 {
		t.Errorf("burst = %d, want 1", rl.burst)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"direct", "203.0.113.5:1234", nil, "203.0.113.5"},
		{"xff from proxy uses rightmost", "127.0.0.1:1234",
			map[string]string{"X-Forwarded-For": "203.0.113.10, 10.0.0.1"}, "10.0.0.1"},
		{"xff from public peer ignored", "203.0.113.5:1234",
			map[string]string{"X-Forwarded-For": "198.51.100.1"}, "203.0.113.5"},
		{"x-real-ip from proxy", "192.168.1.1:1234",
			map[string]string{"X-Real-Ip": "203.0.113.20"}, "203.0.113.20"},
		{"proxy without headers", "10.1.2.3:80", nil, "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := map[string]bool{
		"127.0.0.1":   true,
		"10.0.0.1":    true,
		"192.168.1.1": true,
		"172.16.0.1":  true,
		"::1":         true,
		"fe80::1":     true,
		"203.0.113.1": false,
		"8.8.8.8":     false,
		"not-an-ip":   false,
	}
	for ip, want := range tests {
		if got := isPrivateIP(ip); got != want {
			t.Errorf("isPrivateIP(%q) = %v, want %v", ip, got, want)
		}
	}
}
