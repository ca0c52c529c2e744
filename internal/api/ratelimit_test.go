package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterBucketLifecycle(t *testing.T) {
	rl := newRateLimiter(1.0, 2)

	if !rl.allow("198.51.100.1") || !rl.allow("198.51.100.1") {
		t.Fatal("requests within the burst should pass")
	}
	if rl.allow("198.51.100.1") {
		t.Error("third request should be blocked once the bucket is empty")
	}
	if !rl.allow("198.51.100.2") {
		t.Error("a different IP gets its own bucket")
	}
}

func TestRateLimiterSweepDropsIdleBuckets(t *testing.T) {
	rl := newRateLimiter(1.0, 1)
	rl.allow("198.51.100.1")
	rl.allow("198.51.100.2")

	// Age one bucket past expiry and force the next allow to sweep.
	rl.buckets["198.51.100.1"].lastSeen = time.Now().Add(-limiterIdleExpiry - time.Minute)
	rl.lastSweep = time.Now().Add(-limiterSweepEvery - time.Minute)
	rl.allow("198.51.100.3")

	if _, ok := rl.buckets["198.51.100.1"]; ok {
		t.Error("idle bucket survived the sweep")
	}
	if _, ok := rl.buckets["198.51.100.2"]; !ok {
		t.Error("recently seen bucket was swept")
	}
}

func TestClientIPResolution(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{
			name:       "remote addr with port",
			remoteAddr: "203.0.113.7:41234",
			want:       "203.0.113.7",
		},
		{
			name:       "proxy headers ignored without trust",
			remoteAddr: "203.0.113.7:41234",
			headers:    map[string]string{"X-Real-IP": "198.51.100.9"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-real-ip wins when trusted",
			remoteAddr: "203.0.113.7:41234",
			headers:    map[string]string{"X-Real-IP": "198.51.100.9", "X-Forwarded-For": "192.0.2.1"},
			trustProxy: true,
			want:       "198.51.100.9",
		},
		{
			name:       "first forwarded hop",
			remoteAddr: "203.0.113.7:41234",
			headers:    map[string]string{"X-Forwarded-For": "192.0.2.1, 10.0.0.1"},
			trustProxy: true,
			want:       "192.0.2.1",
		},
		{
			name:       "non-ip header text falls through",
			remoteAddr: "203.0.113.7:41234",
			headers:    map[string]string{"X-Real-IP": "not-an-ip", "X-Forwarded-For": "also bogus"},
			trustProxy: true,
			want:       "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/models", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := clientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
