package adsb

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected time.Duration
	}{
		{"Absent", nil, 0},
		{"Delay seconds", map[string]string{"Retry-After": "30"}, 30 * time.Second},
		{"Zero", map[string]string{"Retry-After": "0"}, 0},
		{"Negative", map[string]string{"Retry-After": "-10"}, 0},
		{"Date in the past", map[string]string{"Retry-After": "Wed, 21 Oct 2015 07:28:00 GMT"}, 0},
		{"Garbage", map[string]string{"Retry-After": "soon"}, 0},
		{"OpenSky header", map[string]string{"X-Rate-Limit-Retry-After-Seconds": "120"}, 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			if got := parseRetryAfter(h); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}

	t.Run("Date in the future", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", time.Now().Add(time.Minute).UTC().Format(http.TimeFormat))
		if got := parseRetryAfter(h); got < 55*time.Second || got > time.Minute {
			t.Errorf("Expected about a minute, got %v", got)
		}
	})
}

func TestExtractRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit-Limit", "100")
	h.Set("X-Rate-Limit-Remaining", "25")
	h.Set("X-Rate-Limit-Reset", "1717243200")
	got := extractRateLimitHeaders(h)
	if got.Limit != 100 || got.Remaining != 25 || !got.Reset.Equal(time.Unix(1717243200, 0)) {
		t.Errorf("Unexpected headers: %+v", got)
	}

	h = http.Header{}
	h.Set("X-RateLimit-Limit", "4000")
	h.Set("X-RateLimit-Remaining", "3999")
	if got := extractRateLimitHeaders(h); got.Limit != 4000 || got.Remaining != 3999 {
		t.Errorf("Expected the X-RateLimit spelling to be read, got %+v", got)
	}

	if got := extractRateLimitHeaders(http.Header{}); got.Limit != -1 || got.Remaining != -1 || !got.Reset.IsZero() {
		t.Errorf("Expected unknown limits, got %+v", got)
	}
}

func TestRateLimitError(t *testing.T) {
	err := &RateLimitError{StatusCode: 429, RetryAfter: 30 * time.Second, Message: "Rate limit exceeded"}
	if err.Error() != "Rate limit exceeded (retry after 30s)" {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if got := (&RateLimitError{Message: "Rate limit exceeded"}).Error(); got != "Rate limit exceeded" {
		t.Errorf("Unexpected message %q", got)
	}

	wrapped := fmt.Errorf("poll failed: %w", err)
	if rle, ok := IsRateLimitError(wrapped); !ok || rle.RetryAfter != 30*time.Second {
		t.Error("Expected a wrapped RateLimitError to be found")
	}
	if _, ok := IsRateLimitError(fmt.Errorf("dial tcp: refused")); ok {
		t.Error("Expected plain errors not to match")
	}
}

func TestStatusError(t *testing.T) {
	if got := (&StatusError{StatusCode: 503}).Error(); got != "API returned status 503" {
		t.Errorf("Unexpected message %q", got)
	}
	if got := (&StatusError{StatusCode: 400, Body: "bad lat"}).Error(); got != "API returned status 400: bad lat" {
		t.Errorf("Unexpected message %q", got)
	}
}

func TestNewLimiter(t *testing.T) {
	unlimited := newLimiter(0)
	for i := 0; i < 5; i++ {
		if !unlimited.Allow() {
			t.Fatal("Expected no limit for zero spacing")
		}
	}

	spaced := newLimiter(60)
	if !spaced.Allow() {
		t.Fatal("Expected the first call through")
	}
	if spaced.Allow() {
		t.Error("Expected the second call to wait")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := spaced.Wait(ctx); err == nil {
		t.Error("Expected a cancelled wait to fail")
	}
}
