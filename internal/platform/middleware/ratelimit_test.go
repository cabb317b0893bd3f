package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/platform/auth"
)

func rateLimited(t *testing.T, h echo.HandlerFunc, subject string) int {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	if subject != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), subject, nil, nil))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		if he, ok := err.(*echo.HTTPError); ok {
			return he.Code
		}
		t.Fatalf("unexpected error: %v", err)
	}
	return rec.Code
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	for i := 0; i < 5; i++ {
		if code := rateLimited(t, h, ""); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, code)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	rateLimited(t, h, "")
	rateLimited(t, h, "")
	if code := rateLimited(t, h, ""); code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
}

func TestRateLimit_KeyedBySubject(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if code := rateLimited(t, h, "alice"); code != http.StatusOK {
		t.Fatalf("alice first request: %d", code)
	}
	if code := rateLimited(t, h, "bob"); code != http.StatusOK {
		t.Errorf("bob should have his own bucket, got %d", code)
	}
	if code := rateLimited(t, h, "alice"); code != http.StatusTooManyRequests {
		t.Errorf("alice should be limited, got %d", code)
	}
}

func TestRateLimiterStore_SweepsIdleBuckets(t *testing.T) {
	s := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	s.getBucket("old").lastRefill = time.Now().Add(-2 * time.Minute)
	s.lastSweep = time.Now().Add(-2 * time.Minute)

	s.getBucket("new")
	if _, ok := s.buckets["old"]; ok {
		t.Error("expected idle bucket to be evicted")
	}
	if _, ok := s.buckets["new"]; !ok {
		t.Error("expected new bucket to exist")
	}
}
