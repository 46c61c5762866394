package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func serve(t *testing.T, h echo.HandlerFunc, setup func(echo.Context)) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/normalize", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if setup != nil {
		setup(c)
	}
	return rec, h(c)
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(okHandler)

	for i := 0; i < 5; i++ {
		rec, err := serve(t, h, nil)
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit 10, got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	limited := 0
	h := RateLimit(RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         2,
		OnLimited:         func(echo.Context) { limited++ },
	})(okHandler)

	for i := 0; i < 2; i++ {
		if _, err := serve(t, h, nil); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	rec, err := serve(t, h, nil)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	retry, convErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if convErr != nil || retry < 1 {
		t.Errorf("expected positive Retry-After, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0")
	}
	if limited != 1 {
		t.Errorf("expected OnLimited once, got %d", limited)
	}
}

func TestRateLimit_SeparateBucketsPerSubject(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler)
	as := func(sub string) func(echo.Context) {
		return func(c echo.Context) { c.Set("auth_subject", sub) }
	}

	if _, err := serve(t, h, as("alice")); err != nil {
		t.Fatalf("alice first request: %v", err)
	}
	if _, err := serve(t, h, as("bob")); err != nil {
		t.Fatalf("bob should have his own bucket: %v", err)
	}
	if _, err := serve(t, h, as("alice")); err == nil {
		t.Fatal("expected alice to be limited")
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	start := time.Now()
	b := newTokenBucket(2, 1, start)

	if ok, _ := b.take(start); !ok {
		t.Fatal("expected first take to succeed")
	}
	if ok, _ := b.take(start); ok {
		t.Fatal("expected empty bucket")
	}
	if ok, _ := b.take(start.Add(600 * time.Millisecond)); !ok {
		t.Fatal("expected bucket to refill after 600ms at 2 rps")
	}
}

func TestRateLimiterStore_EvictsIdleBuckets(t *testing.T) {
	s := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	start := time.Now()
	s.bucket("old", start)

	later := start.Add(2 * bucketIdleTTL)
	s.bucket("new", later)

	if _, ok := s.buckets["old"]; ok {
		t.Error("expected idle bucket to be evicted")
	}
	if _, ok := s.buckets["new"]; !ok {
		t.Error("expected new bucket to exist")
	}
}
