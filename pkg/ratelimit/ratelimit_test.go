package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestLimiter_Allow(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	l := New(2)
	l.Now = fixedClock(now)

	if !l.Allow("k1", 24) || !l.Allow("k1", 24) {
		t.Fatal("Expected the first two requests to pass")
	}
	if l.Allow("k1", 24) {
		t.Error("Expected third request to be limited")
	}
	if !l.Allow("k2", 24) {
		t.Error("Expected other keys to have their own bucket")
	}

	// 24 per day refills one token per hour
	l.Now = fixedClock(now.Add(time.Hour))
	if !l.Allow("k1", 24) {
		t.Error("Expected a token after one hour")
	}

	if l.Allow("k3", 0) {
		t.Error("Expected zero allowance to reject")
	}
}

func TestLimiter_AllowanceChangeResetsBucket(t *testing.T) {
	l := New(1)
	l.Now = fixedClock(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))

	l.Allow("k1", 10)
	if l.Allow("k1", 10) {
		t.Fatal("Expected bucket to be empty")
	}
	if !l.Allow("k1", 20) {
		t.Error("Expected a fresh bucket after the allowance changed")
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	l := New(5)
	l.Now = fixedClock(now)
	l.Allow("old", 100)

	l.Now = fixedClock(now.Add(2 * time.Hour))
	l.Allow("new", 100)

	if removed := l.Cleanup(time.Hour); removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if len(l.visitors) != 1 {
		t.Errorf("Expected 1 remaining visitor, got %d", len(l.visitors))
	}
}

func TestLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := New(1)
	r := gin.New()
	r.Use(l.Middleware(func(c *gin.Context) (string, int, bool) {
		key := c.GetHeader("X-Key")
		return key, 1000, key != ""
	}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := []int{}
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Key", "abc")
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("Expected 200 then 429, got %v", codes)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected unkeyed request to pass, got %d", w.Code)
	}
}
