package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const day = 24 * time.Hour

// KeyFunc identifies the caller and its daily request allowance. ok is false
// for requests that are not subject to limiting.
type KeyFunc func(c *gin.Context) (key string, perDay int, ok bool)

type visitor struct {
	limiter *rate.Limiter
	perDay  int
	seen    time.Time
}

// Limiter keeps one token bucket per API key
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	// Burst caps the bucket size; the daily allowance is used when smaller
	Burst int
	Now   func() time.Time
}

// New creates a limiter with the given burst size
func New(burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{visitors: make(map[string]*visitor), Burst: burst, Now: time.Now}
}

// Allow spends one token for key. A changed allowance replaces the bucket.
func (l *Limiter) Allow(key string, perDay int) bool {
	if perDay <= 0 {
		return false
	}
	now := l.Now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok || v.perDay != perDay {
		burst := l.Burst
		if perDay < burst {
			burst = perDay
		}
		v = &visitor{limiter: rate.NewLimiter(rate.Every(day/time.Duration(perDay)), burst), perDay: perDay}
		l.visitors[key] = v
	}
	v.seen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Cleanup forgets buckets idle for longer than idle and returns how many
func (l *Limiter) Cleanup(idle time.Duration) int {
	cutoff := l.Now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, v := range l.visitors {
		if v.seen.Before(cutoff) {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

// Middleware rejects callers that exhausted their allowance with 429
func (l *Limiter) Middleware(keyFn KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, perDay, ok := keyFn(c)
		if !ok {
			c.Next()
			return
		}
		if !l.Allow(key, perDay) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
