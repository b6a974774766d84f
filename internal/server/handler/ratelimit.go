package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterPool tracks one token bucket per client IP and evicts buckets that
// have been idle for longer than staleAfter.
type limiterPool struct {
	mu         sync.Mutex
	buckets    map[string]*rate.Limiter
	seen       map[string]time.Time
	rps        rate.Limit
	burst      int
	staleAfter time.Duration
}

func newLimiterPool(rps, burst int) *limiterPool {
	p := &limiterPool{
		buckets:    make(map[string]*rate.Limiter),
		seen:       make(map[string]time.Time),
		rps:        rate.Limit(rps),
		burst:      burst,
		staleAfter: 10 * time.Minute,
	}
	go p.evictLoop()
	return p
}

func (p *limiterPool) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		p.mu.Lock()
		for ip, last := range p.seen {
			if time.Since(last) > p.staleAfter {
				delete(p.buckets, ip)
				delete(p.seen, ip)
			}
		}
		p.mu.Unlock()
	}
}

func (p *limiterPool) allow(ip string) bool {
	p.mu.Lock()
	b, ok := p.buckets[ip]
	if !ok {
		b = rate.NewLimiter(p.rps, p.burst)
		p.buckets[ip] = b
	}
	p.seen[ip] = time.Now()
	p.mu.Unlock()
	return b.Allow()
}

// RateLimiter returns a Gin middleware enforcing per-IP token-bucket rate
// limiting. rps is the steady-state requests per second; burst is the
// maximum burst size.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	pool := newLimiterPool(rps, burst)
	return func(c *gin.Context) {
		if !pool.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
