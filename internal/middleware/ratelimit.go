package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 3 * time.Minute
	limiterIdleAfter  = 5 * time.Minute
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ClientIP charges requests to the caller's address.
func ClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// UserOrIP charges authenticated requests to the user, so operators behind
// one NAT do not share a budget. Anonymous requests fall back to the IP.
func UserOrIP(c *gin.Context) string {
	if id := GetUserID(c); id != 0 {
		return "user:" + strconv.FormatUint(uint64(id), 10)
	}
	return ClientIP(c)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key. Idle buckets are swept in the
// background until Stop is called.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	key     KeyFunc
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewRateLimiter allows rps requests per second with the given burst per
// key. A nil key charges by client IP.
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if key == nil {
		key = ClientIP
	}
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		key:     key,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// sweep drops buckets idle for longer than limiterIdleAfter.
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-limiterIdleAfter)
	for k, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, k)
		}
	}
}

// Stop ends the background sweep.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

// Middleware rejects requests over budget with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.get(rl.key(c))
		if !limiter.Allow() {
			retry := math.Ceil(1 / float64(rl.rps))
			if retry < 1 || math.IsInf(retry, 0) {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(int(retry)))
			response.Error(c, response.NewTooManyRequests("too many requests, please try again later"))
			c.Abort()
			return
		}
		c.Next()
	}
}
