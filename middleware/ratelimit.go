package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterIdle  = 10 * time.Minute
	limiterSweep = 5 * time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimit provides per-IP token-bucket rate limiting with r requests per
// second and burst b. Rejected requests get 429, the rate_limited code and
// a Retry-After header.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	var limiters sync.Map // ip → *ipLimiter

	go func() {
		ticker := time.NewTicker(limiterSweep)
		defer ticker.Stop()
		for now := range ticker.C {
			cutoff := now.Add(-limiterIdle).UnixNano()
			limiters.Range(func(k, v interface{}) bool {
				if v.(*ipLimiter).lastSeen.Load() < cutoff {
					limiters.Delete(k)
				}
				return true
			})
		}
	}()

	return func(c *gin.Context) {
		v, _ := limiters.LoadOrStore(c.ClientIP(), &ipLimiter{limiter: rate.NewLimiter(r, b)})
		il := v.(*ipLimiter)
		now := time.Now()
		il.lastSeen.Store(now.UnixNano())

		if il.limiter.AllowN(now, 1) {
			c.Next()
			return
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter(r)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "rate limit exceeded",
			"code":  "rate_limited",
		})
	}
}

// retryAfter is the whole seconds until one token refills, at least 1.
func retryAfter(r rate.Limit) int {
	if r <= 0 || r == rate.Inf {
		return 1
	}
	secs := math.Ceil(1 / float64(r))
	if secs > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Max(secs, 1))
}
