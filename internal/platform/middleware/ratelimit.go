package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"nalanda-backend/internal/platform/apierr"
)

const (
	limiterIdle = 3 * time.Minute
	pruneEvery  = time.Minute
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit applies a token bucket per client IP. Idle clients are pruned
// while serving requests; no goroutine is started.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	var (
		mu        sync.Mutex
		clients   = make(map[string]*client)
		lastPrune = time.Now()
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if now.Sub(lastPrune) > pruneEvery {
			for k, v := range clients {
				if now.Sub(v.lastSeen) > limiterIdle {
					delete(clients, k)
				}
			}
			lastPrune = now
		}
		cl, ok := clients[ip]
		if !ok {
			cl = &client{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			clients[ip] = cl
		}
		cl.lastSeen = now
		allowed := cl.limiter.AllowN(now, 1)
		mu.Unlock()

		if !allowed {
			apierr.Respond(c, &apierr.APIError{Code: apierr.CodeTooManyRequests, Message: "rate limit exceeded, try again later"})
			return
		}
		c.Next()
	}
}
