package middleware

import (
	"dr-tracker-service/utils"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Per-endpoint request throttling for the HTTP surface (auth endpoints in
// particular). The refresh quota enforced by the refresh service is a
// separate mechanism; see services.Limiter.

type rateLimitEntry struct {
	count     int
	resetTime time.Time
}

var (
	rateLimitStore = make(map[string]*rateLimitEntry)
	rateLimitMutex sync.Mutex
)

// getRealIP extracts the real IP from request headers
func getRealIP(c *gin.Context) string {
	// Priority: X-Forwarded-For (first IP) > X-Real-IP > ClientIP
	forwarded := c.GetHeader("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	realIP := c.GetHeader("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	return c.ClientIP()
}

// RateLimitMiddleware throttles requests per client and endpoint.
// maxRequests: maximum requests allowed within the window
// window: time window duration
func RateLimitMiddleware(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Authenticated requests key on user ID, public ones on client IP
		subject := getRealIP(c)
		if userID := GetUserID(c); userID != 0 {
			subject = fmt.Sprintf("user:%d", userID)
		}
		key := fmt.Sprintf("%s:%s:%s", subject, c.Request.Method, c.FullPath())

		rateLimitMutex.Lock()
		defer rateLimitMutex.Unlock()

		now := time.Now()
		entry, exists := rateLimitStore[key]

		if !exists || !now.Before(entry.resetTime) {
			rateLimitStore[key] = &rateLimitEntry{
				count:     1,
				resetTime: now.Add(window),
			}
			c.Next()
			return
		}

		entry.count++
		if entry.count > maxRequests {
			utils.TooManyRequestsResponse(c, fmt.Sprintf("Too many requests. Try again after %s", entry.resetTime.Format(time.RFC3339)))
			c.Abort()
			return
		}

		c.Next()
	}
}

// CleanupRateLimitStore removes stale entries periodically (call in a goroutine)
func CleanupRateLimitStore() {
	ticker := time.NewTicker(1 * time.Hour)
	for range ticker.C {
		rateLimitMutex.Lock()
		now := time.Now()
		for key, entry := range rateLimitStore {
			if now.After(entry.resetTime.Add(1 * time.Hour)) {
				delete(rateLimitStore, key)
			}
		}
		rateLimitMutex.Unlock()
	}
}
