package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tradeops/internal/monitor"
)

// limiterRegistry hands out one token bucket per client IP. Entries idle
// longer than the TTL are pruned on the next lookup, so no background
// goroutine is needed.
type limiterRegistry struct {
	mu      sync.Mutex
	perIP   map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	ttl     time.Duration
	swept   time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterRegistry(rps rate.Limit, burst int, ttl time.Duration) *limiterRegistry {
	return &limiterRegistry{
		perIP: make(map[string]*limiterEntry),
		rps:   rps,
		burst: burst,
		ttl:   ttl,
		swept: time.Now(),
	}
}

func (r *limiterRegistry) get(ip string) *rate.Limiter {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.swept) > r.ttl {
		for key, e := range r.perIP {
			if now.Sub(e.lastSeen) > r.ttl {
				delete(r.perIP, key)
			}
		}
		r.swept = now
	}

	e, ok := r.perIP[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(r.rps, r.burst)}
		r.perIP[ip] = e
	}
	e.lastSeen = now
	return e.limiter
}

// RateLimitMiddleware rejects clients that exceed 20 requests per second
// (burst 50) with 429. Each router instance keeps its own registry.
func RateLimitMiddleware() gin.HandlerFunc {
	registry := newLimiterRegistry(20, 50, 5*time.Minute)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !registry.get(ip).Allow() {
			log.Printf("api: rate limit exceeded for %s", ip)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":  "RATE_LIMITED",
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// CORSMiddleware allows the browser dashboard to call the API from any
// origin and short-circuits preflight requests.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware tags every request with an id, honoring one the client
// already set so callers can correlate their own logs with ours.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("RequestID", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// TimeoutMiddleware bounds handler time. The handler runs in its own
// goroutine so the timeout can fire even while it is blocked.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		panicked := make(chan any, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicked <- p
				}
			}()
			c.Next()
			close(done)
		}()

		select {
		case <-done:
		case p := <-panicked:
			log.Printf("api: handler panic: %v", p)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":  "INTERNAL_ERROR",
				"error": "internal server error",
			})
		case <-ctx.Done():
			log.Printf("api: request timeout: %s %s", c.Request.Method, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
				"code":  "TIMEOUT",
				"error": "request took too long to process",
			})
		}
	}
}

// RequestLogger writes one line per request and feeds the API counters and
// latency histogram.
func RequestLogger(metrics *monitor.SystemMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if metrics != nil {
			metrics.IncrementAPI()
			metrics.APILatency.RecordDuration(latency)
			if status >= 400 {
				metrics.IncrementAPIErrors()
			}
		}

		log.Printf("api: %s | %s %s | %d | %v | %s",
			shortID(c.GetString("RequestID")), method, path, status, latency, c.ClientIP())
	}
}

// shortID trims a request id for log lines. Client-supplied ids may be any
// length, including shorter than the display width.
func shortID(id string) string {
	if id == "" {
		return "unknown"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
