package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"whatsapp-agent/backend/pkg/errors"
	"whatsapp-agent/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_rate_limited_total",
	Help: "Requests rejected by the rate limiter",
}, []string{"route"})

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration is how long an idle client's limiter is kept
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request. Defaults to KeyBySubjectOrIP.
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimiterOptions returns the limits applied when none are configured
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:          20,
		Burst:          40,
		ExpiryDuration: time.Hour,
		KeyFunc:        KeyBySubjectOrIP,
	}
}

// KeyBySubjectOrIP limits authenticated admin callers by token subject and everyone else by client IP
func KeyBySubjectOrIP(c *gin.Context) string {
	if subject := c.GetString("subject"); subject != "" {
		return "sub:" + subject
	}
	return "ip:" + c.ClientIP()
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	mu        sync.Mutex
	options   RateLimiterOptions
	clients   map[string]*client
	lastSweep time.Time
	logger    *logger.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(logger *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = KeyBySubjectOrIP
	}
	if opts.ExpiryDuration <= 0 {
		opts.ExpiryDuration = time.Hour
	}

	return &RateLimiter{
		options:   opts,
		clients:   make(map[string]*client),
		lastSweep: time.Now(),
		logger:    logger,
	}
}

// Middleware rejects requests beyond the key's budget with 429
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)
		limiter := r.limiterFor(key, time.Now())

		reservation := limiter.Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			rateLimitedCounter.WithLabelValues(route).Inc()
			r.logger.Warn("Rate limit exceeded", "client", key, "path", c.Request.URL.Path)

			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			c.Header("X-RateLimit-Limit", strconv.Itoa(r.options.Burst))
			c.Error(errors.NewTooManyRequestsError("RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later."))
			c.Abort()
			return
		}

		c.Next()
	}
}

// Clients returns the number of tracked keys
func (r *RateLimiter) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) > time.Minute {
		for k, v := range r.clients {
			if now.Sub(v.lastSeen) > r.options.ExpiryDuration {
				delete(r.clients, k)
			}
		}
		r.lastSweep = now
	}

	v, ok := r.clients[key]
	if !ok {
		v = &client{limiter: rate.NewLimiter(r.options.Limit, r.options.Burst)}
		r.clients[key] = v
	}
	v.lastSeen = now
	return v.limiter
}
