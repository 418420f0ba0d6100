package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jvenchy/conduit/pkg/pipeline"
)

// RateLimitConfig defines configuration for the rejecting rate limiter.
type RateLimitConfig struct {
	// Rate is the sustained number of dispatches allowed per second for each key.
	Rate float64

	// Burst is the maximum burst size for each key's bucket.
	Burst int

	// KeyExtractor derives the bucket key from the request (e.g. a client
	// identifier carried in a header). If nil, all dispatches share a single
	// bucket.
	KeyExtractor func(req *pipeline.Request) string
}

// HeaderKeyExtractor returns a key extractor that reads the given request
// header. Requests without the header fall into a shared bucket under the
// empty key.
func HeaderKeyExtractor(header string) func(req *pipeline.Request) string {
	return func(req *pipeline.Request) string {
		return req.Headers[header]
	}
}

// RateLimit is a middleware that rejects dispatches exceeding the configured
// rate with a 429 Too Many Requests response. Buckets are token buckets kept
// per key, created on first use.
func RateLimit(config *RateLimitConfig, logger *zap.Logger) pipeline.MiddlewareFunc {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	getLimiter := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		if limiter, ok := limiters[key]; ok {
			return limiter
		}

		limiter := rate.NewLimiter(rate.Limit(config.Rate), config.Burst)
		limiters[key] = limiter
		return limiter
	}

	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		var key string
		if config.KeyExtractor != nil {
			key = config.KeyExtractor(req)
		}

		limiter := getLimiter(key)
		if !limiter.Allow() {
			logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("method", req.Method),
				zap.String("path", req.Path),
			)
			res.Status = http.StatusTooManyRequests
			res.Headers["Retry-After"] = "1"
			res.Headers["X-RateLimit-Limit"] = strconv.Itoa(config.Burst)
			res.Headers["X-RateLimit-Remaining"] = "0"
			res.Body = []byte("Too Many Requests")
			return
		}

		res.Headers["X-RateLimit-Limit"] = strconv.Itoa(config.Burst)
		res.Headers["X-RateLimit-Remaining"] = strconv.Itoa(int(limiter.Tokens()))

		next()
	}
}

// Throttle is a middleware that paces dispatches to the given rate instead of
// rejecting them: excess dispatches block until the leaky bucket lets them
// through. Useful when the chain fronts a resource that degrades under bursts.
func Throttle(rps int) pipeline.MiddlewareFunc {
	limiter := ratelimit.New(rps)

	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		limiter.Take()

		next()
	}
}
