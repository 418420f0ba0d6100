package middleware

import (
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jvenchy/conduit/pkg/pipeline"
)

func TestRateLimitRejectsAfterBurst(t *testing.T) {
	logger := zap.NewNop()
	handled := 0

	chain := pipeline.New(
		RateLimit(&RateLimitConfig{Rate: 0.001, Burst: 2}, logger),
		func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
			handled++
			next()
		},
	)

	var last *pipeline.Response
	for i := 0; i < 3; i++ {
		last = pipeline.NewResponse()
		chain.Handle(pipeline.NewRequest(), last)
	}

	if handled != 2 {
		t.Errorf("Expected 2 dispatches to pass within the burst, got %d", handled)
	}
	if last.Status != http.StatusTooManyRequests {
		t.Errorf("Expected status %d once exhausted, got %d", http.StatusTooManyRequests, last.Status)
	}
	if last.Headers["Retry-After"] != "1" {
		t.Errorf("Expected Retry-After header, got %q", last.Headers["Retry-After"])
	}
}

func TestRateLimitPerKeyBuckets(t *testing.T) {
	logger := zap.NewNop()

	chain := pipeline.New(RateLimit(&RateLimitConfig{
		Rate:         0.001,
		Burst:        1,
		KeyExtractor: HeaderKeyExtractor("X-Client-ID"),
	}, logger))

	dispatch := func(client string) *pipeline.Response {
		req := pipeline.NewRequest()
		req.Headers["X-Client-ID"] = client
		res := pipeline.NewResponse()
		chain.Handle(req, res)
		return res
	}

	if res := dispatch("alice"); res.Status != 200 {
		t.Errorf("Expected alice's first dispatch to pass, got %d", res.Status)
	}
	if res := dispatch("alice"); res.Status != http.StatusTooManyRequests {
		t.Errorf("Expected alice's second dispatch to be limited, got %d", res.Status)
	}

	// A different key gets its own bucket
	if res := dispatch("bob"); res.Status != 200 {
		t.Errorf("Expected bob's first dispatch to pass, got %d", res.Status)
	}
}

func TestRateLimitSetsRateLimitHeaders(t *testing.T) {
	logger := zap.NewNop()
	chain := pipeline.New(RateLimit(&RateLimitConfig{Rate: 0.001, Burst: 5}, logger))

	res := pipeline.NewResponse()
	chain.Handle(pipeline.NewRequest(), res)

	if res.Headers["X-RateLimit-Limit"] != "5" {
		t.Errorf("Expected X-RateLimit-Limit header %q, got %q", "5", res.Headers["X-RateLimit-Limit"])
	}
	if res.Headers["X-RateLimit-Remaining"] == "" {
		t.Error("Expected X-RateLimit-Remaining header to be set on allowed dispatches")
	}
}

func TestRateLimitHeadersOnRejection(t *testing.T) {
	logger := zap.NewNop()
	chain := pipeline.New(RateLimit(&RateLimitConfig{Rate: 0.001, Burst: 1}, logger))

	chain.Handle(pipeline.NewRequest(), pipeline.NewResponse())

	res := pipeline.NewResponse()
	chain.Handle(pipeline.NewRequest(), res)

	if res.Status != http.StatusTooManyRequests {
		t.Fatalf("Expected status %d, got %d", http.StatusTooManyRequests, res.Status)
	}
	if res.Headers["X-RateLimit-Limit"] != "1" {
		t.Errorf("Expected X-RateLimit-Limit header %q, got %q", "1", res.Headers["X-RateLimit-Limit"])
	}
	if res.Headers["X-RateLimit-Remaining"] != "0" {
		t.Errorf("Expected X-RateLimit-Remaining header %q, got %q", "0", res.Headers["X-RateLimit-Remaining"])
	}
}

func TestThrottlePacesDispatches(t *testing.T) {
	handled := 0
	chain := pipeline.New(
		Throttle(100),
		func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
			handled++
			next()
		},
	)

	start := time.Now()
	for i := 0; i < 3; i++ {
		chain.Handle(pipeline.NewRequest(), pipeline.NewResponse())
	}
	elapsed := time.Since(start)

	if handled != 3 {
		t.Errorf("Expected all 3 dispatches to be handled, got %d", handled)
	}
	// At 100 rps, 3 dispatches need roughly 20ms of pacing
	if elapsed < 15*time.Millisecond {
		t.Errorf("Expected throttling to pace dispatches, took %v", elapsed)
	}
}
