package middleware

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/jvenchy/conduit/pkg/pipeline"
)

// BreakerState is the current state of a CircuitBreaker.
type BreakerState int32

const (
	// StateClosed allows all dispatches through.
	StateClosed BreakerState = iota
	// StateHalfOpen allows a single probe dispatch through.
	StateHalfOpen
	// StateOpen rejects all dispatches until the timeout elapses.
	StateOpen
)

// CircuitBreaker tracks consecutive downstream failures (responses with a 5xx
// status) and, once the failure threshold is reached, short-circuits further
// dispatches with a 503 until the timeout elapses. After the timeout one probe
// dispatch is allowed through; its outcome closes or reopens the breaker.
type CircuitBreaker struct {
	name          string
	maxFailures   int64
	timeout       time.Duration
	logger        *zap.Logger
	failures      *atomic.Int64
	lastFailure   *atomic.Int64
	state         *atomic.Int32
	halfOpenProbe *atomic.Int32
	mu            sync.Mutex
}

// NewCircuitBreaker creates a closed breaker with the given failure threshold
// and open-state timeout.
func NewCircuitBreaker(name string, maxFailures int64, timeout time.Duration, logger *zap.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:          name,
		maxFailures:   maxFailures,
		timeout:       timeout,
		logger:        logger,
		failures:      atomic.NewInt64(0),
		lastFailure:   atomic.NewInt64(0),
		state:         atomic.NewInt32(int32(StateClosed)),
		halfOpenProbe: atomic.NewInt32(0),
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() BreakerState {
	return BreakerState(cb.state.Load())
}

// Middleware returns the pipeline middleware enforcing the breaker.
func (cb *CircuitBreaker) Middleware() pipeline.MiddlewareFunc {
	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		if !cb.allow() {
			res.Status = http.StatusServiceUnavailable
			res.Body = []byte("Service Unavailable")
			return
		}

		next()

		if res.Status >= 500 {
			cb.failure()
		} else {
			cb.success()
		}
	}
}

func (cb *CircuitBreaker) allow() bool {
	switch BreakerState(cb.state.Load()) {
	case StateOpen:
		if time.Since(time.Unix(0, cb.lastFailure.Load())) > cb.timeout {
			cb.mu.Lock()
			if BreakerState(cb.state.Load()) == StateOpen {
				cb.state.Store(int32(StateHalfOpen))
				// This caller is the probe, so the slot is taken
				cb.halfOpenProbe.Store(1)
				cb.logger.Info("Circuit breaker half-open", zap.String("name", cb.name))
			}
			cb.mu.Unlock()
			return true
		}
		return false

	case StateHalfOpen:
		return cb.halfOpenProbe.Inc() <= 1

	default:
		return true
	}
}

func (cb *CircuitBreaker) success() {
	// The threshold counts consecutive failures, so any success resets it
	cb.failures.Store(0)

	if BreakerState(cb.state.Load()) == StateHalfOpen {
		cb.mu.Lock()
		cb.state.Store(int32(StateClosed))
		cb.mu.Unlock()
		cb.logger.Info("Circuit breaker closed", zap.String("name", cb.name))
	}
}

func (cb *CircuitBreaker) failure() {
	failures := cb.failures.Inc()
	cb.lastFailure.Store(time.Now().UnixNano())

	if failures >= cb.maxFailures || BreakerState(cb.state.Load()) == StateHalfOpen {
		cb.mu.Lock()
		if BreakerState(cb.state.Load()) != StateOpen {
			cb.state.Store(int32(StateOpen))
			cb.logger.Warn("Circuit breaker open",
				zap.String("name", cb.name),
				zap.Int64("failures", failures),
			)
		}
		cb.mu.Unlock()
	}
}
