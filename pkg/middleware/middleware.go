// Package middleware provides a collection of middleware components for the
// conduit pipeline.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/jvenchy/conduit/pkg/pipeline"
	"go.uber.org/zap"
)

// Chain composes multiple middleware into a single MiddlewareFunc. The
// composed middleware run in the given order, and the outer continuation is
// invoked once the innermost middleware calls next.
func Chain(middleware ...pipeline.MiddlewareFunc) pipeline.MiddlewareFunc {
	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		var execute func(index int)
		execute = func(index int) {
			if index >= len(middleware) {
				next()
				return
			}
			middleware[index](req, res, func() {
				execute(index + 1)
			})
		}
		execute(0)
	}
}

// Recovery is a middleware that recovers from handler panics. The panic is
// logged and the response is replaced with a 500; middleware downstream of
// the panic never resume, but the dispatch caller survives.
func Recovery(logger *zap.Logger) pipeline.MiddlewareFunc {
	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Panic recovered",
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("method", req.Method),
					zap.String("path", req.Path),
				)

				res.Status = http.StatusInternalServerError
				res.Body = []byte("Internal Server Error")
			}
		}()

		next()
	}
}

// Logging is a middleware that logs each dispatch after the rest of the chain
// has finished, so it observes the final status.
func Logging(logger *zap.Logger) pipeline.MiddlewareFunc {
	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		start := time.Now()

		next()

		duration := time.Since(start)

		// Use appropriate log level based on status code and duration
		if res.Status >= 500 {
			logger.Error("Server error",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("status", res.Status),
				zap.Duration("duration", duration),
			)
		} else if res.Status >= 400 {
			logger.Warn("Client error",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("status", res.Status),
				zap.Duration("duration", duration),
			)
		} else if duration > 1*time.Second {
			logger.Warn("Slow dispatch",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("status", res.Status),
				zap.Duration("duration", duration),
			)
		} else {
			// Normal dispatches at Debug level to avoid log spam
			logger.Debug("Dispatch",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("status", res.Status),
				zap.Duration("duration", duration),
			)
		}
	}
}

// MaxBodySize is a middleware that rejects requests whose body exceeds the
// given size with a 413, short-circuiting the rest of the chain.
func MaxBodySize(maxSize int64) pipeline.MiddlewareFunc {
	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		if int64(len(req.Body)) > maxSize {
			res.Status = http.StatusRequestEntityTooLarge
			res.Body = []byte("Request Entity Too Large")
			return
		}

		next()
	}
}

// CORS is a middleware that adds CORS headers to the response. Preflight
// OPTIONS requests are answered directly without running the rest of the
// chain.
func CORS(origins []string, methods []string, headers []string) pipeline.MiddlewareFunc {
	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		if len(origins) > 0 {
			res.Headers["Access-Control-Allow-Origin"] = strings.Join(origins, ", ")
		}
		if len(methods) > 0 {
			res.Headers["Access-Control-Allow-Methods"] = strings.Join(methods, ", ")
		}
		if len(headers) > 0 {
			res.Headers["Access-Control-Allow-Headers"] = strings.Join(headers, ", ")
		}

		// Handle preflight requests
		if req.Method == http.MethodOptions {
			res.Status = http.StatusOK
			return
		}

		next()
	}
}
