package middleware

import (
	"github.com/google/uuid"
	"github.com/jvenchy/conduit/pkg/pipeline"
)

// TraceIDHeader is the header that carries the trace ID on both the request
// and the response.
const TraceIDHeader = "X-Trace-Id"

// TraceMiddleware creates a middleware that assigns a unique trace ID to each
// dispatch and stamps it on both the request and the response. An ID already
// present on the request (e.g. propagated by an upstream system) is reused.
// This allows a dispatch to be correlated across logs.
func TraceMiddleware() pipeline.MiddlewareFunc {
	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		traceID := req.Headers[TraceIDHeader]
		if traceID == "" {
			traceID = uuid.New().String()
			req.Headers[TraceIDHeader] = traceID
		}
		res.Headers[TraceIDHeader] = traceID

		next()
	}
}

// GetTraceID extracts the trace ID from the request.
// Returns an empty string if no trace ID is present.
func GetTraceID(req *pipeline.Request) string {
	return req.Headers[TraceIDHeader]
}
