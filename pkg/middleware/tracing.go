package middleware

import (
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/jvenchy/conduit/pkg/pipeline"
)

// Tracing is a middleware that records one span per dispatch. Upstream span
// context is extracted from the request headers with the TextMap format, so
// traces propagate across process boundaries when the surrounding transport
// copies headers through.
func Tracing(tracer opentracing.Tracer) pipeline.MiddlewareFunc {
	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		spanCtx, _ := tracer.Extract(
			opentracing.TextMap,
			opentracing.TextMapCarrier(req.Headers),
		)

		span := tracer.StartSpan(
			"pipeline_dispatch",
			ext.RPCServerOption(spanCtx),
		)
		defer span.Finish()

		ext.HTTPMethod.Set(span, req.Method)
		ext.HTTPUrl.Set(span, req.Path)

		next()

		ext.HTTPStatusCode.Set(span, uint16(res.Status))
		if res.Status >= 500 {
			ext.Error.Set(span, true)
		}
	}
}
