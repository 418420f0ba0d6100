// Package pipeline provides the core middleware chain for the conduit framework:
// an ordered sequence of handlers that share a mutable Request/Response pair and
// decide, through an explicit continuation, whether processing moves on to the
// next handler.
package pipeline

// Request represents the inbound side of one dispatch. It is a plain mutable
// record: a single instance is shared by reference with every handler in the
// chain for the duration of one Handle call, and handlers mutate it in place.
// Handlers must not retain the pointer beyond the dispatch that delivered it.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// NewRequest creates a Request with conventional defaults: method GET, root
// path, and an empty header map.
func NewRequest() *Request {
	return &Request{
		Method:  "GET",
		Path:    "/",
		Headers: make(map[string]string),
	}
}

// Response represents the outbound side of one dispatch. Like Request, it is
// shared by reference across the whole chain and mutated in place; the caller
// inspects it after Handle returns to obtain the result.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// NewResponse creates a Response with a 200 status and an empty header map.
func NewResponse() *Response {
	return &Response{
		Status:  200,
		Headers: make(map[string]string),
	}
}

// Next is the continuation a handler invokes to pass control to the next
// handler in the chain. The call is synchronous: it returns once every
// downstream handler has finished, so code after the call observes the
// Response as mutated by the rest of the chain. A handler that never invokes
// its continuation short-circuits the chain; invoking it more than once
// re-executes the remainder of the chain from the same point each time.
type Next func()

// MiddlewareFunc is the unit of composition: a handler that receives the live
// Request, the live Response, and the continuation for the rest of the chain.
type MiddlewareFunc func(req *Request, res *Response, next Next)

// Chain is an ordered, append-only registry of middleware. Execution order is
// always exactly registration order. A Chain is reusable: each Handle call
// runs with its own cursor, so the same chain can serve any number of
// sequential dispatches against independent Request/Response pairs.
type Chain struct {
	middleware []MiddlewareFunc
}

// New creates a chain with the given middleware already registered, in order.
func New(middleware ...MiddlewareFunc) *Chain {
	return &Chain{middleware: middleware}
}

// Use appends middleware to the end of the chain. It always succeeds and
// returns the chain for method chaining. Use panics if passed a nil handler.
// Registering middleware while a dispatch is in flight does not affect that
// dispatch; the new handlers are picked up by the next Handle call.
func (c *Chain) Use(middleware ...MiddlewareFunc) *Chain {
	for _, fn := range middleware {
		if fn == nil {
			panic("pipeline: nil middleware passed to Use")
		}
	}
	c.middleware = append(c.middleware, middleware...)
	return c
}

// Len returns the number of registered middleware.
func (c *Chain) Len() int {
	return len(c.middleware)
}

// Handle dispatches the chain against the given Request/Response pair. Each
// handler is invoked with a continuation bound to the next index; the chain
// terminates when a handler declines to call its continuation or the registry
// is exhausted. Handle produces no return value: the outcome is whatever the
// handlers left on the Response. Panics raised by handlers propagate to the
// caller untouched (see middleware.Recovery for opt-in containment).
func (c *Chain) Handle(req *Request, res *Response) {
	// Snapshot the slice header so Use during dispatch cannot alter the
	// in-flight run.
	middleware := c.middleware

	var execute func(index int)
	execute = func(index int) {
		if index >= len(middleware) {
			return
		}
		middleware[index](req, res, func() {
			execute(index + 1)
		})
	}
	execute(0)
}
