package middleware

import (
	"bytes"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/jvenchy/conduit/pkg/pipeline"
)

// CompressionConfig defines configuration for response body compression.
type CompressionConfig struct {
	// MinSize is the minimum response body size in bytes before compression
	// is attempted. Bodies below it are left alone.
	MinSize int

	// Level is the gzip compression level. Brotli uses its default level.
	Level int
}

// DefaultCompressionConfig returns the default compression configuration.
func DefaultCompressionConfig() *CompressionConfig {
	return &CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
	}
}

// Compression is a middleware that compresses the response body after the
// rest of the chain has run, negotiating the encoding from the request's
// Accept-Encoding header. Brotli is preferred over gzip when the client
// accepts both. Responses that already carry a Content-Encoding are left
// untouched.
func Compression(config *CompressionConfig) pipeline.MiddlewareFunc {
	if config == nil {
		config = DefaultCompressionConfig()
	}

	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		next()

		if len(res.Body) < config.MinSize {
			return
		}
		if res.Headers["Content-Encoding"] != "" {
			return
		}

		accept := req.Headers["Accept-Encoding"]
		switch {
		case acceptsEncoding(accept, "br"):
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			if _, err := w.Write(res.Body); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}
			res.Body = buf.Bytes()
			res.Headers["Content-Encoding"] = "br"
			res.Headers["Vary"] = "Accept-Encoding"

		case acceptsEncoding(accept, "gzip"):
			var buf bytes.Buffer
			w, err := gzip.NewWriterLevel(&buf, config.Level)
			if err != nil {
				return
			}
			if _, err := w.Write(res.Body); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}
			res.Body = buf.Bytes()
			res.Headers["Content-Encoding"] = "gzip"
			res.Headers["Vary"] = "Accept-Encoding"
		}
	}
}

// acceptsEncoding reports whether the Accept-Encoding header value names the
// given encoding. Quality values are ignored.
func acceptsEncoding(accept, encoding string) bool {
	for _, part := range strings.Split(accept, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.TrimSpace(name) == encoding {
			return true
		}
	}
	return false
}
