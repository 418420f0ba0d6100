package middleware

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/jvenchy/conduit/pkg/pipeline"
)

func compressibleBody() []byte {
	return []byte(strings.Repeat("conduit pipeline compression test payload ", 100))
}

func bodyHandler(body []byte) pipeline.MiddlewareFunc {
	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		res.Body = body
		next()
	}
}

func TestCompressionGzip(t *testing.T) {
	body := compressibleBody()
	chain := pipeline.New(Compression(nil), bodyHandler(body))

	req := pipeline.NewRequest()
	req.Headers["Accept-Encoding"] = "gzip"
	res := pipeline.NewResponse()
	chain.Handle(req, res)

	if res.Headers["Content-Encoding"] != "gzip" {
		t.Fatalf("Expected Content-Encoding gzip, got %q", res.Headers["Content-Encoding"])
	}
	if len(res.Body) >= len(body) {
		t.Errorf("Expected compressed body to be smaller, got %d >= %d", len(res.Body), len(body))
	}

	r, err := gzip.NewReader(bytes.NewReader(res.Body))
	if err != nil {
		t.Fatalf("Failed to create gzip reader: %v", err)
	}
	decompressed, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Failed to decompress: %v", err)
	}
	if !bytes.Equal(decompressed, body) {
		t.Error("Decompressed body does not match original")
	}
}

func TestCompressionBrotliPreferred(t *testing.T) {
	body := compressibleBody()
	chain := pipeline.New(Compression(nil), bodyHandler(body))

	req := pipeline.NewRequest()
	req.Headers["Accept-Encoding"] = "gzip, br"
	res := pipeline.NewResponse()
	chain.Handle(req, res)

	if res.Headers["Content-Encoding"] != "br" {
		t.Fatalf("Expected Content-Encoding br, got %q", res.Headers["Content-Encoding"])
	}

	decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(res.Body)))
	if err != nil {
		t.Fatalf("Failed to decompress: %v", err)
	}
	if !bytes.Equal(decompressed, body) {
		t.Error("Decompressed body does not match original")
	}
}

func TestCompressionSkipsSmallBodies(t *testing.T) {
	chain := pipeline.New(Compression(nil), bodyHandler([]byte("tiny")))

	req := pipeline.NewRequest()
	req.Headers["Accept-Encoding"] = "gzip"
	res := pipeline.NewResponse()
	chain.Handle(req, res)

	if res.Headers["Content-Encoding"] != "" {
		t.Errorf("Expected small body to be left alone, got encoding %q", res.Headers["Content-Encoding"])
	}
	if string(res.Body) != "tiny" {
		t.Errorf("Expected body unchanged, got %q", res.Body)
	}
}

func TestCompressionSkipsWithoutAcceptEncoding(t *testing.T) {
	body := compressibleBody()
	chain := pipeline.New(Compression(nil), bodyHandler(body))

	res := pipeline.NewResponse()
	chain.Handle(pipeline.NewRequest(), res)

	if res.Headers["Content-Encoding"] != "" {
		t.Errorf("Expected no compression without Accept-Encoding, got %q", res.Headers["Content-Encoding"])
	}
	if !bytes.Equal(res.Body, body) {
		t.Error("Expected body unchanged")
	}
}

func TestCompressionSkipsAlreadyEncoded(t *testing.T) {
	body := compressibleBody()
	chain := pipeline.New(
		Compression(nil),
		func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
			res.Body = body
			res.Headers["Content-Encoding"] = "identity"
			next()
		},
	)

	req := pipeline.NewRequest()
	req.Headers["Accept-Encoding"] = "gzip"
	res := pipeline.NewResponse()
	chain.Handle(req, res)

	if res.Headers["Content-Encoding"] != "identity" {
		t.Errorf("Expected existing encoding to be preserved, got %q", res.Headers["Content-Encoding"])
	}
	if !bytes.Equal(res.Body, body) {
		t.Error("Expected pre-encoded body to be left alone")
	}
}

func TestAcceptsEncoding(t *testing.T) {
	tests := []struct {
		accept   string
		encoding string
		expected bool
	}{
		{"gzip", "gzip", true},
		{"gzip, br", "br", true},
		{"br;q=0.8, gzip", "br", true},
		{"identity", "gzip", false},
		{"", "gzip", false},
		{"gzip", "br", false},
	}

	for _, tt := range tests {
		if got := acceptsEncoding(tt.accept, tt.encoding); got != tt.expected {
			t.Errorf("acceptsEncoding(%q, %q) = %v, expected %v", tt.accept, tt.encoding, got, tt.expected)
		}
	}
}
