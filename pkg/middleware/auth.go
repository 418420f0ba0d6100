package middleware

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/jvenchy/conduit/pkg/pipeline"
	"go.uber.org/zap"
)

// AuthProvider defines an interface for authentication providers.
// Different authentication mechanisms can implement this interface
// to be used with the AuthenticationWithProvider middleware.
// The framework includes several implementations: BasicAuthProvider,
// BearerTokenProvider, and APIKeyProvider.
type AuthProvider interface {
	// Authenticate examines the request for authentication credentials and
	// validates them according to the provider's implementation.
	// Returns true if the request is authenticated, false otherwise.
	Authenticate(req *pipeline.Request) bool
}

// BasicAuthProvider provides HTTP Basic Authentication.
// It validates username and password credentials against a predefined map.
type BasicAuthProvider struct {
	Credentials map[string]string // username -> password
}

// Authenticate validates the Basic credentials in the Authorization header
// against the stored credentials.
func (p *BasicAuthProvider) Authenticate(req *pipeline.Request) bool {
	authHeader := req.Headers["Authorization"]
	if !strings.HasPrefix(authHeader, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authHeader, "Basic "))
	if err != nil {
		return false
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	expectedPassword, exists := p.Credentials[username]
	if !exists {
		return false
	}

	return password == expectedPassword
}

// BearerTokenProvider provides Bearer Token Authentication.
// It can validate tokens against a predefined map or using a custom validator function.
type BearerTokenProvider struct {
	ValidTokens map[string]bool         // token -> valid
	Validator   func(token string) bool // optional token validator
}

// Authenticate extracts the token from the Authorization header and validates
// it using either the validator function (if provided) or the ValidTokens map.
func (p *BearerTokenProvider) Authenticate(req *pipeline.Request) bool {
	authHeader := req.Headers["Authorization"]
	if authHeader == "" {
		return false
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")

	// If a validator is provided, use it
	if p.Validator != nil {
		return p.Validator(token)
	}

	// Otherwise, check if the token is in the valid tokens map
	return p.ValidTokens[token]
}

// APIKeyProvider provides API Key Authentication.
// It validates keys provided in a configurable request header.
type APIKeyProvider struct {
	ValidKeys map[string]bool // key -> valid
	Header    string          // header name (e.g., "X-API-Key")
}

// Authenticate checks the configured header for a valid API key.
func (p *APIKeyProvider) Authenticate(req *pipeline.Request) bool {
	if p.Header == "" {
		return false
	}

	key := req.Headers[p.Header]
	return key != "" && p.ValidKeys[key]
}

// AuthenticationWithProvider is a middleware that checks if a request is
// authenticated using the provided auth provider. On failure it sets a 401
// Unauthorized response and short-circuits the rest of the chain.
func AuthenticationWithProvider(provider AuthProvider, logger *zap.Logger) pipeline.MiddlewareFunc {
	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		if !provider.Authenticate(req) {
			logger.Warn("Authentication failed",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
			)
			res.Status = http.StatusUnauthorized
			res.Body = []byte("Unauthorized")
			return
		}

		next()
	}
}

// Authentication is a middleware that checks if a request is authenticated
// using a simple auth function. It is a convenience wrapper around
// AuthenticationWithProvider for custom authentication logic.
func Authentication(authFunc func(*pipeline.Request) bool) pipeline.MiddlewareFunc {
	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		if !authFunc(req) {
			res.Status = http.StatusUnauthorized
			res.Body = []byte("Unauthorized")
			return
		}

		next()
	}
}

// NewBasicAuthMiddleware creates a middleware that uses HTTP Basic Authentication.
// It takes a map of username to password credentials and a logger for authentication failures.
func NewBasicAuthMiddleware(credentials map[string]string, logger *zap.Logger) pipeline.MiddlewareFunc {
	provider := &BasicAuthProvider{
		Credentials: credentials,
	}
	return AuthenticationWithProvider(provider, logger)
}

// NewBearerTokenMiddleware creates a middleware that uses Bearer Token Authentication.
// It takes a map of valid tokens and a logger for authentication failures.
func NewBearerTokenMiddleware(validTokens map[string]bool, logger *zap.Logger) pipeline.MiddlewareFunc {
	provider := &BearerTokenProvider{
		ValidTokens: validTokens,
	}
	return AuthenticationWithProvider(provider, logger)
}

// NewBearerTokenValidatorMiddleware creates a middleware that uses Bearer Token
// Authentication with a custom validator function. This allows for more complex
// token validation logic, such as JWT validation or integration with external
// authentication services.
func NewBearerTokenValidatorMiddleware(validator func(string) bool, logger *zap.Logger) pipeline.MiddlewareFunc {
	provider := &BearerTokenProvider{
		Validator: validator,
	}
	return AuthenticationWithProvider(provider, logger)
}

// NewAPIKeyMiddleware creates a middleware that uses API Key Authentication.
// It takes a map of valid API keys, the header name to check, and a logger
// for authentication failures.
func NewAPIKeyMiddleware(validKeys map[string]bool, header string, logger *zap.Logger) pipeline.MiddlewareFunc {
	provider := &APIKeyProvider{
		ValidKeys: validKeys,
		Header:    header,
	}
	return AuthenticationWithProvider(provider, logger)
}
