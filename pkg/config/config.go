// Package config builds conduit pipelines from declarative YAML
// configuration, so embedding applications can describe their middleware
// stack in a file instead of code.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/jvenchy/conduit/pkg/middleware"
	"github.com/jvenchy/conduit/pkg/pipeline"
)

// Duration wraps time.Duration with YAML support for duration strings such
// as "30s". Plain integers are also accepted and read as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	if parsed, err := time.ParseDuration(s); err == nil {
		*d = Duration(parsed)
		return nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q", s)
	}
	*d = Duration(n)
	return nil
}

// Config describes a middleware stack. Sections are optional; disabled or
// absent sections contribute no middleware.
type Config struct {
	Recovery struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"recovery"`

	Logging struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"logging"`

	Trace struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"trace"`

	CORS struct {
		Enabled        bool     `yaml:"enabled"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		AllowedMethods []string `yaml:"allowedMethods"`
		AllowedHeaders []string `yaml:"allowedHeaders"`
	} `yaml:"cors"`

	MaxBodySize int64 `yaml:"maxBodySize"`

	Auth struct {
		// Scheme selects the provider: "basic", "bearer", or "apikey".
		// Empty disables authentication.
		Scheme      string            `yaml:"scheme"`
		Credentials map[string]string `yaml:"credentials,omitempty"` // basic: username -> password
		Tokens      []string          `yaml:"tokens,omitempty"`      // bearer: valid tokens
		Keys        []string          `yaml:"keys,omitempty"`        // apikey: valid keys
		Header      string            `yaml:"header,omitempty"`      // apikey: header to check
	} `yaml:"auth"`

	RateLimit struct {
		Enabled bool    `yaml:"enabled"`
		Rate    float64 `yaml:"rate"`
		Burst   int     `yaml:"burst"`
		// HeaderKey names the request header used to bucket clients.
		// Empty means one shared bucket.
		HeaderKey string `yaml:"headerKey,omitempty"`
	} `yaml:"rateLimit"`

	CircuitBreaker struct {
		Enabled     bool     `yaml:"enabled"`
		MaxFailures int64    `yaml:"maxFailures"`
		Timeout     Duration `yaml:"timeout"`
	} `yaml:"circuitBreaker"`

	Compression struct {
		Enabled bool `yaml:"enabled"`
		MinSize int  `yaml:"minSize"`
		Level   int  `yaml:"level"`
	} `yaml:"compression"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Build assembles a pipeline chain from the configuration. Middleware are
// registered in a fixed order: recovery, logging, trace, CORS, body size,
// auth, rate limit, circuit breaker, compression. Application handlers are
// appended by the caller afterwards via Use.
func (c *Config) Build(logger *zap.Logger) (*pipeline.Chain, error) {
	chain := pipeline.New()

	if c.Recovery.Enabled {
		chain.Use(middleware.Recovery(logger))
	}
	if c.Logging.Enabled {
		chain.Use(middleware.Logging(logger))
	}
	if c.Trace.Enabled {
		chain.Use(middleware.TraceMiddleware())
	}
	if c.CORS.Enabled {
		chain.Use(middleware.CORS(c.CORS.AllowedOrigins, c.CORS.AllowedMethods, c.CORS.AllowedHeaders))
	}
	if c.MaxBodySize > 0 {
		chain.Use(middleware.MaxBodySize(c.MaxBodySize))
	}

	if c.Auth.Scheme != "" {
		provider, err := c.authProvider()
		if err != nil {
			return nil, err
		}
		chain.Use(middleware.AuthenticationWithProvider(provider, logger))
	}

	if c.RateLimit.Enabled {
		rlConfig := &middleware.RateLimitConfig{
			Rate:  c.RateLimit.Rate,
			Burst: c.RateLimit.Burst,
		}
		if c.RateLimit.HeaderKey != "" {
			rlConfig.KeyExtractor = middleware.HeaderKeyExtractor(c.RateLimit.HeaderKey)
		}
		chain.Use(middleware.RateLimit(rlConfig, logger))
	}

	if c.CircuitBreaker.Enabled {
		cb := middleware.NewCircuitBreaker("config", c.CircuitBreaker.MaxFailures, time.Duration(c.CircuitBreaker.Timeout), logger)
		chain.Use(cb.Middleware())
	}

	if c.Compression.Enabled {
		compConfig := middleware.DefaultCompressionConfig()
		if c.Compression.MinSize > 0 {
			compConfig.MinSize = c.Compression.MinSize
		}
		if c.Compression.Level != 0 {
			compConfig.Level = c.Compression.Level
		}
		chain.Use(middleware.Compression(compConfig))
	}

	return chain, nil
}

func (c *Config) authProvider() (middleware.AuthProvider, error) {
	switch c.Auth.Scheme {
	case "basic":
		return &middleware.BasicAuthProvider{Credentials: c.Auth.Credentials}, nil

	case "bearer":
		tokens := make(map[string]bool, len(c.Auth.Tokens))
		for _, token := range c.Auth.Tokens {
			tokens[token] = true
		}
		return &middleware.BearerTokenProvider{ValidTokens: tokens}, nil

	case "apikey":
		if c.Auth.Header == "" {
			return nil, fmt.Errorf("config: apikey auth requires a header name")
		}
		keys := make(map[string]bool, len(c.Auth.Keys))
		for _, key := range c.Auth.Keys {
			keys[key] = true
		}
		return &middleware.APIKeyProvider{ValidKeys: keys, Header: c.Auth.Header}, nil

	default:
		return nil, fmt.Errorf("config: unknown auth scheme %q", c.Auth.Scheme)
	}
}
