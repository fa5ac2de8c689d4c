package httpclient

import (
	"time"

	"github.com/kbukum/consulkit/discovery"
	"github.com/kbukum/consulkit/resilience"
	"github.com/kbukum/consulkit/validation"
)

const (
	defaultTimeout = 30 * time.Second
)

// Config configures the HTTP client.
type Config struct {
	// Name identifies the client in logs and breaker state.
	Name string `yaml:"name" mapstructure:"name"`

	// BaseURL is prepended to relative request paths. With a resolver its
	// host is a service name, e.g. http://billing.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout is the default request timeout. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Headers are default headers applied to all requests.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`

	// Retry configures retry behavior. Nil disables retry.
	Retry *resilience.RetryConfig `yaml:"-" mapstructure:"-"`

	// CircuitBreaker configures circuit breaker behavior. Nil disables it.
	CircuitBreaker *resilience.CircuitBreakerConfig `yaml:"-" mapstructure:"-"`

	// RateLimiter configures rate limiting. Nil disables it.
	RateLimiter *resilience.RateLimiterConfig `yaml:"-" mapstructure:"-"`
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	v := validation.New("httpclient").Positive("timeout", c.Timeout)
	if c.Retry != nil {
		v.AtLeast("retry.max_attempts", c.Retry.MaxAttempts, 1)
	}
	return v.Err()
}

// ConfigFromOptions builds a client config for calling serviceName through
// the registry. RequestRetries from the "consul" section becomes the retry
// policy.
func ConfigFromOptions(serviceName string, opts discovery.Options) Config {
	return Config{
		Name:    serviceName,
		BaseURL: "http://" + serviceName,
		Retry:   RetryConfigFromAttempts(opts.RequestRetries),
	}
}

// DefaultRetryConfig returns a default retry config suitable for HTTP clients.
func DefaultRetryConfig() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.RetryIf = IsRetryable
	return &cfg
}

// RetryConfigFromAttempts turns a retry count into a policy with
// retries+1 total attempts. Zero or fewer retries returns nil, which
// disables retry.
func RetryConfigFromAttempts(retries int) *resilience.RetryConfig {
	if retries <= 0 {
		return nil
	}
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = retries + 1
	return cfg
}

// DefaultCircuitBreakerConfig returns a breaker that only counts failures
// of the remote side.
func DefaultCircuitBreakerConfig(name string) *resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	cfg.IsFailure = IsFailure
	return &cfg
}

// DefaultRateLimiterConfig returns a default rate limiter config.
func DefaultRateLimiterConfig(name string) *resilience.RateLimiterConfig {
	cfg := resilience.DefaultRateLimiterConfig(name)
	return &cfg
}
