package discovery

import (
	"strings"
	"time"

	"github.com/kbukum/consulkit/errors"
	"github.com/kbukum/consulkit/validation"
)

// Defaults applied by Options.ApplyDefaults.
const (
	DefaultScheme              = "http"
	DefaultPingEndpoint        = "/health"
	DefaultPingInterval        = 10
	DefaultRemoveAfterInterval = 60
)

// Options is the "consul" configuration section. It is bound once at startup
// and passed by value afterwards.
type Options struct {
	// Enabled turns self-registration on.
	Enabled bool `yaml:"Enabled" mapstructure:"Enabled"`
	// ServiceURL is the registry base URL, e.g. http://consul:8500. Empty
	// means the client library default.
	ServiceURL string `yaml:"ServiceUrl" mapstructure:"ServiceUrl" validate:"omitempty,url"`
	// Service is the logical service name. Empty falls back to the
	// executable name.
	Service string `yaml:"Service" mapstructure:"Service"`
	// Address is the host other services and the health check use to reach
	// this process.
	Address string `yaml:"Address" mapstructure:"Address"`
	// Scheme of the health check URL.
	Scheme string `yaml:"Scheme" mapstructure:"Scheme" validate:"omitempty,oneof=http https"`
	Port   int    `yaml:"Port" mapstructure:"Port" validate:"gte=0,lte=65535"`

	// PingEnabled attaches an HTTP health check to the registration.
	PingEnabled  bool   `yaml:"PingEnabled" mapstructure:"PingEnabled"`
	PingEndpoint string `yaml:"PingEndpoint" mapstructure:"PingEndpoint" validate:"omitempty,startswith=/"`
	// PingInterval is the check interval in seconds.
	PingInterval int `yaml:"PingInterval" mapstructure:"PingInterval" validate:"gte=0"`
	// RemoveAfterInterval is how long, in seconds, a critical instance
	// stays registered before the registry removes it.
	RemoveAfterInterval int `yaml:"RemoveAfterInterval" mapstructure:"RemoveAfterInterval" validate:"gte=0"`

	// RequestRetries is how many times the HTTP client retries a failed
	// request. 0 disables retry.
	RequestRetries int `yaml:"RequestRetries" mapstructure:"RequestRetries" validate:"gte=0"`

	Tags []string `yaml:"Tags" mapstructure:"Tags"`
	// CacheTTL caches lookups for this long. 0 re-resolves on every request.
	CacheTTL time.Duration `yaml:"CacheTTL" mapstructure:"CacheTTL" validate:"gte=0"`
	// Strategy picks among healthy instances: round_robin or random.
	Strategy Strategy `yaml:"Strategy" mapstructure:"Strategy" validate:"omitempty,oneof=round_robin random"`
}

// ApplyDefaults fills zero-valued fields. Explicit values are kept.
func (o *Options) ApplyDefaults() {
	if o.Scheme == "" {
		o.Scheme = DefaultScheme
	}
	if o.PingEndpoint == "" {
		o.PingEndpoint = DefaultPingEndpoint
	}
	if o.PingInterval == 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.RemoveAfterInterval == 0 {
		o.RemoveAfterInterval = DefaultRemoveAfterInterval
	}
	if o.Strategy == "" {
		o.Strategy = StrategyRoundRobin
	}
}

// Validate checks the options. A disabled section is never rejected: its
// remaining fields are ignored. Registration enabled without an address
// fails with ErrMissingAddress before any other check; range errors come
// back as INVALID_CONFIG.
func (o Options) Validate() error {
	if !o.Enabled {
		return nil
	}
	if strings.TrimSpace(o.Address) == "" {
		return errors.MissingAddress()
	}
	if err := validation.Validate(o); err != nil {
		reason := err.Error()
		if appErr, ok := errors.AsAppError(err); ok {
			reason = appErr.Message
		}
		return errors.InvalidConfig("consul", reason).WithCause(err)
	}
	return nil
}

// PingIntervalDuration returns PingInterval as a duration.
func (o Options) PingIntervalDuration() time.Duration {
	return time.Duration(o.PingInterval) * time.Second
}

// RemoveAfterDuration returns RemoveAfterInterval as a duration.
func (o Options) RemoveAfterDuration() time.Duration {
	return time.Duration(o.RemoveAfterInterval) * time.Second
}
