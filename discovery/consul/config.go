package consul

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kbukum/consulkit/discovery"
	"github.com/kbukum/consulkit/validation"
)

// Config holds Consul connection and client settings.
type Config struct {
	// Address is the agent host:port. Empty keeps the client library
	// default (CONSUL_HTTP_ADDR or 127.0.0.1:8500).
	Address string `yaml:"address" mapstructure:"address"`

	// Scheme is the URI scheme (http/https). Empty keeps the default.
	Scheme string `yaml:"scheme" mapstructure:"scheme"`

	// Datacenter to query. Empty means the agent's own datacenter.
	Datacenter string `yaml:"datacenter" mapstructure:"datacenter"`

	// Token is the ACL token.
	Token string `yaml:"token" mapstructure:"token"`

	// Namespace for Consul Enterprise.
	Namespace string `yaml:"namespace" mapstructure:"namespace"`

	// Partition for Consul Enterprise.
	Partition string `yaml:"partition" mapstructure:"partition"`

	// TLS configuration.
	TLS *TLSConfig `yaml:"tls" mapstructure:"tls"`

	// Pool holds connection pool settings.
	Pool *PoolConfig `yaml:"pool" mapstructure:"pool"`

	// RequestTimeout bounds each register, deregister and lookup call.
	// Blocking watch queries are bounded by WaitTime instead.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`

	// WaitTime is the blocking query wait used by Watch.
	WaitTime time.Duration `yaml:"wait_time" mapstructure:"wait_time"`

	// Strategy picks one healthy instance in Lookup.
	Strategy discovery.Strategy `yaml:"strategy" mapstructure:"strategy"`
}

// TLSConfig holds TLS configuration for Consul connections.
type TLSConfig struct {
	// CACert is the path to CA certificate.
	CACert string `yaml:"ca_cert" mapstructure:"ca_cert"`

	// CAPath is the path to a directory of CA certificates.
	CAPath string `yaml:"ca_path" mapstructure:"ca_path"`

	// ClientCert is the path to client certificate.
	ClientCert string `yaml:"client_cert" mapstructure:"client_cert"`

	// ClientKey is the path to client key.
	ClientKey string `yaml:"client_key" mapstructure:"client_key"`

	// InsecureSkipVerify skips TLS verification (not recommended for production).
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`

	// ServerName is the server name for TLS verification.
	ServerName string `yaml:"server_name" mapstructure:"server_name"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host" mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout" mapstructure:"idle_conn_timeout"`
}

// ConfigFromOptions derives the connection settings from the "consul"
// options section. ServiceURL is split into scheme and host:port.
func ConfigFromOptions(opts discovery.Options) (Config, error) {
	cfg := Config{Strategy: opts.Strategy}
	if strings.TrimSpace(opts.ServiceURL) == "" {
		return cfg, nil
	}
	u, err := url.Parse(opts.ServiceURL)
	if err != nil {
		return cfg, fmt.Errorf("parse consul service url: %w", err)
	}
	if u.Host == "" {
		return cfg, fmt.Errorf("consul service url %q has no host", opts.ServiceURL)
	}
	cfg.Scheme = u.Scheme
	cfg.Address = u.Host
	return cfg, nil
}

// ApplyDefaults sets sensible defaults for Config.
func (c *Config) ApplyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.WaitTime == 0 {
		c.WaitTime = 30 * time.Second
	}
	if c.Strategy == "" {
		c.Strategy = discovery.StrategyRoundRobin
	}
	if c.Pool == nil {
		c.Pool = &PoolConfig{}
	}
	c.Pool.ApplyDefaults()
}

// ApplyDefaults sets sensible defaults for PoolConfig.
func (c *PoolConfig) ApplyDefaults() {
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 100
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = 10
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
}

// Validate checks the connection settings and reports every rejected field.
func (c *Config) Validate() error {
	v := validation.New("consul").
		OneOf("scheme", c.Scheme, "http", "https").
		NotNegative("request_timeout", c.RequestTimeout).
		NotNegative("wait_time", c.WaitTime)
	if c.TLS != nil {
		v.Paired("tls.client_cert", c.TLS.ClientCert, "tls.client_key", c.TLS.ClientKey)
	}
	if c.Pool != nil {
		v.AtLeast("pool.max_idle_conns", c.Pool.MaxIdleConns, 0).
			AtLeast("pool.max_idle_conns_per_host", c.Pool.MaxIdleConnsPerHost, 0).
			NotNegative("pool.idle_conn_timeout", c.Pool.IdleConnTimeout)
	}
	return v.Err()
}
