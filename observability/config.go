package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/consulkit/logger"
)

// Config is the observability section of the service configuration.
type Config struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint       string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate     float64       `yaml:"sample_rate" mapstructure:"sample_rate"`
	MetricInterval time.Duration `yaml:"metric_interval" mapstructure:"metric_interval"`
	// Prometheus serves metrics for scraping. It works with Enabled false.
	Prometheus bool `yaml:"prometheus" mapstructure:"prometheus"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.MetricInterval == 0 {
		c.MetricInterval = 15 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("observability.sample_rate must be between 0 and 1 (got: %v)", c.SampleRate)
	}
	if c.MetricInterval < 0 {
		return fmt.Errorf("observability.metric_interval must not be negative")
	}
	return nil
}

// ServiceInfo identifies the process in exported telemetry.
type ServiceInfo struct {
	Name        string
	Version     string
	Environment string
}

// Providers holds the installed SDK providers. Tracer is nil unless OTLP
// export is enabled; Meter is nil when neither OTLP nor Prometheus is on.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
	// MetricsHandler serves the Prometheus exposition format when enabled.
	MetricsHandler http.Handler
}

// Setup installs the tracer and meter providers described by cfg.
func Setup(ctx context.Context, cfg Config, info ServiceInfo, log *logger.Logger) (*Providers, error) {
	if log == nil {
		log = logger.Nop()
	}
	if !cfg.Enabled && !cfg.Prometheus {
		log.Debug("observability disabled")
		return &Providers{}, nil
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	providers := &Providers{}
	meterCfg := MeterConfig{
		ServiceName:    info.Name,
		ServiceVersion: info.Version,
		Environment:    info.Environment,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
		Interval:       cfg.MetricInterval,
		DisableOTLP:    !cfg.Enabled,
	}

	if cfg.Prometheus {
		reader, handler, err := NewPrometheusReader()
		if err != nil {
			return nil, err
		}
		meterCfg.Readers = append(meterCfg.Readers, reader)
		providers.MetricsHandler = handler
	}

	if cfg.Enabled {
		tp, err := InitTracer(ctx, TracerConfig{
			ServiceName:    info.Name,
			ServiceVersion: info.Version,
			Environment:    info.Environment,
			Endpoint:       cfg.Endpoint,
			Insecure:       cfg.Insecure,
			SampleRate:     cfg.SampleRate,
		}, log)
		if err != nil {
			return nil, err
		}
		providers.Tracer = tp
	}

	mp, err := InitMeter(ctx, meterCfg, log)
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, err
	}
	providers.Meter = mp

	return providers, nil
}

// Shutdown flushes and stops the installed providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.Tracer != nil {
		if err := p.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if p.Meter != nil {
		if err := p.Meter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
