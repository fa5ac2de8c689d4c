package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/consulkit/discovery"
	apperrors "github.com/kbukum/consulkit/errors"
	"github.com/kbukum/consulkit/logger"
	"github.com/kbukum/consulkit/observability"
	"github.com/kbukum/consulkit/resilience"
)

// Adapter is a configurable HTTP client with optional service resolution
// and resilience. Retry wraps the circuit breaker, which wraps the rate
// limiter and a single send.
type Adapter struct {
	httpClient *http.Client
	config     Config
	cb         *resilience.CircuitBreaker
	rl         *resilience.RateLimiter
	resolver   discovery.Resolver
	base       http.RoundTripper
	log        *logger.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithResolver resolves the host of every request as a service name
// through r before sending.
func WithResolver(r discovery.Resolver) Option {
	return func(a *Adapter) { a.resolver = r }
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(a *Adapter) { a.base = rt }
}

// WithLogger sets the adapter logger.
func WithLogger(l *logger.Logger) Option {
	return func(a *Adapter) { a.log = l }
}

// New creates a new HTTP adapter with the given configuration.
func New(cfg Config, opts ...Option) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Adapter{config: cfg, log: logger.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.base == nil {
		a.base = http.DefaultTransport.(*http.Transport).Clone()
	}
	a.log = a.log.WithComponent("httpclient")

	var transport http.RoundTripper = a.base
	if a.resolver != nil {
		transport = &discovery.Transport{Resolver: a.resolver, Base: a.base, Log: a.log}
	}
	a.httpClient = &http.Client{Transport: transport, Timeout: cfg.Timeout}

	if cfg.CircuitBreaker != nil {
		a.cb = resilience.NewCircuitBreaker(*cfg.CircuitBreaker)
	}
	if cfg.RateLimiter != nil {
		a.rl = resilience.NewRateLimiter(*cfg.RateLimiter)
	}
	return a, nil
}

// NewFromOptions creates an adapter that calls serviceName through r with
// the retry count and lookup cache the "consul" section asks for. Extra
// options are applied after the resolver, so a later WithResolver wins.
func NewFromOptions(serviceName string, opts discovery.Options, r discovery.Resolver, metrics *observability.Metrics, extra ...Option) (*Adapter, error) {
	resolver, err := discovery.NewResolverFromOptions(r, opts, metrics)
	if err != nil {
		return nil, err
	}
	return New(ConfigFromOptions(serviceName, opts), append([]Option{WithResolver(resolver)}, extra...)...)
}

// Do executes an HTTP request and returns the complete response. On a
// non-2xx answer both the response and an *Error are returned.
func (a *Adapter) Do(ctx context.Context, req Request) (*Response, error) {
	if a.config.Retry == nil || !replayable(req.Body) {
		return a.doOnce(ctx, req)
	}

	var last *Response
	resp, err := resilience.Retry(ctx, a.retryConfig(), func() (*Response, error) {
		r, err := a.doOnce(ctx, req)
		last = r
		return r, err
	})
	if err != nil && resp == nil {
		resp = last
	}
	return resp, err
}

// retryConfig logs each retry and then calls any configured OnRetry.
func (a *Adapter) retryConfig() resilience.RetryConfig {
	cfg := *a.config.Retry
	next := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		a.log.Warn("Retrying request", logger.ErrorFields("request", err), logger.Fields(
			"attempt", attempt,
			"backoff", backoff.String(),
			logger.FieldTarget, a.config.Name,
		))
		if next != nil {
			next(attempt, err, backoff)
		}
	}
	return cfg
}

// Unwrap returns the underlying *http.Client for advanced use cases.
func (a *Adapter) Unwrap() *http.Client {
	return a.httpClient
}

// Name returns the configured client name.
func (a *Adapter) Name() string {
	return a.config.Name
}

// IsAvailable reports false while the circuit breaker is open.
func (a *Adapter) IsAvailable(_ context.Context) bool {
	if a.cb != nil {
		return a.cb.State() != resilience.StateOpen
	}
	return true
}

// Close releases idle connections.
func (a *Adapter) Close(_ context.Context) error {
	a.httpClient.CloseIdleConnections()
	return nil
}

// GetConfig returns the adapter's configuration.
func (a *Adapter) GetConfig() Config {
	return a.config
}

// doOnce executes a single HTTP request with CB and rate limiter.
func (a *Adapter) doOnce(ctx context.Context, req Request) (*Response, error) {
	if a.rl != nil {
		if err := a.rl.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if a.cb != nil {
		var resp *Response
		err := a.cb.Execute(func() error {
			var execErr error
			resp, execErr = a.executeRequest(ctx, req)
			return execErr
		})
		return resp, err
	}
	return a.executeRequest(ctx, req)
}

// executeRequest builds and sends the HTTP request.
func (a *Adapter) executeRequest(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := a.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		switch {
		case apperrors.IsAppError(err):
			// Resolution failed before anything was sent.
			return nil, err
		case ctx.Err() != nil:
			return nil, NewTimeoutError(err)
		default:
			return nil, NewConnectionError(err)
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewConnectionError(fmt.Errorf("read response body: %w", err))
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Body:       body,
	}

	if classErr := ClassifyStatusCode(resp.StatusCode, body); classErr != nil {
		return result, classErr
	}
	return result, nil
}

// buildRequest constructs an *http.Request from the adapter config and request.
func (a *Adapter) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := req.Path
	if a.config.BaseURL != "" && !strings.HasPrefix(req.Path, "http://") && !strings.HasPrefix(req.Path, "https://") {
		url = strings.TrimRight(a.config.BaseURL, "/") + "/" + strings.TrimLeft(req.Path, "/")
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, NewInvalidRequestError(fmt.Sprintf("encode body: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, NewInvalidRequestError(fmt.Sprintf("create request: %v", err))
	}

	if len(req.Query) > 0 {
		q := httpReq.URL.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}
	// Request headers override defaults.
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if body != nil && httpReq.Header.Get("Content-Type") == "" && contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	return httpReq, nil
}

// encodeBody converts a body value into an io.Reader and content type.
func encodeBody(body any) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	switch v := body.(type) {
	case io.Reader:
		return v, "", nil
	case []byte:
		return bytes.NewReader(v), "", nil
	case string:
		return strings.NewReader(v), "text/plain", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// replayable reports whether body can be encoded again for a retry.
func replayable(body any) bool {
	_, isReader := body.(io.Reader)
	return !isReader
}

// flattenHeaders converts multi-value headers to single-value.
func flattenHeaders(h http.Header) map[string]string {
	result := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			result[k] = v[0]
		}
	}
	return result
}
