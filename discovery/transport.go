package discovery

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kbukum/consulkit/logger"
	"github.com/kbukum/consulkit/observability"
)

// Transport is an http.RoundTripper that treats the request host as a
// service name. Each request is resolved through Resolver and rewritten to
// the returned instance before it is handed to Base:
//
//	Pending -> Resolving -> Resolved -> Dispatched
//	Pending -> Resolving -> Failed
//
// A failed lookup returns the lookup error and sends nothing. Transport
// never retries; wrap the client in a retry policy for that.
type Transport struct {
	// Resolver maps service names to instances. Required.
	Resolver Resolver
	// Base sends the rewritten request. Nil uses http.DefaultTransport.
	Base http.RoundTripper
	// Scheme, when set, replaces the request scheme after resolution.
	Scheme string
	// Log receives debug output. Nil discards it.
	Log *logger.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	serviceName := req.URL.Hostname()

	ctx, span := observability.StartSpan(req.Context(), observability.SpanServiceResolve)
	span.SetAttributes(attribute.String(observability.AttrTarget, serviceName))

	inst, err := t.resolve(ctx, serviceName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		closeBody(req)
		t.log().Debug("service resolution failed", logger.Fields(logger.FieldTarget, serviceName, logger.FieldError, err.Error()))
		return nil, fmt.Errorf("resolve service %q: %w", serviceName, err)
	}
	span.SetAttributes(attribute.String(observability.AttrServiceID, inst.ID))
	span.End()

	out := req.Clone(req.Context())
	out.URL.Host = inst.HostPort()
	if t.Scheme != "" {
		out.URL.Scheme = t.Scheme
	}
	out.Host = out.URL.Host

	t.log().Debug("service resolved", logger.Fields(
		logger.FieldTarget, serviceName,
		logger.FieldServiceID, inst.ID,
		"host", out.URL.Host,
	))
	return t.base().RoundTrip(out)
}

func (t *Transport) resolve(ctx context.Context, serviceName string) (ServiceInstance, error) {
	if err := ctx.Err(); err != nil {
		return ServiceInstance{}, err
	}
	if t.Resolver == nil {
		return ServiceInstance{}, fmt.Errorf("discovery transport has no resolver")
	}
	return t.Resolver.Lookup(ctx, serviceName)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) log() *logger.Logger {
	if t.Log != nil {
		return t.Log
	}
	return logger.Nop()
}

// closeBody honours the RoundTripper contract of closing the request body
// even when the request is never sent.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

// NewHTTPClient returns an http.Client whose requests are resolved through r.
func NewHTTPClient(r Resolver, base http.RoundTripper) *http.Client {
	return &http.Client{Transport: &Transport{Resolver: r, Base: base}}
}
