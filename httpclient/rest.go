package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// TypedResponse is a response whose JSON body was decoded into T.
type TypedResponse[T any] struct {
	StatusCode int
	Headers    map[string]string
	Data       T
}

// RequestOption adjusts one request before it is sent.
type RequestOption func(*Request)

// WithHeader sets a request header, e.g. a correlation id for the callee.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = make(map[string]string)
		}
		r.Headers[key] = value
	}
}

// WithQueryParam sets a query parameter.
func WithQueryParam(key, value string) RequestOption {
	return func(r *Request) {
		if r.Query == nil {
			r.Query = make(map[string]string)
		}
		r.Query[key] = value
	}
}

// Get fetches path from the adapter's target and decodes the JSON answer.
// With a resolver the target is a service name, so
//
//	Get[Order](orders, ctx, "/orders/7")
//
// on an adapter for http://orders-api goes to whichever instance the
// registry picks.
func Get[T any](a *Adapter, ctx context.Context, path string, opts ...RequestOption) (*TypedResponse[T], error) {
	return send[T](a, ctx, http.MethodGet, path, nil, opts)
}

// Post sends body as JSON and decodes the answer.
func Post[T any](a *Adapter, ctx context.Context, path string, body any, opts ...RequestOption) (*TypedResponse[T], error) {
	return send[T](a, ctx, http.MethodPost, path, body, opts)
}

// Put sends body as JSON and decodes the answer.
func Put[T any](a *Adapter, ctx context.Context, path string, body any, opts ...RequestOption) (*TypedResponse[T], error) {
	return send[T](a, ctx, http.MethodPut, path, body, opts)
}

// Patch sends body as JSON and decodes the answer.
func Patch[T any](a *Adapter, ctx context.Context, path string, body any, opts ...RequestOption) (*TypedResponse[T], error) {
	return send[T](a, ctx, http.MethodPatch, path, body, opts)
}

// Delete removes path and decodes the answer, if any.
func Delete[T any](a *Adapter, ctx context.Context, path string, opts ...RequestOption) (*TypedResponse[T], error) {
	return send[T](a, ctx, http.MethodDelete, path, nil, opts)
}

// send runs the request through Do. A 4xx or 5xx answer comes back with
// its decoded body when it is JSON, next to the *Error.
func send[T any](a *Adapter, ctx context.Context, method, path string, body any, opts []RequestOption) (*TypedResponse[T], error) {
	req := Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(&req)
	}

	resp, err := a.Do(ctx, req)
	if err != nil {
		if resp == nil || !resp.IsError() {
			return nil, err
		}
		typed, decodeErr := decode[T](resp)
		if decodeErr != nil {
			return nil, err
		}
		return typed, err
	}

	typed, err := decode[T](resp)
	if err != nil {
		return nil, fmt.Errorf("httpclient: decode %s %s: %w", method, path, err)
	}
	return typed, nil
}

func decode[T any](resp *Response) (*TypedResponse[T], error) {
	out := &TypedResponse[T]{StatusCode: resp.StatusCode, Headers: resp.Headers}
	if len(resp.Body) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(resp.Body, &out.Data); err != nil {
		return nil, err
	}
	return out, nil
}
