package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/kbukum/consulkit/errors"
)

// Kind classifies HTTP client errors.
type Kind int

const (
	// KindTimeout indicates a request or connection timeout.
	KindTimeout Kind = iota
	// KindConnection indicates a connection failure (refused, DNS, etc).
	KindConnection
	// KindClient indicates a 4xx answer other than 404 and 429.
	KindClient
	// KindNotFound indicates the resource was not found (404).
	KindNotFound
	// KindRateLimit indicates rate limiting (429).
	KindRateLimit
	// KindServer indicates a server-side error (5xx).
	KindServer
	// KindInvalidRequest indicates the request could not be built.
	KindInvalidRequest
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindClient:
		return "client"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limit"
	case KindServer:
		return "server"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Error is an HTTP-level failure: a transport error or a non-2xx answer.
// Service resolution failures are not wrapped in Error; they surface as the
// resolver's AppError.
type Error struct {
	// StatusCode is the HTTP status code (0 for connection-level errors).
	StatusCode int
	Kind       Kind
	Message    string
	Retryable  bool
	// Body is the response body, if any.
	Body []byte
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("httpclient: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("httpclient: %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(err error) *Error {
	return &Error{Kind: KindTimeout, Message: err.Error(), Retryable: true, Err: err}
}

// NewConnectionError creates a connection error.
func NewConnectionError(err error) *Error {
	return &Error{Kind: KindConnection, Message: err.Error(), Retryable: true, Err: err}
}

// NewInvalidRequestError creates an error for a request that could not be built.
func NewInvalidRequestError(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg}
}

// ClassifyStatusCode converts an HTTP status code into a typed error.
// Returns nil for 2xx status codes.
func ClassifyStatusCode(statusCode int, body []byte) *Error {
	e := &Error{StatusCode: statusCode, Message: fmt.Sprintf("HTTP %d", statusCode), Body: body}
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusNotFound:
		e.Kind = KindNotFound
	case statusCode == http.StatusTooManyRequests:
		e.Kind, e.Retryable = KindRateLimit, true
	case statusCode >= 400 && statusCode < 500:
		e.Kind = KindClient
	case statusCode >= 500:
		e.Kind, e.Retryable = KindServer, true
	default:
		e.Kind = KindServer
	}
	return e
}

func kindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTimeout
}

// IsConnection checks if an error is a connection error.
func IsConnection(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConnection
}

// IsNotFound checks if an error is an HTTP 404 from the remote service.
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsServerError checks if an error is a server error.
func IsServerError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindServer
}

// IsRetryable reports whether a request that failed with err may be sent
// again. Context cancellation never is. Resolution failures follow their
// AppError code: an unreachable registry is retried, an unknown service or
// a missing address is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr.Retryable
	}
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// IsFailure reports whether err says something about the health of the
// remote side. Client errors and unknown services do not count against a
// circuit breaker.
func IsFailure(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr.Retryable
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindServer || e.Kind == KindTimeout || e.Kind == KindConnection
	}
	return true
}
