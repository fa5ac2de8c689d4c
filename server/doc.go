// Package server provides the HTTP server that answers the registry's health
// checks. It is backed by Gin and wrapped with h2c so HTTP/2 cleartext
// checks are accepted on the same port.
//
// The server follows the component pattern: NewComponent wraps a Server so
// it can be started before registration and stopped after deregistration.
//
// # Middleware
//
// Built-in middleware (server/middleware):
//
//   - Recovery: panic recovery with structured logging
//   - otelgin: a server span per request on the global tracer provider
//   - RequestID: request ID generation and propagation
//   - RequestLogger: request logging by status class
//
// # Endpoints
//
// endpoint.Health aggregates component health and answers 503 when any
// component is unhealthy. It is mounted at the configured ping path.
// RegisterMetrics mounts a Prometheus scrape handler next to it.
package server
