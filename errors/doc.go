// Package errors provides the structured error type shared by the registry
// adapters, the registration bootstrap and the discovery-aware HTTP client.
// Errors carry a machine-readable code, an HTTP status hint and a retryable
// flag in the spirit of RFC 7807.
package errors
