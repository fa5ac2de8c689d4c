// Package component defines the lifecycle contract shared by the HTTP server,
// the registry client and service registration.
//
// A Registry starts components in registration order and stops them in
// reverse, so the health endpoint is serving before the service registers
// itself and the registration is withdrawn before the endpoint goes away.
package component
