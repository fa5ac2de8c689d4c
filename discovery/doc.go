// Package discovery registers this process with a service registry and
// resolves other services through it.
//
// The flow at startup is:
//
//	opts := cfg.Consul                         // Options bound from the "consul" section
//	id := discovery.NewServiceIdentity(opts.Service)
//	instanceID, err := discovery.Use(ctx, opts, id, registry, log)
//
// Use does nothing when registration is disabled, fails with
// ErrMissingAddress when it is enabled without an address, and otherwise
// submits one registration built by BuildRegistration. The registry runs the
// HTTP health check; this process never pings itself.
//
// Outgoing calls address services by name. Transport resolves the host part
// of each request URL through a Resolver and rewrites it to a healthy
// instance before sending:
//
//	client := &http.Client{Transport: &discovery.Transport{Resolver: registry}}
//	resp, err := client.Get("http://billing/invoices/42")
//
// # Backends
//
//   - discovery/consul: Consul agent and health APIs
//   - discovery/static: in-memory registry for development and tests
package discovery
