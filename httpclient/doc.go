// Package httpclient provides an HTTP client for calling other services by
// name. Request hosts are resolved through a discovery.Resolver, failed
// calls are retried according to the configured policy, and an optional
// circuit breaker and rate limiter guard the remote side.
//
// # Basic Usage
//
//	client, err := httpclient.New(httpclient.Config{
//	    BaseURL: "http://billing",
//	    Retry:   httpclient.RetryConfigFromAttempts(opts.RequestRetries),
//	}, httpclient.WithResolver(registry))
//
//	resp, err := httpclient.Get[Invoice](client, ctx, "/invoices/42")
//
// # Retry
//
// RequestRetries from the "consul" section is the number of retries after
// the first attempt; 0 sends each request once. An unknown service
// (NOT_FOUND) or a missing address is never retried. An unreachable
// registry, a connection failure and a 5xx answer are.
package httpclient
