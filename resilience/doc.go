// Package resilience wraps outgoing calls with retry, circuit breaking and
// rate limiting.
//
//   - Retry: exponential backoff with jitter; AppErrors decide retryability
//     through their Retryable flag.
//   - CircuitBreaker: fails fast once a dependency keeps failing, built on
//     sony/gobreaker.
//   - RateLimiter: token bucket on golang.org/x/time/rate.
//
// The HTTP client composes them per request:
//
//	resp, err := resilience.Retry(ctx, retryCfg, func() (*Response, error) {
//	    if err := rl.Wait(ctx); err != nil {
//	        return nil, err
//	    }
//	    return sendThroughBreaker(ctx, req)
//	})
package resilience
