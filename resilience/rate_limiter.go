package resilience

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a call cannot get a token before its
// deadline.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiterConfig bounds the calls made to one service.
type RateLimiterConfig struct {
	// Name is the target service, reported to OnLimit.
	Name string
	// Rate is the number of calls allowed per second.
	Rate float64
	// Burst is how many calls may go out back to back.
	Burst int
	// OnLimit is called when a call has to be held back.
	OnLimit func(name string)
}

// DefaultRateLimiterConfig allows 10 calls a second with bursts of 20.
func DefaultRateLimiterConfig(name string) RateLimiterConfig {
	return RateLimiterConfig{
		Name:  name,
		Rate:  10.0,
		Burst: 20,
	}
}

// RateLimiter is a token bucket on golang.org/x/time/rate.
type RateLimiter struct {
	config  RateLimiterConfig
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter. A zero rate falls back to 10/s and a
// zero burst to one second's worth of calls.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10.0
	}
	if config.Burst <= 0 {
		config.Burst = max(int(config.Rate), 1)
	}
	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
	}
}

// Allow takes a token if one is free right now.
func (rl *RateLimiter) Allow() bool {
	if rl.limiter.Allow() {
		return true
	}
	rl.limited()
	return false
}

// Wait takes a token, blocking until one is free. When ctx would expire
// first it returns ErrRateLimited without waiting; a ctx that is already
// done returns its own error.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.Allow() {
		return nil
	}
	if err := rl.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s", ErrRateLimited, rl.config.Name)
	}
	return nil
}

func (rl *RateLimiter) limited() {
	if rl.config.OnLimit != nil {
		rl.config.OnLimit(rl.config.Name)
	}
}
