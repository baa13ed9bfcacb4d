// Package retry provides a configurable retry mechanism for operations that may fail temporarily.
// It wraps the retry-go package from Avast and exposes a simple interface with functional
// options for customizing retry behavior.
//
// Exponential backoff is the default delay strategy. Callers polling rate-limited services
// can switch to a fixed delay with WithFixedDelay and restrict which errors are retried with
// WithRetryIf.
//
// Basic usage:
//
//	r := retry.New()
//	err := r.Execute(ctx, func() error {
//	    return someOperation()
//	})
//
// Polling a rate-limited endpoint:
//
//	r := retry.New(
//	    retry.WithAttempts(20),
//	    retry.WithDelay(2*time.Second),
//	    retry.WithFixedDelay(),
//	    retry.WithRetryIf(func(err error) bool { return errors.Is(err, errRateLimited) }),
//	)
package retry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Retry defines the interface for retry operations.
type Retry interface {
	// Execute runs the given function with configured retry logic.
	//
	// The context allows for cancellation and timeout control. If the context
	// is canceled, the operation stops retrying and the context error is returned.
	//
	// Execute returns nil if the operation succeeds within the configured
	// number of attempts, or an error if all attempts fail or the context is done.
	Execute(ctx context.Context, operation func() error) error
}

// config holds internal settings for the retry mechanism.
type config struct {
	attempts    uint                 // maximum number of attempts, including the first one
	delay       time.Duration        // base delay between attempts
	maxDelay    time.Duration        // cap for the exponential delay
	fixed       bool                 // use a constant delay instead of exponential backoff
	lastErrOnly bool                 // whether to return only the last error
	retryIf     func(err error) bool // decides whether an error is worth another attempt
}

// Option defines a functional option for configuring the retry mechanism.
type Option func(*config)

// retrier implements the Retry interface using the retry-go package.
type retrier struct {
	cfg config
}

// Compile-time assertion that retrier implements Retry interface
var _ Retry = (*retrier)(nil)

// New creates and returns a Retry implementation configured with
// the provided options.
//
// Default configuration:
//   - attempts:    3 (1 initial attempt + 2 retries)
//   - delay:       1 second
//   - maxDelay:    5 seconds
//   - delay type:  exponential backoff
//   - lastErrOnly: true
//   - retryIf:     every error is retried
func New(opts ...Option) Retry {
	cfg := config{
		attempts:    3,
		delay:       1 * time.Second,
		maxDelay:    5 * time.Second,
		lastErrOnly: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &retrier{
		cfg: cfg,
	}
}

// Execute implements the Retry interface.
//
// The operation is first attempted immediately. If it fails with a retryable error it is
// attempted again after the configured delay, up to the configured number of attempts.
func (r *retrier) Execute(ctx context.Context, operation func() error) error {
	delayType := retry.BackOffDelay
	if r.cfg.fixed {
		delayType = retry.FixedDelay
	}

	options := []retry.Option{
		retry.Attempts(r.cfg.attempts),
		retry.Delay(r.cfg.delay),
		retry.MaxDelay(r.cfg.maxDelay),
		retry.DelayType(delayType),
		retry.LastErrorOnly(r.cfg.lastErrOnly),
		retry.Context(ctx),
	}

	if r.cfg.retryIf != nil {
		options = append(options, retry.RetryIf(r.cfg.retryIf))
	}

	return retry.Do(operation, options...)
}

// WithAttempts sets the maximum number of attempts (including the initial attempt).
// Default: 3.
func WithAttempts(n uint) Option {
	return func(c *config) {
		c.attempts = n
	}
}

// WithDelay sets the base delay between retry attempts.
// Default: 1 second.
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		c.delay = d
	}
}

// WithMaxDelay caps the exponential growth of the delay.
// Default: 5 seconds.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		c.maxDelay = d
	}
}

// WithFixedDelay waits exactly the configured delay between every attempt.
func WithFixedDelay() Option {
	return func(c *config) {
		c.fixed = true
	}
}

// WithLastErrorOnly sets whether to return only the last error.
// When false, all errors from all attempts are combined.
// Default: true.
func WithLastErrorOnly(b bool) Option {
	return func(c *config) {
		c.lastErrOnly = b
	}
}

// WithRetryIf restricts retries to errors for which f returns true. Any other
// error stops the loop and is returned immediately.
func WithRetryIf(f func(err error) bool) Option {
	return func(c *config) {
		c.retryIf = f
	}
}
