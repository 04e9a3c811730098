package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultAttempts  = 3
	defaultDelay     = 500 * time.Millisecond
	defaultMaxDelay  = 8 * time.Second
	defaultMaxJitter = 250 * time.Millisecond
)

// Config is a bounded retry policy: exponential backoff plus random jitter, capped at MaxDelay.
type Config struct {
	Attempts  uint
	Delay     time.Duration
	MaxDelay  time.Duration
	MaxJitter time.Duration
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Attempts:  defaultAttempts,
		Delay:     defaultDelay,
		MaxDelay:  defaultMaxDelay,
		MaxJitter: defaultMaxJitter,
	}
}

// ToRetryOptions converts the policy into retry-go options bound to ctx. retryIf decides
// which errors are worth another attempt; onRetry may be nil.
func (c Config) ToRetryOptions(ctx context.Context, retryIf func(error) bool, onRetry func(n uint, err error)) []retry.Option {
	c = c.withDefaults()
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.Attempts),
		retry.Delay(c.Delay),
		retry.MaxDelay(c.MaxDelay),
		retry.MaxJitter(c.MaxJitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	}
	if retryIf != nil {
		opts = append(opts, retry.RetryIf(retryIf))
	}
	if onRetry != nil {
		opts = append(opts, retry.OnRetry(onRetry))
	}
	return opts
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Attempts == 0 {
		c.Attempts = d.Attempts
	}
	if c.Delay <= 0 {
		c.Delay = d.Delay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxJitter <= 0 {
		c.MaxJitter = d.MaxJitter
	}
	return c
}

// Do runs fn under the policy and returns its last result.
func Do[T any](ctx context.Context, c Config, retryIf func(error) bool, onRetry func(uint, error), fn func() (T, error)) (T, error) {
	return retry.DoWithData(fn, c.ToRetryOptions(ctx, retryIf, onRetry)...)
}
