// Package retry holds the exponential backoff policy used by the sync loops.
package retry

import (
	"context"
	"time"
)

// Defaults used when a Policy field is zero.
const (
	DefaultBaseDelay  = 2 * time.Second
	DefaultMaxRetries = 5
)

// Policy is a bounded exponential backoff: retry n waits BaseDelay * 2^n.
type Policy struct {
	BaseDelay  time.Duration
	MaxRetries int
}

// Default returns the 2s / 5 retries policy.
func Default() Policy {
	return Policy{BaseDelay: DefaultBaseDelay, MaxRetries: DefaultMaxRetries}
}

// WithDefaults fills zero fields. A negative MaxRetries disables retrying.
func (p Policy) WithDefaults() Policy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// cap the shift so the duration cannot overflow
	if attempt > 30 {
		attempt = 30
	}
	return p.BaseDelay << attempt
}

// Exhausted reports whether attempt retries have already been spent.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxRetries
}

// Do runs fn until it succeeds or the retries are spent, sleeping between
// attempts. It returns the last error, or ctx.Err() if ctx ends first.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.Delay(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if p.Exhausted(attempt) {
			return lastErr
		}
	}
}
