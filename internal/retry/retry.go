// Package retry holds the single backoff policy used at every adapter boundary.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

const (
	DefaultMaxAttempts = 4
	DefaultBaseWait    = 500 * time.Millisecond
	DefaultMaxWait     = 8 * time.Second
)

// Policy is a bounded exponential backoff with full jitter.
// The zero value is usable and takes the defaults.
type Policy struct {
	MaxAttempts int
	BaseWait    time.Duration
	MaxWait     time.Duration

	// Retryable decides whether err is worth another attempt.
	// Nil means errors.Is(err, domain.ErrProviderUnavailable).
	Retryable func(error) bool

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the policy shared by the HTTP adapters and the order submitter.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseWait:    DefaultBaseWait,
		MaxWait:     DefaultMaxWait,
	}
}

// WithSleep returns a copy of p that waits through fn. Used by tests to avoid real sleeps.
func (p Policy) WithSleep(fn func(ctx context.Context, d time.Duration) error) Policy {
	p.sleep = fn
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
// The last error is returned unchanged so callers can still match sentinels.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	p = p.normalized()

	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !p.Retryable(err) || attempt == p.MaxAttempts-1 {
			return err
		}
		if serr := p.sleep(ctx, p.Backoff(attempt)); serr != nil {
			return errors.Join(err, serr)
		}
	}
	return err
}

// Backoff returns the jittered wait after the given zero-based attempt:
// a uniform value in [d/2, d] where d = min(MaxWait, BaseWait * 2^attempt).
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	d := time.Duration(math.Pow(2, float64(attempt))) * p.BaseWait
	if d > p.MaxWait || d <= 0 {
		d = p.MaxWait
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseWait <= 0 {
		p.BaseWait = DefaultBaseWait
	}
	if p.MaxWait <= 0 {
		p.MaxWait = DefaultMaxWait
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	if p.sleep == nil {
		p.sleep = sleepCtx
	}
	return p
}

// IsTransient reports whether err is a provider outage worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrProviderUnavailable)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
