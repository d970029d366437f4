// Package retry provides bounded exponential backoff with jitter and the
// error markers callers use to steer it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy bounds a retry loop. Zero fields take the defaults below.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	Base       time.Duration
	MaxDelay   time.Duration
	// Jitter scales each delay by a random factor in [1-Jitter, 1+Jitter].
	Jitter float64
	// Retryable decides whether a failed attempt may be retried. Nil retries
	// every error not marked Permanent.
	Retryable func(error) bool
	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

const (
	defaultBase     = 500 * time.Millisecond
	defaultMaxDelay = 15 * time.Second
	defaultJitter   = 0.2
)

// Do calls fn until it succeeds, returns a non-retryable error, the policy is
// exhausted, or ctx is done. It returns the number of attempts made and the
// last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) (int, error) {
	attempt := 0
	for {
		attempt++
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if IsPermanent(err) || (p.Retryable != nil && !p.Retryable(err)) {
			return attempt, err
		}
		if attempt > p.MaxRetries {
			return attempt, err
		}
		if ctx.Err() != nil {
			return attempt, err
		}

		d := Delay(p, attempt)
		var ra AfterError
		if errors.As(err, &ra) && ra.RetryAfter() > d {
			d = min(ra.RetryAfter(), maxDelay(p))
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, d, err)
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, err
		case <-timer.C:
		}
	}
}

// Delay is the wait before retry number n (n starts at 1): Base doubled per
// retry, capped at MaxDelay, with jitter applied.
func Delay(p Policy, n int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = defaultBase
	}
	maxD := maxDelay(p)
	j := p.Jitter
	if j <= 0 {
		j = defaultJitter
	}
	if j > 1 {
		j = 1
	}

	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	d = time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*j))
	if d < 0 {
		return 0
	}
	return d
}

func maxDelay(p Policy) time.Duration {
	if p.MaxDelay <= 0 {
		return defaultMaxDelay
	}
	return p.MaxDelay
}

// Permanent marks err as non-retryable.
//
//	return retry.Permanent(fmt.Errorf("schedule %s: %w", id, ErrGone))
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err is wrapped with Permanent.
func IsPermanent(err error) bool {
	var e permanentError
	return errors.As(err, &e)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// After attaches a suggested delay to err, for example from a rate-limit
// response. Do honours the hint up to MaxDelay.
func After(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return afterError{err: err, after: max(after, 0)}
}

// AfterError is implemented by errors that carry an explicit retry delay.
type AfterError interface {
	error
	RetryAfter() time.Duration
}

type afterError struct {
	err   error
	after time.Duration
}

func (e afterError) Error() string             { return fmt.Sprintf("retry after %s: %v", e.after, e.err) }
func (e afterError) Unwrap() error             { return e.err }
func (e afterError) RetryAfter() time.Duration { return e.after }
