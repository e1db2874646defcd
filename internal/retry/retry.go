// Package retry runs remote calls under a bounded exponential backoff policy.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy describes how often and how patiently an operation is retried.
// Attempt i (0-based) that fails and is not the last is followed by a wait of BaseDelay * 2^i.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Jitter spreads each wait uniformly over [delay/2, delay). Off by default.
	Jitter bool
	// Sleep overrides the real timer; tests inject a recorder here.
	Sleep Sleeper
	// OnRetry is invoked before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// New builds a policy with the given attempt budget and base delay.
func New(maxAttempts int, baseDelay time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Backoff returns the wait that follows failed attempt (0-based).
func (p Policy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt) //nolint:gosec // attempt is bounded by MaxAttempts
	if !p.Jitter || delay <= 1 {
		return delay
	}
	half := delay / 2
	n, err := rand.Int(rand.Reader, big.NewInt(int64(half)))
	if err != nil {
		return delay
	}
	return half + time.Duration(n.Int64())
}

// Do invokes op until it succeeds, returns a permanent error, or the attempt budget is spent.
// There is no wait after the final attempt.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		delay := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry aborted after attempt %d: %w: %w", attempt+1, err, lastErr)
		}
	}
	return lastErr
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// SleepContext blocks for d or until ctx is canceled.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
