// Package retry runs an operation under an explicit retry policy.
package retry

import (
	"context"
	"errors"
	"time"
)

// Strategy computes the wait before a retry.
type Strategy int

const (
	// Linear waits Base, 2*Base, 3*Base, ...
	Linear Strategy = iota
	// Exponential waits Base, 2*Base, 4*Base, ...
	Exponential
	// Scheduled waits Schedule[n] before retry n (1-based); the last entry
	// repeats if retries outnumber it.
	Scheduled
)

// Policy describes how many times to retry and how long to wait between
// attempts. The zero value runs the operation once.
type Policy struct {
	Retries  int
	Base     time.Duration
	Strategy Strategy
	Schedule []time.Duration

	// Sleep waits between attempts. Nil means a context-aware timer;
	// tests inject a no-op.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each wait.
	OnRetry func(retry int, err error, wait time.Duration)
}

// NewLinear returns a policy waiting step, 2*step, ... between attempts.
func NewLinear(retries int, step time.Duration) Policy {
	return Policy{Retries: retries, Base: step, Strategy: Linear}
}

// NewExponential returns a policy waiting base, 2*base, 4*base, ...
func NewExponential(retries int, base time.Duration) Policy {
	return Policy{Retries: retries, Base: base, Strategy: Exponential}
}

// NewScheduled returns a policy whose delays are the wait before each
// attempt, so delays[0] is applied before the first attempt.
func NewScheduled(delays []time.Duration) Policy {
	if len(delays) == 0 {
		return Policy{}
	}
	return Policy{Retries: len(delays) - 1, Strategy: Scheduled, Schedule: delays}
}

// Delay returns the wait before the n-th retry (n starts at 1).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	switch p.Strategy {
	case Exponential:
		return p.Base << (n - 1)
	case Scheduled:
		if len(p.Schedule) == 0 {
			return 0
		}
		if n < len(p.Schedule) {
			return p.Schedule[n]
		}
		return p.Schedule[len(p.Schedule)-1]
	default:
		return p.Base * time.Duration(n)
	}
}

// Attempts is the total number of times the operation may run.
func (p Policy) Attempts() int {
	return p.Retries + 1
}

type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do runs fn until it succeeds, returns a Permanent error, the policy is
// exhausted, or ctx ends. The attempt number passed to fn starts at 1.
// On exhaustion the last error from fn is returned unchanged.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	if p.Strategy == Scheduled && len(p.Schedule) > 0 && p.Schedule[0] > 0 {
		if err := sleep(ctx, p.Schedule[0]); err != nil {
			return err
		}
	}

	var last error
	for attempt := 1; attempt <= p.Attempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		last = fn(ctx, attempt)
		if last == nil {
			return nil
		}

		var perm *permanent
		if errors.As(last, &perm) {
			return perm.err
		}

		if attempt == p.Attempts() {
			break
		}
		wait := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, last, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return last
		}
	}
	return last
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoSleep skips waits entirely.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
