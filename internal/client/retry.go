// Package client implements the outbound HTTP boundary: the notification
// gateway client, the event provider client, and the bounded-retry policy
// both share.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrTransient classifies failures worth retrying: network errors and
// non-2xx responses from either external dependency. Everything else
// propagates immediately.
var ErrTransient = errors.New("transient request failure")

// IsTransient reports whether err belongs to the retryable error class.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// RetryPolicy is a data-driven retry description: attempt ceiling, backoff
// schedule, and the predicate deciding which errors are worth another try.
// The gateway and provider clients share one implementation with the same
// predicate.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Retryable       func(error) bool
}

// DefaultRetryPolicy matches both external dependencies: up to 5 attempts,
// exponential backoff starting at 1s and capped at 10s, retrying only
// transient failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Retryable:       IsTransient,
	}
}

// Do runs op under the policy. The last error is returned once the attempt
// budget is exhausted; non-retryable errors return on the first occurrence.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := op(ctx); err != nil {
			if p.Retryable != nil && p.Retryable(err) {
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(p.backOff()), backoff.WithMaxTries(p.MaxAttempts))
	return err
}

func (p RetryPolicy) backOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	return bo
}
