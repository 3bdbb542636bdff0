// Package retry provides the generic retry(n, backoff, predicate)
// combinator used by the outbox relay's publish retry. The bus
// reconnect loop and the payment/refund retry loops in internal/saga
// are separate loops and do not call it.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy configures a bounded exponential backoff retry.
type Policy struct {
	MaxAttempts uint
	Initial     time.Duration
	Max         time.Duration
}

// Do runs op, retrying up to p.MaxAttempts times with exponential
// backoff between p.Initial and p.Max. If isRetryable is non-nil and
// returns false for an error, that error is treated as permanent and
// Do returns immediately without exhausting the attempt budget.
func Do(ctx context.Context, p Policy, isRetryable func(error) bool, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if isRetryable != nil && !isRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.MaxAttempts))
	return err
}
