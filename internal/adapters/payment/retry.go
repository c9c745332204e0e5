package payment

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/stripe/stripe-go/v79"
)

// retryPolicy retries transient processor failures with linear backoff.
// Retrying is safe only because every call carries an idempotency key;
// declined cards and other client errors are never retried.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{attempts: 3, backoff: 500 * time.Millisecond}
}

func (r retryPolicy) run(ctx context.Context, call func() error) error {
	var err error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * r.backoff):
			}
		}

		err = call()
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}

// IsRetryable classifies an error from the processor as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return isRetryableStripeError(err) || isRetryableNetworkError(err)
}

func isRetryableStripeError(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}

	// 5xx means Stripe itself faltered; 4xx means the request (or card)
	// is the problem and retrying cannot help.
	if stripeErr.HTTPStatusCode >= 500 && stripeErr.HTTPStatusCode < 600 {
		return true
	}

	switch stripeErr.Code {
	case stripe.ErrorCodeRateLimit, stripe.ErrorCodeLockTimeout:
		return true
	}
	return false
}

func isRetryableNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
