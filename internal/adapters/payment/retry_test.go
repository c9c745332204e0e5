package payment

import (
	"context"
	"delivery-match-service/internal/ports"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"stripe 500", &stripe.Error{HTTPStatusCode: 500}, true},
		{"stripe 503", &stripe.Error{HTTPStatusCode: 503}, true},
		{"stripe rate limit", &stripe.Error{HTTPStatusCode: 429, Code: stripe.ErrorCodeRateLimit}, true},
		{"stripe lock timeout", &stripe.Error{HTTPStatusCode: 409, Code: stripe.ErrorCodeLockTimeout}, true},
		{"card declined", &stripe.Error{HTTPStatusCode: 402, Code: stripe.ErrorCodeCardDeclined}, false},
		{"network timeout", timeoutError{}, true},
		{"plain error", errors.New("boom"), false},
	}

	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("%s: IsRetryable = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestRetryPolicyStopsOnPermanentError(t *testing.T) {
	policy := retryPolicy{attempts: 3, backoff: time.Millisecond}

	calls := 0
	declined := &stripe.Error{HTTPStatusCode: 402, Code: stripe.ErrorCodeCardDeclined}
	err := policy.run(context.Background(), func() error {
		calls++
		return declined
	})
	if !errors.Is(err, declined) {
		t.Fatalf("err = %v, want the declined error", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicyRecoversFromTransientError(t *testing.T) {
	policy := retryPolicy{attempts: 3, backoff: time.Millisecond}

	calls := 0
	err := policy.run(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &stripe.Error{HTTPStatusCode: 500}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicyGivesUpAfterAttempts(t *testing.T) {
	policy := retryPolicy{attempts: 2, backoff: time.Millisecond}

	calls := 0
	transient := &stripe.Error{HTTPStatusCode: 500}
	err := policy.run(context.Background(), func() error {
		calls++
		return transient
	})
	if err == nil {
		t.Fatal("expected the transient error to surface")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestRetryPolicyHonorsContext(t *testing.T) {
	policy := retryPolicy{attempts: 5, backoff: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := policy.run(ctx, func() error {
		calls++
		return &stripe.Error{HTTPStatusCode: 500}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 before the backoff wait", calls)
	}
}

func TestMockProcessorIdempotency(t *testing.T) {
	ctx := context.Background()
	m := NewMockProcessor()

	ref1, err := m.Hold(ctx, holdReq("key-1"))
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	ref2, err := m.Hold(ctx, holdReq("key-1"))
	if err != nil {
		t.Fatalf("repeat hold: %v", err)
	}
	if ref1 != ref2 {
		t.Fatalf("same key produced different holds: %s vs %s", ref1, ref2)
	}

	receipt1, err := m.Capture(ctx, ref1, "cap-1")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	receipt2, err := m.Capture(ctx, ref1, "cap-1")
	if err != nil {
		t.Fatalf("repeat capture: %v", err)
	}
	if receipt1 != receipt2 {
		t.Fatalf("repeat capture changed receipt: %q vs %q", receipt1, receipt2)
	}

	// A captured hold can no longer be voided.
	if _, err := m.Void(ctx, ref1, "void-1"); err == nil {
		t.Fatal("void of captured hold should fail")
	}
}

func holdReq(key string) ports.HoldRequest {
	return ports.HoldRequest{
		PayerID:        "payer-1",
		PayeeID:        "payee-1",
		Amount:         10000,
		Currency:       "EUR",
		IdempotencyKey: key,
	}
}
