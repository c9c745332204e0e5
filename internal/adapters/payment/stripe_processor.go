package payment

import (
	"context"
	"delivery-match-service/internal/platform/obs"
	"delivery-match-service/internal/ports"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeProcessor implements the PaymentProcessor port on Stripe
// PaymentIntents. A hold is a confirmed manual-capture intent against the
// payer's vaulted card; release captures it, refund cancels it. Every call
// carries the caller's idempotency key so retries after timeouts converge
// on one processor-side effect.
type StripeProcessor struct {
	client *client.API
	vault  ports.CardVault
	policy retryPolicy
}

func NewStripeProcessor(apiKey string, vault ports.CardVault) (*StripeProcessor, error) {
	if apiKey == "" {
		return nil, errors.New("stripe api key is empty")
	}
	if vault == nil {
		return nil, errors.New("stripe processor: card vault is nil")
	}

	sc := &client.API{}
	sc.Init(apiKey, nil)

	return &StripeProcessor{
		client: sc,
		vault:  vault,
		policy: defaultRetryPolicy(),
	}, nil
}

func (p *StripeProcessor) Hold(ctx context.Context, req ports.HoldRequest) (_ string, err error) {
	defer obs.Time(ctx, "stripe.Hold")(&err)

	if req.Amount <= 0 {
		return "", fmt.Errorf("stripe hold: amount %d must be positive", req.Amount)
	}

	customerID, paymentMethodID, err := p.vault.PaymentProfile(ctx, req.PayerID)
	if err != nil {
		return "", fmt.Errorf("stripe hold: resolve payment profile for %s: %w", req.PayerID, err)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(customerID),
		PaymentMethod: stripe.String(paymentMethodID),
		// Funds are reserved now and moved only on explicit capture.
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
		Description:   stripe.String(req.Description),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	var intent *stripe.PaymentIntent
	err = p.policy.run(ctx, func() error {
		var callErr error
		intent, callErr = p.client.PaymentIntents.New(params)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("stripe hold: create payment intent: %w", err)
	}

	if intent.Status != stripe.PaymentIntentStatusRequiresCapture {
		return "", fmt.Errorf("stripe hold: intent %s in status %s, funds not reserved", intent.ID, intent.Status)
	}

	return intent.ID, nil
}

func (p *StripeProcessor) Capture(ctx context.Context, holdRef, idempotencyKey string) (_ string, err error) {
	defer obs.Time(ctx, "stripe.Capture")(&err)

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}

	var intent *stripe.PaymentIntent
	err = p.policy.run(ctx, func() error {
		var callErr error
		intent, callErr = p.client.PaymentIntents.Capture(holdRef, params)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("stripe capture %s: %w", holdRef, err)
	}

	return receiptFor(intent), nil
}

func (p *StripeProcessor) Void(ctx context.Context, holdRef, idempotencyKey string) (_ string, err error) {
	defer obs.Time(ctx, "stripe.Void")(&err)

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}

	var intent *stripe.PaymentIntent
	err = p.policy.run(ctx, func() error {
		var callErr error
		intent, callErr = p.client.PaymentIntents.Cancel(holdRef, params)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("stripe void %s: %w", holdRef, err)
	}

	return receiptFor(intent), nil
}

// LookupHold reports the processor-side outcome of a hold so the
// reconciler can trust Stripe's confirmed result over local uncertainty.
func (p *StripeProcessor) LookupHold(ctx context.Context, holdRef string) (_ ports.HoldState, _ string, err error) {
	defer obs.Time(ctx, "stripe.LookupHold")(&err)

	intent, err := p.client.PaymentIntents.Get(holdRef, nil)
	if err != nil {
		return ports.HoldStateUnknown, "", fmt.Errorf("stripe lookup %s: %w", holdRef, err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return ports.HoldStateHeld, "", nil
	case stripe.PaymentIntentStatusSucceeded:
		return ports.HoldStateCaptured, receiptFor(intent), nil
	case stripe.PaymentIntentStatusCanceled:
		return ports.HoldStateVoided, receiptFor(intent), nil
	}
	return ports.HoldStateUnknown, "", nil
}

func receiptFor(intent *stripe.PaymentIntent) string {
	if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
		return intent.LatestCharge.ID
	}
	return intent.ID
}
