package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/example/trip-dispatch/internal/models"
)

// StripeClient is a thin wrapper around stripe-go for PaymentIntent
// hold/capture/cancel flows on card trips.
type StripeClient struct{}

// NewStripeClient initializes the package-global stripe key.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{}
}

// Hold creates a PaymentIntent with capture_method=manual to hold funds.
// It returns the PaymentIntent ID on success.
func (s *StripeClient) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent.
func (s *StripeClient) Capture(ctx context.Context, reference string) error {
	_, err := paymentintent.Capture(reference, nil)
	return err
}

// Release cancels the hold on a PaymentIntent.
func (s *StripeClient) Release(ctx context.Context, reference string) error {
	_, err := paymentintent.Cancel(reference, nil)
	return err
}

// StripeGateway layers live PaymentIntent status on top of a record
// source: card payments still marked pending are re-checked against the
// processor before the engine trusts them.
type StripeGateway struct {
	Records Gateway
}

func NewStripeGateway(records Gateway) *StripeGateway {
	return &StripeGateway{Records: records}
}

func (g *StripeGateway) GetPaymentForTrip(ctx context.Context, tripID string) (models.Payment, bool, error) {
	p, ok, err := g.Records.GetPaymentForTrip(ctx, tripID)
	if err != nil || !ok {
		return p, ok, err
	}
	if p.Method != models.PayCard || p.Status != models.PaymentPending || p.Reference == "" {
		return p, true, nil
	}
	pi, err := paymentintent.Get(p.Reference, nil)
	if err != nil {
		// lookup failure leaves the stored status authoritative
		return p, true, nil
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture:
		p.Status = models.PaymentSuccess
	case stripe.PaymentIntentStatusCanceled:
		p.Status = models.PaymentFailed
	}
	return p, true, nil
}
