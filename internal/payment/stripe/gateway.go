// Package stripe adapts the Stripe payment intents API to payment.Gateway
// and payment.Confirmer.
package stripe

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"

	"github.com/xenking/roseila-storefront/internal/payment"
)

type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

var (
	_ payment.Gateway   = (*Gateway)(nil)
	_ payment.Confirmer = (*Gateway)(nil)
)

// Gateway talks to Stripe with a secret key.
type Gateway struct {
	intents intentAPI
	// returnURL is required by Stripe when a redirect-based method is used.
	returnURL string
}

// New creates a Gateway authenticated with secretKey.
func New(secretKey, returnURL string) *Gateway {
	api := client.New(secretKey, nil)
	return &Gateway{intents: api.PaymentIntents, returnURL: returnURL}
}

// NewIntent creates a payment intent with automatic payment methods.
func (g *Gateway) NewIntent(ctx context.Context, p payment.NewIntentParams) (*payment.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(p.ReceiptEmail)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, errors.Wrap(describe(err), "stripe: create intent")
	}
	return &payment.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// Confirm confirms the intent behind the client secret. Card errors and
// intents left without a usable payment method become
// *payment.DeclinedError.
func (g *Gateway) Confirm(ctx context.Context, p payment.ConfirmParams) (*payment.Confirmation, error) {
	if p.ClientSecret == "" {
		return nil, payment.ErrMissingSecret
	}
	id, err := payment.IntentIDFromSecret(p.ClientSecret)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(p.PaymentMethod),
		Shipping: &stripe.ShippingDetailsParams{
			Name: stripe.String(p.Billing.Name),
			Address: &stripe.AddressParams{
				Line1:      stripe.String(p.Billing.Address),
				City:       stripe.String(p.Billing.City),
				PostalCode: stripe.String(p.Billing.PostalCode),
			},
		},
	}
	if p.Billing.Email != "" {
		params.ReceiptEmail = stripe.String(p.Billing.Email)
	}
	if g.returnURL != "" {
		params.ReturnURL = stripe.String(g.returnURL)
	}
	params.Context = ctx

	pi, err := g.intents.Confirm(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
			return nil, &payment.DeclinedError{Code: declineCode(se), Message: se.Msg}
		}
		return nil, errors.Wrap(describe(err), "stripe: confirm intent")
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded,
		stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresCapture:
		return &payment.Confirmation{IntentID: pi.ID, Status: string(pi.Status)}, nil
	case stripe.PaymentIntentStatusRequiresAction:
		return nil, &payment.DeclinedError{
			Code:    string(pi.Status),
			Message: "Your payment requires additional authentication.",
		}
	default:
		msg := "Your payment was not completed."
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			msg = pi.LastPaymentError.Msg
		}
		return nil, &payment.DeclinedError{Code: string(pi.Status), Message: msg}
	}
}

func declineCode(se *stripe.Error) string {
	if se.DeclineCode != "" {
		return string(se.DeclineCode)
	}
	return string(se.Code)
}

// describe keeps the gateway message when err is a Stripe API error.
func describe(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return errors.Errorf("%s: %s", se.Type, se.Msg)
	}
	return err
}
