// Package payment creates and confirms payment intents with the payment
// gateway.
package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is charged when none is configured.
const DefaultCurrency = "usd"

// Input errors.
var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidItem     = errors.New("cart item needs a non-negative price and a positive quantity")
	ErrMissingEmail    = errors.New("email is required")
	ErrMissingSecret   = errors.New("client secret is required")
	ErrUnknownIntent   = errors.New("payment intent not found")
	ErrMalformedSecret = errors.New("malformed client secret")
)

// CartItem is one entry of the cart sent for intent creation. Raw keeps the
// item exactly as received so it can be forwarded unchanged.
type CartItem struct {
	ID       string
	Price    decimal.Decimal
	Quantity int
	Raw      jx.Raw
}

// IntentRequest asks for a payment credential covering a cart.
type IntentRequest struct {
	Cart  []CartItem
	Email string
}

// Intent is a created payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}

// IntentCreator turns a cart into a payment intent.
type IntentCreator interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
}

// NewIntentParams is what the gateway needs to create an intent.
type NewIntentParams struct {
	// Amount in minor currency units.
	Amount       int64
	Currency     string
	ReceiptEmail string
	Metadata     map[string]string
}

// Gateway is the server-side payment API.
type Gateway interface {
	NewIntent(ctx context.Context, params NewIntentParams) (*Intent, error)
}

// BillingDetails identify the payer.
type BillingDetails struct {
	Name       string
	Email      string
	Address    string
	City       string
	PostalCode string
}

// ConfirmParams authorize the charge behind a client secret.
type ConfirmParams struct {
	ClientSecret  string
	PaymentMethod string
	Billing       BillingDetails
}

// Confirmation is a successfully confirmed intent.
type Confirmation struct {
	IntentID string
	Status   string
}

// Confirmer confirms intents. A refused charge is reported as
// *DeclinedError.
type Confirmer interface {
	Confirm(ctx context.Context, params ConfirmParams) (*Confirmation, error)
}

// DeclinedError is a charge refused by the gateway. Message is the gateway's
// text and is shown to the payer verbatim.
type DeclinedError struct {
	Code    string
	Message string
}

func (e *DeclinedError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// IntentIDFromSecret extracts the intent id from a client secret of the form
// "<id>_secret_<nonce>".
func IntentIDFromSecret(secret string) (string, error) {
	id, _, ok := strings.Cut(secret, "_secret_")
	if !ok || id == "" {
		return "", ErrMalformedSecret
	}
	return id, nil
}

// NewCartItem builds a CartItem whose wire form carries the product id and
// name next to price and quantity.
func NewCartItem(productID, name string, price decimal.Decimal, quantity int) CartItem {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(productID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(name) })
		e.Field("price", func(e *jx.Encoder) { e.Num(jx.Num(price.String())) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(quantity) })
	})
	return CartItem{ID: productID, Price: price, Quantity: quantity, Raw: e.Bytes()}
}
