package payment

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/roseila-storefront/internal/pricing"
)

var _ IntentCreator = (*IntentService)(nil)

// IntentService prices a cart and asks the gateway for an intent.
type IntentService struct {
	gateway  Gateway
	currency string
}

// NewIntentService creates an IntentService charging in currency.
func NewIntentService(gateway Gateway, currency string) *IntentService {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &IntentService{gateway: gateway, currency: strings.ToLower(currency)}
}

// CreateIntent charges round(sum(price*quantity)*100) minor units, emails the
// receipt to req.Email and attaches the cart as chunked metadata.
func (s *IntentService) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if len(req.Cart) == 0 {
		return nil, ErrEmptyCart
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, ErrMissingEmail
	}

	sum := decimal.Zero
	for i, item := range req.Cart {
		if item.Quantity <= 0 || item.Price.IsNegative() {
			return nil, errors.Wrapf(ErrInvalidItem, "item %d", i)
		}
		sum = sum.Add(pricing.LineTotal(item.Price, item.Quantity))
	}

	intent, err := s.gateway.NewIntent(ctx, NewIntentParams{
		Amount:       pricing.MinorUnits(sum),
		Currency:     s.currency,
		ReceiptEmail: email,
		Metadata:     cartMetadata(req.Cart),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	return intent, nil
}
