// Package pricing computes order-level charges derived from the cart subtotal.
package pricing

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// DefaultFlatFee is charged when the subtotal does not exceed the threshold.
	DefaultFlatFee = decimal.RequireFromString("5.99")
	// DefaultFreeThreshold is the subtotal above which shipping is waived.
	DefaultFreeThreshold = decimal.RequireFromString("50.00")
)

// ShippingRule is a flat shipping fee waived for subtotals strictly above
// FreeThreshold. A subtotal exactly at the threshold pays the fee.
type ShippingRule struct {
	FlatFee       decimal.Decimal
	FreeThreshold decimal.Decimal
}

// DefaultShipping returns the storefront's standard rule.
func DefaultShipping() ShippingRule {
	return ShippingRule{
		FlatFee:       DefaultFlatFee,
		FreeThreshold: DefaultFreeThreshold,
	}
}

// Fee returns the shipping charge for the given subtotal.
func (r ShippingRule) Fee(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(r.FreeThreshold) {
		return decimal.Zero
	}
	return floorAtZero(r.FlatFee).Round(2)
}

// Total returns subtotal plus the shipping fee, rounded to cents.
func (r ShippingRule) Total(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Add(r.Fee(subtotal)).Round(2)
}

// LineTotal returns price * quantity.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}

// MinorUnits converts an amount to integer minor currency units, rounding
// half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
