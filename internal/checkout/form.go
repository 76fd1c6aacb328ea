package checkout

import (
	"regexp"
	"strings"

	"github.com/xenking/roseila-storefront/internal/domain/order"
	"github.com/xenking/roseila-storefront/internal/payment"
)

var (
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	postalCodePattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
)

// Form is the shipping and payment form.
type Form struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	City          string `json:"city"`
	PostalCode    string `json:"zipCode"`
	PaymentMethod string `json:"paymentMethod"`
}

// Validate returns the first unmet constraint in field order.
func (f Form) Validate() error {
	required := []struct {
		field string
		value string
		label string
	}{
		{"name", f.Name, "Name"},
		{"email", f.Email, "Email"},
		{"address", f.Address, "Address"},
		{"city", f.City, "City"},
		{"zipCode", f.PostalCode, "ZIP code"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Message: r.label + " is required"}
		}
	}
	if !emailPattern.MatchString(strings.TrimSpace(f.Email)) {
		return &ValidationError{Field: "email", Message: "Email is invalid"}
	}
	if !postalCodePattern.MatchString(strings.TrimSpace(f.PostalCode)) {
		return &ValidationError{Field: "zipCode", Message: "ZIP code is invalid"}
	}
	if strings.TrimSpace(f.PaymentMethod) == "" {
		return &ValidationError{Field: "paymentMethod", Message: "Payment method is required"}
	}
	return nil
}

func (f Form) address() order.ShippingAddress {
	return order.ShippingAddress{
		Name:       strings.TrimSpace(f.Name),
		Email:      strings.TrimSpace(f.Email),
		Address:    strings.TrimSpace(f.Address),
		City:       strings.TrimSpace(f.City),
		PostalCode: strings.TrimSpace(f.PostalCode),
	}
}

func (f Form) billing() payment.BillingDetails {
	a := f.address()
	return payment.BillingDetails{
		Name:       a.Name,
		Email:      a.Email,
		Address:    a.Address,
		City:       a.City,
		PostalCode: a.PostalCode,
	}
}
