package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors.
var (
	// ErrEmptyCart stops a checkout before any network call.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrAuthRequired means the payer must sign in first.
	ErrAuthRequired = errors.New("sign in to complete checkout")
	// ErrInProgress rejects a submit while another is in flight.
	ErrInProgress = errors.New("checkout already in progress")
)

// ValidationError names the first shipping form field that failed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PaymentIntentError means no payment credential could be obtained. The cart
// is untouched and the payer may resubmit.
type PaymentIntentError struct {
	Err error
}

func (e *PaymentIntentError) Error() string {
	return "payment could not be started: " + e.Err.Error()
}

func (e *PaymentIntentError) Unwrap() error { return e.Err }

// PaymentDeclinedError is a refused charge. Message comes from the gateway
// unchanged.
type PaymentDeclinedError struct {
	Code    string
	Message string
	Err     error
}

func (e *PaymentDeclinedError) Error() string {
	return e.Message
}

func (e *PaymentDeclinedError) Unwrap() error { return e.Err }

// PersistenceError means the payment went through but the order could not be
// recorded.
type PersistenceError struct {
	PaymentIntentID string
	Err             error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("payment %s succeeded but the order was not saved: %v", e.PaymentIntentID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
