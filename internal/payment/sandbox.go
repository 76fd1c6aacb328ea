package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Test payment methods understood by Sandbox.
const (
	SandboxCardOK       = "pm_card_visa"
	SandboxCardDeclined = "pm_card_chargeDeclined"
	SandboxCardExpired  = "pm_card_chargeDeclinedExpiredCard"
)

var (
	_ Gateway   = (*Sandbox)(nil)
	_ Confirmer = (*Sandbox)(nil)
)

// SandboxIntent is an intent recorded by Sandbox.
type SandboxIntent struct {
	Intent
	ReceiptEmail string
	Metadata     map[string]string
	Status       string
}

// Sandbox is an in-memory gateway for local runs. It declines the well-known
// test cards and accepts every other payment method.
type Sandbox struct {
	mu      sync.Mutex
	intents map[string]*SandboxIntent
}

// NewSandbox creates an empty Sandbox.
func NewSandbox() *Sandbox {
	return &Sandbox{intents: map[string]*SandboxIntent{}}
}

// NewIntent implements Gateway.
func (s *Sandbox) NewIntent(_ context.Context, params NewIntentParams) (*Intent, error) {
	id := "pi_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	in := &SandboxIntent{
		Intent: Intent{
			ID:           id,
			ClientSecret: id + "_secret_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16],
			Amount:       params.Amount,
			Currency:     params.Currency,
		},
		ReceiptEmail: params.ReceiptEmail,
		Metadata:     params.Metadata,
		Status:       "requires_payment_method",
	}

	s.mu.Lock()
	s.intents[id] = in
	s.mu.Unlock()

	out := in.Intent
	return &out, nil
}

// Confirm implements Confirmer.
func (s *Sandbox) Confirm(_ context.Context, params ConfirmParams) (*Confirmation, error) {
	if params.ClientSecret == "" {
		return nil, ErrMissingSecret
	}
	id, err := IntentIDFromSecret(params.ClientSecret)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.intents[id]
	if !ok || in.ClientSecret != params.ClientSecret {
		return nil, ErrUnknownIntent
	}
	switch params.PaymentMethod {
	case SandboxCardDeclined:
		return nil, &DeclinedError{Code: "card_declined", Message: "Your card was declined."}
	case SandboxCardExpired:
		return nil, &DeclinedError{Code: "expired_card", Message: "Your card has expired."}
	}
	in.Status = "succeeded"
	return &Confirmation{IntentID: id, Status: in.Status}, nil
}

// Intent returns a recorded intent by id.
func (s *Sandbox) Intent(id string) (SandboxIntent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[id]
	if !ok {
		return SandboxIntent{}, false
	}
	return *in, true
}
