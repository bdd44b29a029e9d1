// Package provider defines the payment provider contract the flow
// strategies call through, and a registry that maps declarative provider
// names to constructible instances.
//
// Concrete backends (Stripe-style checkout links, x402 facilitators, etc.)
// live behind the Provider interface; the payment layer never depends on a
// specific one.
package provider

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

// Price is the amount a gated tool charges per invocation.
type Price struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// String renders the price for human-readable prompts, e.g. "25 USD".
func (p Price) String() string {
	return p.Amount.String() + " " + p.Currency
}

// Payment is the provider's answer to a payment creation request.
type Payment struct {
	// ID is the provider-issued payment or challenge identifier.
	ID string
	// URL is a human-followable payment page, when the provider has one.
	URL string
	// Data carries provider-opaque machine-readable payment data, such as
	// an x402 offer set. Nil for providers without a challenge scheme.
	Data json.RawMessage
}

// Status is a provider-reported payment state.
type Status string

const (
	StatusPaid     Status = "paid"
	StatusPending  Status = "pending"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
	StatusUnknown  Status = "unknown"
)

// Terminal reports whether the status is a terminal failure: the payment
// can no longer complete and associated state should be cleared.
func (s Status) Terminal() bool {
	switch s {
	case StatusFailed, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// Provider is the minimal capability set a payment backend must implement.
type Provider interface {
	// Name identifies the provider ("stripe", "x402", ...).
	Name() string

	// CreatePayment initiates a payment for the given price and returns the
	// provider-issued identifier plus whatever the caller needs to pay (a
	// URL, machine-readable offer data, or both).
	CreatePayment(ctx context.Context, price Price, description string) (*Payment, error)

	// GetPaymentStatus reports the state of a payment. The token is either
	// the payment identifier from CreatePayment or, for proof-based
	// schemes, the caller-supplied signed proof to verify.
	GetPaymentStatus(ctx context.Context, token string) (Status, error)
}

// Validate checks that a pre-built instance satisfies the minimal
// capability set. The interface enforces method presence statically; this
// guards against typed-nil instances smuggled in through the any-typed
// configuration path.
func Validate(p Provider) error {
	if p == nil {
		return errors.New("provider: nil instance")
	}
	if p.Name() == "" {
		return errors.New("provider: empty name")
	}
	return nil
}
