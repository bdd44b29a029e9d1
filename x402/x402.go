// Package x402 holds the wire types and codecs for the x402
// challenge/response payment scheme: the offer set a server issues with an
// HTTP 402, and the signed proof payload a caller presents on retry.
package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// X402Version is the protocol version this package speaks.
const X402Version = 1

// ChallengeHeader carries the base64-encoded offer set on a 402 response.
const ChallengeHeader = "PAYMENT-REQUIRED"

// ProofHeaders are the accepted request header names for a payment proof,
// checked in order. Different client generations use different names.
var ProofHeaders = []string{"X-PAYMENT", "PAYMENT-SIGNATURE", "X-PAYMENT-SIGNATURE"}

// Offer is a single payment option the server will accept.
type Offer struct {
	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the chain identifier (e.g., "eip155:8453").
	Network string `json:"network"`

	// MaxAmountRequired is the payment amount in atomic units.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Asset is the token contract address or mint address.
	Asset string `json:"asset"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo"`

	// Description is an optional human-readable payment description.
	Description string `json:"description,omitempty"`

	// MaxTimeoutSeconds is the validity period for the authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds,omitempty"`

	// Extra carries scheme-specific data, including the challenge
	// identifier under "challengeId".
	Extra map[string]any `json:"extra,omitempty"`
}

// ChallengeID extracts the embedded challenge identifier, if present.
func (o Offer) ChallengeID() string {
	if o.Extra == nil {
		return ""
	}
	id, _ := o.Extra["challengeId"].(string)
	return id
}

// PaymentRequirements is the complete 402 response body.
type PaymentRequirements struct {
	X402Version int     `json:"x402Version"`
	Error       string  `json:"error,omitempty"`
	Accepts     []Offer `json:"accepts"`
}

// AcceptedOffer echoes the offer the caller claims to have paid against.
// Its fields must exactly match the persisted offer before any remote
// verification happens.
type AcceptedOffer struct {
	Amount  string `json:"amount"`
	Network string `json:"network"`
	Asset   string `json:"asset"`
	PayTo   string `json:"payTo"`
	Extra   struct {
		ChallengeID string `json:"challengeId"`
	} `json:"extra"`
}

// Matches reports whether the claimed fields exactly equal the persisted
// offer's corresponding fields.
func (a AcceptedOffer) Matches(o Offer) bool {
	return a.Amount == o.MaxAmountRequired &&
		a.Network == o.Network &&
		a.Asset == o.Asset &&
		a.PayTo == o.PayTo
}

// ProofPayload is the inner signed payment data of a proof.
type ProofPayload struct {
	Authorization map[string]any `json:"authorization"`
	Signature     string         `json:"signature,omitempty"`
}

// PaymentPayload is the proof a caller presents on a retried call.
type PaymentPayload struct {
	X402Version int           `json:"x402Version,omitempty"`
	Scheme      string        `json:"scheme,omitempty"`
	Network     string        `json:"network,omitempty"`
	Payload     ProofPayload  `json:"payload"`
	Accepted    AcceptedOffer `json:"accepted"`
}

// EncodeRequirements serializes an offer set for the challenge header:
// base64(JSON).
func EncodeRequirements(pr *PaymentRequirements) (string, error) {
	b, err := json.Marshal(pr)
	if err != nil {
		return "", fmt.Errorf("x402: encode requirements: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeRequirements reverses EncodeRequirements.
func DecodeRequirements(s string) (*PaymentRequirements, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("x402: decode requirements: %w", err)
	}
	var pr PaymentRequirements
	if err := json.Unmarshal(b, &pr); err != nil {
		return nil, fmt.Errorf("x402: decode requirements: %w", err)
	}
	return &pr, nil
}

// DecodePayload decodes a base64(JSON) proof header value.
func DecodePayload(s string) (*PaymentPayload, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("x402: decode payload: %w", err)
	}
	var pp PaymentPayload
	if err := json.Unmarshal(b, &pp); err != nil {
		return nil, fmt.Errorf("x402: decode payload: %w", err)
	}
	return &pp, nil
}

// EncodePayload serializes a proof for the request header. Used by clients
// and tests.
func EncodePayload(pp *PaymentPayload) (string, error) {
	b, err := json.Marshal(pp)
	if err != nil {
		return "", fmt.Errorf("x402: encode payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// PaymentRequiredError short-circuits normal dispatch when a gated call
// lacks a proof: the host renders it as HTTP 402 with the offer set in the
// ChallengeHeader and the JSON body.
type PaymentRequiredError struct {
	Requirements *PaymentRequirements
}

func (e *PaymentRequiredError) Error() string {
	return "x402: payment required"
}
