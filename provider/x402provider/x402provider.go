// Package x402provider implements the provider contract for the x402
// challenge/response scheme. CreatePayment issues a machine-readable offer
// set with an embedded challenge identifier; GetPaymentStatus verifies a
// caller-supplied proof against a facilitator endpoint.
package x402provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/paymcp/paymcp-go/provider"
	"github.com/paymcp/paymcp-go/x402"
)

// Config describes the offers this provider issues and the facilitator
// that verifies proofs against them.
type Config struct {
	// PayTo is the recipient address payments settle to. Required.
	PayTo string
	// Asset is the token contract or mint address. Required.
	Asset string
	// Network is the chain identifier, e.g. "eip155:8453". Required.
	Network string
	// Scheme is the payment scheme; defaults to "exact".
	Scheme string
	// AssetDecimals converts decimal prices into atomic units; defaults to
	// 6 (USDC-style).
	AssetDecimals int
	// FacilitatorURL is the verification endpoint. Required.
	FacilitatorURL string
	// MaxTimeoutSeconds bounds offer validity; defaults to 300.
	MaxTimeoutSeconds int
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Provider issues x402 offers and verifies proofs.
type Provider struct {
	cfg    Config
	client *http.Client
}

var _ provider.Provider = (*Provider)(nil)

// New validates cfg and builds the provider. Missing required options are
// a configuration error raised here, never at call time.
func New(cfg Config) (*Provider, error) {
	if cfg.PayTo == "" {
		return nil, fmt.Errorf("x402provider: payTo is required")
	}
	if cfg.Asset == "" {
		return nil, fmt.Errorf("x402provider: asset is required")
	}
	if cfg.Network == "" {
		return nil, fmt.Errorf("x402provider: network is required")
	}
	if cfg.FacilitatorURL == "" {
		return nil, fmt.Errorf("x402provider: facilitator URL is required")
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "exact"
	}
	if cfg.AssetDecimals == 0 {
		cfg.AssetDecimals = 6
	}
	if cfg.MaxTimeoutSeconds == 0 {
		cfg.MaxTimeoutSeconds = 300
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Provider{cfg: cfg, client: client}, nil
}

// Factory adapts New to the registry's declarative option map.
func Factory(opts map[string]string) (provider.Provider, error) {
	return New(Config{
		PayTo:          opts["pay_to"],
		Asset:          opts["asset"],
		Network:        opts["network"],
		Scheme:         opts["scheme"],
		FacilitatorURL: opts["facilitator_url"],
	})
}

func (p *Provider) Name() string { return "x402" }

// CreatePayment issues a fresh challenge: one offer carrying the price in
// atomic units and a uuid challenge identifier. The offer set travels back
// to the caller verbatim in Payment.Data.
func (p *Provider) CreatePayment(ctx context.Context, price provider.Price, description string) (*provider.Payment, error) {
	challengeID := uuid.NewString()
	offer := x402.Offer{
		Scheme:            p.cfg.Scheme,
		Network:           p.cfg.Network,
		MaxAmountRequired: price.Amount.Shift(int32(p.cfg.AssetDecimals)).Truncate(0).String(),
		Asset:             p.cfg.Asset,
		PayTo:             p.cfg.PayTo,
		Description:       description,
		MaxTimeoutSeconds: p.cfg.MaxTimeoutSeconds,
		Extra:             map[string]any{"challengeId": challengeID},
	}
	reqs := &x402.PaymentRequirements{
		X402Version: x402.X402Version,
		Error:       "payment required",
		Accepts:     []x402.Offer{offer},
	}
	data, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("x402provider: marshal offers: %w", err)
	}
	return &provider.Payment{ID: challengeID, Data: data}, nil
}

// verifyRequest is the facilitator wire request.
type verifyRequest struct {
	X402Version int    `json:"x402Version"`
	Payment     string `json:"payment"`
}

// verifyResponse is the facilitator wire response.
type verifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// GetPaymentStatus verifies a proof with the facilitator. The token is the
// raw base64 proof header as presented by the caller.
func (p *Provider) GetPaymentStatus(ctx context.Context, token string) (provider.Status, error) {
	body, err := json.Marshal(verifyRequest{X402Version: x402.X402Version, Payment: token})
	if err != nil {
		return provider.StatusUnknown, fmt.Errorf("x402provider: marshal verify request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.FacilitatorURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return provider.StatusUnknown, fmt.Errorf("x402provider: build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return provider.StatusUnknown, fmt.Errorf("x402provider: verify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.StatusUnknown, fmt.Errorf("x402provider: verify: facilitator returned %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return provider.StatusUnknown, fmt.Errorf("x402provider: decode verify response: %w", err)
	}
	if vr.IsValid {
		return provider.StatusPaid, nil
	}
	return provider.StatusFailed, nil
}
