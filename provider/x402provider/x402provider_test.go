package x402provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paymcp/paymcp-go/provider"
	"github.com/paymcp/paymcp-go/x402"
	"github.com/shopspring/decimal"
)

func testConfig() Config {
	return Config{
		PayTo:          "0x1111111111111111111111111111111111111111",
		Asset:          "0xusdc",
		Network:        "eip155:8453",
		FacilitatorURL: "http://facilitator.invalid",
	}
}

func TestNewRequiresConfig(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"payTo", func(c *Config) { c.PayTo = "" }},
		{"asset", func(c *Config) { c.Asset = "" }},
		{"network", func(c *Config) { c.Network = "" }},
		{"facilitator", func(c *Config) { c.FacilitatorURL = "" }},
	} {
		cfg := testConfig()
		tc.mutate(&cfg)
		if _, err := New(cfg); err == nil {
			t.Fatalf("New() should fail without %s", tc.name)
		}
	}
}

func TestCreatePaymentIssuesChallenge(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	price := provider.Price{Amount: decimal.NewFromInt(25), Currency: "USD"}
	pay, err := p.CreatePayment(context.Background(), price, "premium_tool (25 USD)")
	if err != nil {
		t.Fatalf("CreatePayment() failed: %v", err)
	}
	if pay.ID == "" {
		t.Fatal("CreatePayment() should issue a challenge identifier")
	}

	var reqs x402.PaymentRequirements
	if err := json.Unmarshal(pay.Data, &reqs); err != nil {
		t.Fatalf("payment data did not decode: %v", err)
	}
	if len(reqs.Accepts) != 1 {
		t.Fatalf("offers: got %d, want 1", len(reqs.Accepts))
	}
	offer := reqs.Accepts[0]
	// 25 USD at 6 decimals.
	if offer.MaxAmountRequired != "25000000" {
		t.Fatalf("amount: got %q, want %q", offer.MaxAmountRequired, "25000000")
	}
	if offer.ChallengeID() != pay.ID {
		t.Fatalf("offer challenge id %q does not match payment id %q", offer.ChallengeID(), pay.ID)
	}
}

func TestGetPaymentStatus(t *testing.T) {
	var gotBody verifyRequest
	valid := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(verifyResponse{IsValid: valid})
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.FacilitatorURL = srv.URL
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	st, err := p.GetPaymentStatus(context.Background(), "proof-token")
	if err != nil {
		t.Fatalf("GetPaymentStatus() failed: %v", err)
	}
	if st != provider.StatusPaid {
		t.Fatalf("status: got %q, want %q", st, provider.StatusPaid)
	}
	if gotBody.Payment != "proof-token" {
		t.Fatalf("facilitator received payment %q, want %q", gotBody.Payment, "proof-token")
	}

	valid = false
	st, err = p.GetPaymentStatus(context.Background(), "bad-proof")
	if err != nil {
		t.Fatalf("GetPaymentStatus() failed: %v", err)
	}
	if st != provider.StatusFailed {
		t.Fatalf("status: got %q, want %q", st, provider.StatusFailed)
	}
}

func TestGetPaymentStatusFacilitatorDown(t *testing.T) {
	cfg := testConfig()
	cfg.FacilitatorURL = "http://127.0.0.1:1"
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := p.GetPaymentStatus(context.Background(), "proof"); err == nil {
		t.Fatal("GetPaymentStatus() should surface transport failures")
	}
}
