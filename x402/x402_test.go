package x402

import (
	"testing"
)

func sampleOffer() Offer {
	return Offer{
		Scheme:            "exact",
		Network:           "eip155:8453",
		MaxAmountRequired: "25000000",
		Asset:             "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		PayTo:             "0x1111111111111111111111111111111111111111",
		Extra:             map[string]any{"challengeId": "ch-123"},
	}
}

func TestRequirementsRoundTrip(t *testing.T) {
	pr := &PaymentRequirements{
		X402Version: X402Version,
		Error:       "payment required",
		Accepts:     []Offer{sampleOffer()},
	}

	encoded, err := EncodeRequirements(pr)
	if err != nil {
		t.Fatalf("EncodeRequirements() failed: %v", err)
	}

	decoded, err := DecodeRequirements(encoded)
	if err != nil {
		t.Fatalf("DecodeRequirements() failed: %v", err)
	}
	if decoded.X402Version != X402Version {
		t.Fatalf("version: got %d, want %d", decoded.X402Version, X402Version)
	}
	if len(decoded.Accepts) != 1 {
		t.Fatalf("accepts: got %d offers, want 1", len(decoded.Accepts))
	}
	if decoded.Accepts[0].ChallengeID() != "ch-123" {
		t.Fatalf("challenge id: got %q, want %q", decoded.Accepts[0].ChallengeID(), "ch-123")
	}
}

func TestDecodeRequirementsRejectsGarbage(t *testing.T) {
	if _, err := DecodeRequirements("not base64!!"); err == nil {
		t.Fatal("DecodeRequirements() should reject invalid base64")
	}
	if _, err := DecodeRequirements("bm90IGpzb24="); err == nil {
		t.Fatal("DecodeRequirements() should reject non-JSON content")
	}
}

func TestAcceptedOfferMatches(t *testing.T) {
	offer := sampleOffer()

	accepted := AcceptedOffer{
		Amount:  offer.MaxAmountRequired,
		Network: offer.Network,
		Asset:   offer.Asset,
		PayTo:   offer.PayTo,
	}
	if !accepted.Matches(offer) {
		t.Fatal("identical fields should match")
	}

	cases := map[string]AcceptedOffer{
		"amount":  {Amount: "1", Network: offer.Network, Asset: offer.Asset, PayTo: offer.PayTo},
		"network": {Amount: offer.MaxAmountRequired, Network: "eip155:1", Asset: offer.Asset, PayTo: offer.PayTo},
		"asset":   {Amount: offer.MaxAmountRequired, Network: offer.Network, Asset: "0xdead", PayTo: offer.PayTo},
		"payTo":   {Amount: offer.MaxAmountRequired, Network: offer.Network, Asset: offer.Asset, PayTo: "0xbeef"},
	}
	for field, a := range cases {
		if a.Matches(offer) {
			t.Fatalf("mismatched %s should not match", field)
		}
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	pp := &PaymentPayload{
		X402Version: X402Version,
		Scheme:      "exact",
		Network:     "eip155:8453",
		Payload: ProofPayload{
			Authorization: map[string]any{"from": "0xabc"},
			Signature:     "0xsig",
		},
	}
	pp.Accepted.Amount = "25000000"
	pp.Accepted.Extra.ChallengeID = "ch-123"

	encoded, err := EncodePayload(pp)
	if err != nil {
		t.Fatalf("EncodePayload() failed: %v", err)
	}
	decoded, err := DecodePayload(encoded)
	if err != nil {
		t.Fatalf("DecodePayload() failed: %v", err)
	}
	if decoded.Accepted.Extra.ChallengeID != "ch-123" {
		t.Fatalf("challenge id: got %q, want %q", decoded.Accepted.Extra.ChallengeID, "ch-123")
	}
	if decoded.Payload.Signature != "0xsig" {
		t.Fatalf("signature: got %q, want %q", decoded.Payload.Signature, "0xsig")
	}
}
