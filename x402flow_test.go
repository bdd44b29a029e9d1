package paymcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/paymcp/paymcp-go/mcp"
	"github.com/paymcp/paymcp-go/provider"
	"github.com/paymcp/paymcp-go/provider/providertest"
	"github.com/paymcp/paymcp-go/sessions/sessionstest"
	"github.com/paymcp/paymcp-go/x402"
	"github.com/paymcp/paymcp-go/x402/x402http"
)

func x402Orchestrator(t *testing.T) (*Orchestrator, *providertest.Provider) {
	t.Helper()
	fake := &providertest.Provider{ProviderName: "x402"}
	fake.Data = x402FakeData(t, "pay_1")
	o, _ := newOrchestrator(t, fake, WithFlow(FlowX402))
	return o, fake
}

// matchingProof builds an encoded proof whose accepted offer structurally
// matches the fake provider's issued offer.
func matchingProof(t *testing.T, challengeID string) string {
	t.Helper()
	pp := &x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      "exact",
		Network:     "eip155:8453",
		Payload:     x402.ProofPayload{Signature: "0xsig"},
	}
	pp.Accepted.Amount = "25000000"
	pp.Accepted.Network = "eip155:8453"
	pp.Accepted.Asset = "0xusdc"
	pp.Accepted.PayTo = "0xme"
	pp.Accepted.Extra.ChallengeID = challengeID
	encoded, err := x402.EncodePayload(pp)
	if err != nil {
		t.Fatalf("EncodePayload() failed: %v", err)
	}
	return encoded
}

func TestX402ChallengeAndSettle(t *testing.T) {
	o, fake := x402Orchestrator(t)
	ct := &captureTool{}
	gated := o.Gate(ct.tool("premium_tool"), testPrice())
	ctx := context.Background()
	sess := &sessionstest.Session{ID: "s1"}
	origArgs := json.RawMessage(`{"amount":25,"currency":"USD"}`)

	// Call without proof: rejected with a challenge.
	_, err := gated.Handler(ctx, sess, &mcp.CallToolRequestReceived{Name: "premium_tool", Arguments: origArgs})
	var pre *x402.PaymentRequiredError
	if !errors.As(err, &pre) {
		t.Fatalf("unpaid call should be rejected with a challenge, got err=%v", err)
	}
	challengeID := pre.Requirements.Accepts[0].ChallengeID()
	if challengeID == "" {
		t.Fatal("issued offer should carry a challenge id")
	}

	// Retry with a matching, verified proof: the captured call runs.
	proof := matchingProof(t, challengeID)
	fake.SetStatus(proof, provider.StatusPaid)
	res, err := gated.Handler(x402http.WithProof(ctx, proof), sess, &mcp.CallToolRequestReceived{Name: "premium_tool"})
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("settlement returned error result: %+v", res)
	}
	if ct.count() != 1 {
		t.Fatalf("tool executed %d times, want 1", ct.count())
	}
	if string(ct.lastArgs()) != string(origArgs) {
		t.Fatalf("replayed args: got %s, want %s", ct.lastArgs(), origArgs)
	}

	// The challenge is consumed; presenting the proof again fails.
	res, err = gated.Handler(x402http.WithProof(ctx, proof), sess, &mcp.CallToolRequestReceived{Name: "premium_tool"})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if st := structuredMessage(t, res); st != msgUnknownChallenge {
		t.Fatalf("replay status: got %q, want %q", st, msgUnknownChallenge)
	}
	if ct.count() != 1 {
		t.Fatal("a consumed challenge must not re-execute the tool")
	}
}

func TestX402StructuralMismatchSkipsVerification(t *testing.T) {
	o, fake := x402Orchestrator(t)
	ct := &captureTool{}
	gated := o.Gate(ct.tool("premium_tool"), testPrice())
	ctx := context.Background()
	sess := &sessionstest.Session{ID: "s1"}

	_, err := gated.Handler(ctx, sess, &mcp.CallToolRequestReceived{Name: "premium_tool"})
	var pre *x402.PaymentRequiredError
	if !errors.As(err, &pre) {
		t.Fatalf("expected challenge, got err=%v", err)
	}
	challengeID := pre.Requirements.Accepts[0].ChallengeID()

	// Claim a different amount than the issued offer.
	pp := &x402.PaymentPayload{}
	pp.Accepted.Amount = "1"
	pp.Accepted.Network = "eip155:8453"
	pp.Accepted.Asset = "0xusdc"
	pp.Accepted.PayTo = "0xme"
	pp.Accepted.Extra.ChallengeID = challengeID
	proof, encErr := x402.EncodePayload(pp)
	if encErr != nil {
		t.Fatalf("EncodePayload() failed: %v", encErr)
	}

	res, err := gated.Handler(x402http.WithProof(ctx, proof), sess, &mcp.CallToolRequestReceived{Name: "premium_tool"})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if st := structuredMessage(t, res); st != msgIncorrectSignature {
		t.Fatalf("mismatch status: got %q, want %q", st, msgIncorrectSignature)
	}
	// The structural check decides locally; the facilitator is never asked.
	if calls := fake.StatusCalls(); len(calls) != 0 {
		t.Fatalf("verification must not run for a mismatched proof, got %d calls", len(calls))
	}
	if ct.count() != 0 {
		t.Fatal("tool must not execute for a mismatched proof")
	}
}

func TestX402UnknownChallenge(t *testing.T) {
	o, fake := x402Orchestrator(t)
	gated := o.Gate((&captureTool{}).tool("premium_tool"), testPrice())
	sess := &sessionstest.Session{ID: "s1"}

	proof := matchingProof(t, "never-issued")
	res, err := gated.Handler(x402http.WithProof(context.Background(), proof), sess, &mcp.CallToolRequestReceived{Name: "premium_tool"})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if st := structuredMessage(t, res); st != msgUnknownChallenge {
		t.Fatalf("status: got %q, want %q", st, msgUnknownChallenge)
	}
	if len(fake.StatusCalls()) != 0 {
		t.Fatal("verification must not run for an unknown challenge")
	}
}

func TestX402MalformedProof(t *testing.T) {
	o, fake := x402Orchestrator(t)
	gated := o.Gate((&captureTool{}).tool("premium_tool"), testPrice())
	sess := &sessionstest.Session{ID: "s1"}

	res, err := gated.Handler(x402http.WithProof(context.Background(), "not a proof"), sess, &mcp.CallToolRequestReceived{Name: "premium_tool"})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if st := structuredMessage(t, res); st != msgIncorrectSignature {
		t.Fatalf("status: got %q, want %q", st, msgIncorrectSignature)
	}
	if len(fake.StatusCalls()) != 0 {
		t.Fatal("verification must not run for a malformed proof")
	}
}

func TestX402ChallengeBoundToItsTool(t *testing.T) {
	o, fake := x402Orchestrator(t)
	cheap := &captureTool{}
	expensive := &captureTool{}
	gatedCheap := o.Gate(cheap.tool("cheap_tool"), testPrice())
	gatedExpensive := o.Gate(expensive.tool("expensive_tool"), testPrice())
	ctx := context.Background()
	sess := &sessionstest.Session{ID: "s1"}

	_, err := gatedCheap.Handler(ctx, sess, &mcp.CallToolRequestReceived{Name: "cheap_tool"})
	var pre *x402.PaymentRequiredError
	if !errors.As(err, &pre) {
		t.Fatalf("expected challenge, got err=%v", err)
	}
	proof := matchingProof(t, pre.Requirements.Accepts[0].ChallengeID())
	fake.SetStatus(proof, provider.StatusPaid)

	// A challenge issued for one tool does not settle another.
	res, err := gatedExpensive.Handler(x402http.WithProof(ctx, proof), sess, &mcp.CallToolRequestReceived{Name: "expensive_tool"})
	if err != nil {
		t.Fatalf("cross settlement failed: %v", err)
	}
	if st := structuredMessage(t, res); st != msgUnknownChallenge {
		t.Fatalf("cross settlement status: got %q, want %q", st, msgUnknownChallenge)
	}
	if len(fake.StatusCalls()) != 0 {
		t.Fatal("verification must not run for another tool's challenge")
	}
	if expensive.count() != 0 {
		t.Fatal("a challenge for one tool must not run another")
	}

	// The challenge survives; its own tool still settles.
	res, err = gatedCheap.Handler(x402http.WithProof(ctx, proof), sess, &mcp.CallToolRequestReceived{Name: "cheap_tool"})
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("settlement returned error result: %+v", res)
	}
	if cheap.count() != 1 {
		t.Fatalf("tool executed %d times, want 1", cheap.count())
	}
}

func TestX402FailedVerificationConsumesChallenge(t *testing.T) {
	o, fake := x402Orchestrator(t)
	ct := &captureTool{}
	gated := o.Gate(ct.tool("premium_tool"), testPrice())
	ctx := context.Background()
	sess := &sessionstest.Session{ID: "s1"}

	_, err := gated.Handler(ctx, sess, &mcp.CallToolRequestReceived{Name: "premium_tool"})
	var pre *x402.PaymentRequiredError
	if !errors.As(err, &pre) {
		t.Fatalf("expected challenge, got err=%v", err)
	}
	proof := matchingProof(t, pre.Requirements.Accepts[0].ChallengeID())
	fake.SetStatus(proof, provider.StatusFailed)

	res, err := gated.Handler(x402http.WithProof(ctx, proof), sess, &mcp.CallToolRequestReceived{Name: "premium_tool"})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if st := structuredMessage(t, res); st != msgPaymentFailed {
		t.Fatalf("status: got %q, want %q", st, msgPaymentFailed)
	}

	// Failed verification consumes the challenge.
	res, err = gated.Handler(x402http.WithProof(ctx, proof), sess, &mcp.CallToolRequestReceived{Name: "premium_tool"})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if st := structuredMessage(t, res); st != msgUnknownChallenge {
		t.Fatalf("replay status: got %q, want %q", st, msgUnknownChallenge)
	}
	if ct.count() != 0 {
		t.Fatal("tool must never execute for a failed verification")
	}
}
