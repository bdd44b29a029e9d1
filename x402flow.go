package paymcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/paymcp/paymcp-go/mcp"
	"github.com/paymcp/paymcp-go/provider"
	"github.com/paymcp/paymcp-go/sessions"
	"github.com/paymcp/paymcp-go/x402"
	"github.com/paymcp/paymcp-go/x402/x402http"
)

// runX402 implements the challenge/response flow. Calls without a proof
// header are rejected with a PaymentRequiredError carrying the offer set;
// the transport renders it as HTTP 402. Calls with a proof settle against
// the persisted challenge: the claimed offer must structurally match the
// issued one before any remote verification happens.
func (o *Orchestrator) runX402(ctx context.Context, sess sessions.Session, g *gatedTool, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	prov, ok := o.providers["x402"]
	if !ok {
		// Reachable only when a caller advertises x402 under a pinned
		// non-x402 configuration path; answer usefully instead of failing.
		return o.runResubmit(ctx, sess, g, req)
	}

	proof, ok := x402http.ProofFromContext(ctx)
	if !ok {
		return o.issueChallenge(ctx, sess, g, req.Arguments, prov)
	}

	pp, err := x402.DecodePayload(proof)
	if err != nil {
		o.log.Debug("malformed payment proof", slog.String("tool", g.name), slog.String("err", err.Error()))
		return resultIncorrectSignature(), nil
	}
	key := pp.Accepted.Extra.ChallengeID
	if key == "" {
		// Version 1 proofs carry no challenge identifier; the challenge is
		// keyed by session and tool instead.
		sid, ok := o.sessionID(ctx, sess)
		if !ok {
			return nil, ErrNoSession
		}
		key = sid + "/" + g.name
	}

	var result *mcp.CallToolResult
	lockErr := o.store.Lock(ctx, challengeKey(key), func(ctx context.Context) error {
		rec, err := o.getChallenge(ctx, key)
		if err != nil {
			return err
		}
		if rec == nil {
			result = resultUnknownChallenge()
			return nil
		}
		if rec.ToolName != g.name {
			// A challenge settles only the tool it was issued for.
			result = resultUnknownChallenge()
			return nil
		}
		if !pp.Accepted.Matches(rec.Offer) {
			// Mismatch is decided locally; the facilitator is never asked
			// about a proof that doesn't correspond to what we issued.
			result = resultIncorrectSignature()
			return nil
		}
		st, err := prov.GetPaymentStatus(ctx, proof)
		if err != nil {
			o.log.Error("x402 verification failed", slog.String("tool", g.name), slog.String("err", err.Error()))
			result = resultTechnicalError("payment proof could not be verified")
			return nil
		}
		if st != provider.StatusPaid {
			if err := o.deleteChallenge(ctx, key); err != nil {
				return err
			}
			result = resultPaymentFailed(rec.Offer.ChallengeID(), st)
			return nil
		}
		if err := o.deleteChallenge(ctx, key); err != nil {
			return err
		}
		result = o.invokeOriginal(ctx, sess, g, rec.Args)
		return nil
	})
	if lockErr != nil {
		o.log.Error("x402 settlement failed", slog.String("tool", g.name), slog.String("err", lockErr.Error()))
		return resultTechnicalError("payment settlement failed"), nil
	}
	return result, nil
}

func (o *Orchestrator) issueChallenge(ctx context.Context, sess sessions.Session, g *gatedTool, args json.RawMessage, prov provider.Provider) (*mcp.CallToolResult, error) {
	pay, err := prov.CreatePayment(ctx, g.price, g.chargeDescription())
	if err != nil {
		o.log.Error("create x402 challenge failed", slog.String("tool", g.name), slog.String("err", err.Error()))
		return resultTechnicalError("payment could not be initiated"), nil
	}
	var reqs x402.PaymentRequirements
	if err := json.Unmarshal(pay.Data, &reqs); err != nil || len(reqs.Accepts) == 0 {
		o.log.Error("x402 provider returned unusable offer data", slog.String("tool", g.name))
		return resultTechnicalError("payment could not be initiated"), nil
	}

	key := pay.ID
	if key == "" {
		sid, ok := o.sessionID(ctx, sess)
		if !ok {
			return nil, ErrNoSession
		}
		key = sid + "/" + g.name
	}
	rec := &challengeRecord{
		Offer:     reqs.Accepts[0],
		ToolName:  g.name,
		Args:      args,
		CreatedAt: time.Now(),
	}
	if sid, ok := o.sessionID(ctx, sess); ok {
		rec.SessionID = sid
	}
	if err := o.putChallenge(ctx, key, rec); err != nil {
		o.log.Error("persist x402 challenge failed", slog.String("tool", g.name), slog.String("err", err.Error()))
		return resultTechnicalError("payment state could not be persisted"), nil
	}
	return nil, &x402.PaymentRequiredError{Requirements: &reqs}
}
