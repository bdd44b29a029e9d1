package paymcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/paymcp/paymcp-go/mcp"
	"github.com/paymcp/paymcp-go/provider"
	"github.com/paymcp/paymcp-go/sessions"
)

// resubmitEnvelope is the control data a caller may attach to a gated
// tool's arguments on the second call. Both fields ride alongside the
// tool's own arguments; unrelated fields are ignored here and replayed
// from the persisted record, never from the resubmission.
type resubmitEnvelope struct {
	PaymentID string `json:"payment_id"`
	Proof     string `json:"payment_proof"`
}

// runResubmit implements the two-step flow. First call: create a payment,
// persist the captured arguments, answer with instructions. Second call
// (carrying payment_id or a signed proof): verify and, when paid, replay
// the original arguments through the real handler.
func (o *Orchestrator) runResubmit(ctx context.Context, sess sessions.Session, g *gatedTool, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	var env resubmitEnvelope
	if len(req.Arguments) > 0 {
		// Best effort: arguments that don't decode as an object simply
		// carry no envelope.
		_ = json.Unmarshal(req.Arguments, &env)
	}
	if env.PaymentID == "" && env.Proof == "" {
		return o.initiateResubmit(ctx, sess, g, req.Arguments)
	}

	paymentID := env.PaymentID
	token := env.Proof
	if token != "" {
		if extracted := proofPaymentID(token); extracted != "" {
			paymentID = extracted
		}
	}
	if paymentID == "" {
		return resultUnknownPayment(""), nil
	}
	if token == "" {
		token = paymentID
	}
	return o.settlePending(ctx, sess, g, paymentID, token, nil)
}

func (o *Orchestrator) initiateResubmit(ctx context.Context, sess sessions.Session, g *gatedTool, args json.RawMessage) (*mcp.CallToolResult, error) {
	prov := o.defaultProvider()
	pay, err := prov.CreatePayment(ctx, g.price, g.chargeDescription())
	if err != nil {
		o.log.Error("create payment failed",
			slog.String("tool", g.name), slog.String("provider", prov.Name()), slog.String("err", err.Error()))
		return resultTechnicalError("payment could not be initiated"), nil
	}
	sid, _ := o.sessionID(ctx, sess)
	rec := &pendingPayment{
		PaymentID: pay.ID,
		Provider:  prov.Name(),
		SessionID: sid,
		ToolName:  g.name,
		Args:      args,
		URL:       pay.URL,
		CreatedAt: time.Now(),
	}
	if err := o.putRecord(ctx, rec); err != nil {
		// An untracked payment must not reach the caller.
		o.log.Error("persist payment record failed", slog.String("payment_id", pay.ID), slog.String("err", err.Error()))
		return resultTechnicalError("payment state could not be persisted"), nil
	}
	return resultPaymentRequired(g.price, pay.ID, pay.URL, ""), nil
}

// settlePending is the shared confirmation path: under the store lock it
// loads the record, checks status with the record's provider, and on paid
// deletes the record before replaying the call. The delete-then-execute
// order inside the lock is what makes confirmation at-most-once; a
// concurrent racer finds the record gone and reports it unknown.
//
// onPaid, when non-nil, runs after settlement regardless of handler
// outcome (the dynamic flow uses it to restore visibility).
func (o *Orchestrator) settlePending(ctx context.Context, sess sessions.Session, g *gatedTool, paymentID, token string, onPaid func(ctx context.Context)) (*mcp.CallToolResult, error) {
	var result *mcp.CallToolResult
	err := o.store.Lock(ctx, recordKey(paymentID), func(ctx context.Context) error {
		rec, err := o.getRecord(ctx, paymentID)
		if err != nil {
			return err
		}
		if rec == nil {
			result = resultUnknownPayment(paymentID)
			return nil
		}
		if rec.ToolName != g.name {
			// A payment settles only the invocation it was created for;
			// presenting it to another gated tool reveals nothing.
			result = resultUnknownPayment(paymentID)
			return nil
		}
		prov := o.providerNamed(rec.Provider)
		st, err := prov.GetPaymentStatus(ctx, token)
		if err != nil {
			// Provider outage: keep the record so the caller can retry.
			o.log.Error("payment status check failed",
				slog.String("payment_id", paymentID), slog.String("provider", prov.Name()), slog.String("err", err.Error()))
			result = resultTechnicalError("payment status could not be verified")
			return nil
		}
		switch {
		case st == provider.StatusPaid:
			if err := o.deleteRecord(ctx, paymentID); err != nil {
				return err
			}
			result = o.invokeOriginal(ctx, sess, g, rec.Args)
			if onPaid != nil {
				onPaid(ctx)
			}
		case st.Terminal():
			if err := o.deleteRecord(ctx, paymentID); err != nil {
				return err
			}
			result = resultPaymentFailed(paymentID, st)
			if onPaid != nil {
				onPaid(ctx)
			}
		default:
			result = resultNotPaid(paymentID, rec.URL)
		}
		return nil
	})
	if err != nil {
		o.log.Error("payment settlement failed", slog.String("payment_id", paymentID), slog.String("err", err.Error()))
		return resultTechnicalError("payment settlement failed"), nil
	}
	return result, nil
}
