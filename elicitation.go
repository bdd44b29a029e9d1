package paymcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paymcp/paymcp-go/mcp"
	"github.com/paymcp/paymcp-go/sessions"
)

// runElicitation implements the interactive flow: create a payment, prompt
// the caller through the session's elicitation surface, and settle when
// they accept. Sessions without the capability downgrade to resubmit so a
// misrouted call still gets a workable answer.
func (o *Orchestrator) runElicitation(ctx context.Context, sess sessions.Session, g *gatedTool, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if sess == nil {
		return o.runResubmit(ctx, sess, g, req)
	}
	elic, ok := sess.GetElicitationCapability()
	if !ok {
		o.log.Warn("elicitation flow selected but session lacks the capability, downgrading",
			slog.String("tool", g.name), slog.String("session_id", sess.SessionID()))
		return o.runResubmit(ctx, sess, g, req)
	}

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
		Args:      req.Arguments,
		URL:       pay.URL,
		CreatedAt: time.Now(),
	}
	if err := o.putRecord(ctx, rec); err != nil {
		o.log.Error("persist payment record failed", slog.String("payment_id", pay.ID), slog.String("err", err.Error()))
		return resultTechnicalError("payment state could not be persisted"), nil
	}

	prompt := fmt.Sprintf("Payment of %s is required to run %q.", g.price, g.name)
	if pay.URL != "" {
		prompt += fmt.Sprintf(" Complete it at %s, then accept to continue.", pay.URL)
	} else {
		prompt += " Accept once the payment is complete."
	}
	action, err := elic.Elicit(ctx, prompt)
	if err != nil {
		// Record stays: the retention sweep or a resubmission with the
		// payment identifier can still settle it.
		o.log.Error("elicitation failed", slog.String("payment_id", pay.ID), slog.String("err", err.Error()))
		return resultTechnicalError("payment prompt could not be delivered"), nil
	}
	if action != sessions.ElicitActionAccept {
		if err := o.deleteRecord(ctx, pay.ID); err != nil {
			o.log.Error("delete payment record failed", slog.String("payment_id", pay.ID), slog.String("err", err.Error()))
		}
		return resultCanceled(pay.ID), nil
	}
	return o.settlePending(ctx, sess, g, pay.ID, pay.ID, nil)
}
