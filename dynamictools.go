package paymcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/paymcp/paymcp-go/mcp"
	"github.com/paymcp/paymcp-go/mcpservice"
	"github.com/paymcp/paymcp-go/sessions"
)

// confirmToolName derives the deterministic name of the one-shot
// confirmation tool for a payment. The short digest keeps names unique per
// payment while staying readable in listings.
func confirmToolName(toolName, paymentID string) string {
	sum := sha256.Sum256([]byte(toolName + "|" + paymentID))
	return fmt.Sprintf("confirm_%s_%s", toolName, hex.EncodeToString(sum[:4]))
}

// runDynamicTools implements the flow for clients that can only follow the
// tool list: the gated tool disappears from the caller's listing and a
// one-shot confirmation tool appears in its place. Confirming settles the
// payment and replays the original call; the confirmation tool is then
// removed and the gated tool restored, whatever the outcome.
func (o *Orchestrator) runDynamicTools(ctx context.Context, sess sessions.Session, g *gatedTool, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if o.container == nil {
		return o.runResubmit(ctx, sess, g, req)
	}
	sid, ok := o.sessionID(ctx, sess)
	if !ok {
		// Hiding a tool for "everyone" would leak one caller's payment
		// state into every session; without an identity this flow cannot
		// run safely.
		return nil, ErrNoSession
	}

	prov := o.defaultProvider()
	pay, err := prov.CreatePayment(ctx, g.price, g.chargeDescription())
	if err != nil {
		o.log.Error("create payment failed",
			slog.String("tool", g.name), slog.String("provider", prov.Name()), slog.String("err", err.Error()))
		return resultTechnicalError("payment could not be initiated"), nil
	}
	confirmName := confirmToolName(g.name, pay.ID)
	rec := &pendingPayment{
		PaymentID:   pay.ID,
		Provider:    prov.Name(),
		SessionID:   sid,
		ToolName:    g.name,
		Args:        req.Arguments,
		URL:         pay.URL,
		ConfirmTool: confirmName,
		CreatedAt:   time.Now(),
	}
	if err := o.putRecord(ctx, rec); err != nil {
		o.log.Error("persist payment record failed", slog.String("payment_id", pay.ID), slog.String("err", err.Error()))
		return resultTechnicalError("payment state could not be persisted"), nil
	}

	o.vis.hide(sid, g.name)
	o.vis.bind(confirmName, confirmBinding{
		sessionID: sid,
		paymentID: pay.ID,
		toolName:  g.name,
		createdAt: time.Now(),
	})
	added := o.container.Add(ctx, mcpservice.StaticTool{
		Descriptor: mcp.Tool{
			Name:        confirmName,
			Description: fmt.Sprintf("Confirm the pending payment of %s for %q and run it.", g.price, g.name),
			InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}},
		},
		Handler: o.confirmHandler(g, pay.ID, confirmName, sid),
	})
	if !added {
		// Name collision. Unwind the initiation rather than point the
		// caller at a confirmation tool we never registered.
		o.vis.restore(sid, g.name)
		o.vis.unbind(confirmName)
		if err := o.deleteRecord(ctx, pay.ID); err != nil {
			o.log.Error("delete payment record failed", slog.String("payment_id", pay.ID), slog.String("err", err.Error()))
		}
		o.log.Error("confirmation tool name already registered",
			slog.String("tool", g.name), slog.String("confirm_tool", confirmName))
		return resultTechnicalError("payment could not be initiated"), nil
	}

	return resultPaymentRequired(g.price, pay.ID, pay.URL, confirmName), nil
}

// confirmHandler builds the one-shot confirmation tool's handler. Callers
// from other sessions are answered as if the payment did not exist; the
// owning binding never leaks across sessions.
func (o *Orchestrator) confirmHandler(g *gatedTool, paymentID, confirmName, ownerSID string) mcpservice.ToolHandler {
	return func(ctx context.Context, sess sessions.Session, _ *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		if sid, ok := o.sessionID(ctx, sess); !ok || sid != ownerSID {
			return resultUnknownPayment(paymentID), nil
		}
		cleanup := func(ctx context.Context) {
			o.vis.restore(ownerSID, g.name)
			o.vis.unbind(confirmName)
			o.container.Remove(ctx, confirmName)
		}
		return o.settlePending(ctx, sess, g, paymentID, paymentID, cleanup)
	}
}
