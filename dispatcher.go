package paymcp

import (
	"context"
	"log/slog"

	"github.com/paymcp/paymcp-go/mcp"
	"github.com/paymcp/paymcp-go/sessions"
)

// Flow names a payment flow strategy.
type Flow string

const (
	// FlowAuto picks a strategy per call from the session's capabilities.
	FlowAuto Flow = "auto"
	// FlowElicitation prompts the caller interactively and waits.
	FlowElicitation Flow = "elicitation"
	// FlowResubmit answers with payment instructions and expects a second
	// call carrying the payment identifier or a signed proof.
	FlowResubmit Flow = "resubmit"
	// FlowX402 rejects unpaid calls with an x402 challenge and accepts a
	// proof header on retry.
	FlowX402 Flow = "x402"
	// FlowDynamicTools hides the gated tool for the caller's session and
	// registers a one-shot confirmation tool in its place.
	FlowDynamicTools Flow = "dynamic_tools"
)

func (f Flow) valid() bool {
	switch f {
	case FlowAuto, FlowElicitation, FlowResubmit, FlowX402, FlowDynamicTools:
		return true
	}
	return false
}

// dispatch routes a gated call to the configured strategy, resolving AUTO
// per call. Strategy selection never fails: the fallback chain bottoms out
// at resubmit, which needs nothing beyond JSON arguments.
func (o *Orchestrator) dispatch(ctx context.Context, sess sessions.Session, g *gatedTool, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	flow := o.flow
	if flow == FlowAuto {
		flow = o.selectFlow(ctx, sess)
	}
	switch flow {
	case FlowElicitation:
		return o.runElicitation(ctx, sess, g, req)
	case FlowX402:
		return o.runX402(ctx, sess, g, req)
	case FlowDynamicTools:
		return o.runDynamicTools(ctx, sess, g, req)
	default:
		return o.runResubmit(ctx, sess, g, req)
	}
}

// selectFlow resolves AUTO: x402 when the client advertised it and an x402
// provider is configured, else elicitation when the client supports
// prompts, else resubmit. A capability resolution failure downgrades to
// resubmit rather than failing the call.
func (o *Orchestrator) selectFlow(ctx context.Context, sess sessions.Session) Flow {
	if sess == nil {
		return FlowResubmit
	}
	caps, err := sess.GetClientCapabilities(ctx)
	if err != nil {
		o.log.Debug("capability resolution failed, falling back to resubmit", slog.String("err", err.Error()))
		return FlowResubmit
	}
	if caps.X402 {
		if _, ok := o.providers["x402"]; ok {
			return FlowX402
		}
	}
	if caps.Elicitation {
		if _, ok := sess.GetElicitationCapability(); ok {
			return FlowElicitation
		}
	}
	return FlowResubmit
}
