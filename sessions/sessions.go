package sessions

import (
	"context"
	"encoding/json"

	"github.com/paymcp/paymcp-go/mcp"
)

// Session represents one logical caller connection to the host server. The
// payment layer keys all per-caller state by SessionID and probes the
// optional capabilities when choosing a flow strategy. Implementations MUST
// be safe for concurrent use.
type Session interface {
	SessionID() string
	ClientInfo() ClientInfo

	// GetClientCapabilities resolves the capabilities the client advertised
	// during initialization. Resolution may require a round trip to wherever
	// the session record lives, hence the context. Callers treat an error as
	// "no capabilities" when a safe fallback exists.
	GetClientCapabilities(ctx context.Context) (ClientCapabilities, error)

	// GetElicitationCapability returns the session's elicitation surface if
	// the client supports it. A false ok means interactive prompts cannot be
	// delivered to this caller.
	GetElicitationCapability() (cap ElicitationCapability, ok bool)
}

// ClientInfo identifies the client connecting to the server.
type ClientInfo struct {
	Name    string
	Version string
}

// ClientCapabilities is the resolved, payment-relevant view of what a client
// advertised at initialization.
type ClientCapabilities struct {
	Elicitation bool
	X402        bool
}

// CapabilitiesFromWire folds the raw MCP capability advertisement into the
// payment-relevant view. X402 support travels in the experimental bucket
// under the "x402" key.
func CapabilitiesFromWire(cc mcp.ClientCapabilities) ClientCapabilities {
	out := ClientCapabilities{Elicitation: cc.Elicitation != nil}
	if raw, ok := cc.Experimental["x402"]; ok {
		// Any non-null value counts as support; clients typically send {}.
		var v any
		if err := json.Unmarshal(raw, &v); err == nil && v != nil {
			out.X402 = true
		}
	}
	return out
}

// ElicitAction indicates the client's chosen action for an elicitation.
// Exactly one action is returned. Server logic should usually proceed only
// when Action == ElicitActionAccept and treat Decline / Cancel as a signal
// to abort.
type ElicitAction string

const (
	ElicitActionAccept  ElicitAction = "accept"
	ElicitActionDecline ElicitAction = "decline"
	ElicitActionCancel  ElicitAction = "cancel"
)

// ElicitationCapability delivers an interactive prompt to the caller and
// reports the chosen action. Payment prompts need no structured response
// beyond the action itself, so the surface is text-only.
//
// Implementations MUST be safe for concurrent use and MUST honor the
// context for cancellation.
type ElicitationCapability interface {
	Elicit(ctx context.Context, text string) (ElicitAction, error)
}
