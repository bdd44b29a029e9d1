package mcpservice

import (
	"context"

	"github.com/paymcp/paymcp-go/mcp"
	"github.com/paymcp/paymcp-go/sessions"
)

// ToolsCapability defines the server's tools surface area. Implementations
// may be static or dynamic per session. All methods MUST be safe for
// concurrent use.
type ToolsCapability interface {
	// ListTools returns a (possibly paginated) list of tools available to
	// the session. A nil cursor requests the first page.
	ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error)

	// CallTool invokes a named tool with the provided request payload.
	// Calls MUST be isolated per session.
	CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)
}

// ToolHandler is the function signature used to handle a tool invocation.
type ToolHandler func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ChangeSubscriber exposes a channel that signals whenever the underlying
// tool set changes, so hosts can emit listChanged notifications.
type ChangeSubscriber interface {
	Subscriber() <-chan struct{}
}
