// Package mcpservice provides the tools surface the payment layer composes
// with: the ToolsCapability interface a host server dispatches through, a
// mutable ToolsContainer that supports live registration changes with
// listChanged notification, and typed tool construction helpers.
//
// Conventions:
//   - Capability discovery methods return (cap, ok, err). A false ok means
//     the capability is not supported for the given session; err is reserved
//     for transient or internal failures while determining support.
//   - All methods accept a context.Context which MUST be honored for
//     cancellation.
//   - The sessions.Session value is the unit of isolation.
package mcpservice
