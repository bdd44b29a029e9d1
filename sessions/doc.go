// Package sessions defines the session abstraction the payment layer is
// built against: an opaque per-caller identifier, the client capability
// advertisement consulted during flow selection, and the optional
// elicitation surface used for interactive payment prompts.
//
// The package also provides session-identifier propagation along a request's
// call chain (see Propagator). The identifier is established once at the
// server boundary and is read-only for the lifetime of the request; every
// other component keys its per-caller state by it.
package sessions
