package sessions

import "context"

// Propagator carries a session identifier along a request's call chain. The
// orchestrator never reads ambient state directly; it is handed a Propagator
// at construction so tests can substitute one with no runtime requirements.
//
// The contract mirrors a run-with-id / read-current-id pair: WithID binds an
// identifier for the duration of a request, CurrentID reads it back anywhere
// downstream.
type Propagator interface {
	WithID(ctx context.Context, id string) context.Context
	CurrentID(ctx context.Context) (id string, ok bool)
}

type sessionIDKey struct{}

// ContextPropagator is the default Propagator, backed by context values.
type ContextPropagator struct{}

func (ContextPropagator) WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

func (ContextPropagator) CurrentID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// WithID binds a session identifier into ctx using the default propagator.
// Host integrations call this once per inbound request at the server
// boundary.
func WithID(ctx context.Context, id string) context.Context {
	return ContextPropagator{}.WithID(ctx, id)
}

// IDFromContext reads the session identifier bound by WithID, if any.
func IDFromContext(ctx context.Context) (string, bool) {
	return ContextPropagator{}.CurrentID(ctx)
}
