package paymcp

import (
	"context"
	"sync"
	"time"

	"github.com/paymcp/paymcp-go/mcp"
	"github.com/paymcp/paymcp-go/mcpservice"
	"github.com/paymcp/paymcp-go/sessions"
)

// visibilityState tracks which tools are hidden from which sessions and
// which confirmation tools belong to which session. It is process-local:
// it mirrors live registration state in the bound container, which is
// itself process-local.
type visibilityState struct {
	mu sync.RWMutex
	// hidden maps session id to the set of tool names suppressed from that
	// session's listings.
	hidden map[string]map[string]struct{}
	// confirms maps a confirmation tool name to its owning binding.
	confirms map[string]confirmBinding
}

type confirmBinding struct {
	sessionID string
	paymentID string
	toolName  string
	createdAt time.Time
}

func (v *visibilityState) init() {
	v.hidden = make(map[string]map[string]struct{})
	v.confirms = make(map[string]confirmBinding)
}

func (v *visibilityState) hide(sessionID, toolName string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	set := v.hidden[sessionID]
	if set == nil {
		set = make(map[string]struct{})
		v.hidden[sessionID] = set
	}
	set[toolName] = struct{}{}
}

// restore is idempotent: restoring an already visible tool is a no-op.
func (v *visibilityState) restore(sessionID, toolName string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if set, ok := v.hidden[sessionID]; ok {
		delete(set, toolName)
		if len(set) == 0 {
			delete(v.hidden, sessionID)
		}
	}
}

func (v *visibilityState) bind(confirmName string, b confirmBinding) {
	v.mu.Lock()
	v.confirms[confirmName] = b
	v.mu.Unlock()
}

func (v *visibilityState) unbind(confirmName string) {
	v.mu.Lock()
	delete(v.confirms, confirmName)
	v.mu.Unlock()
}

func (v *visibilityState) binding(confirmName string) (confirmBinding, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	b, ok := v.confirms[confirmName]
	return b, ok
}

// expiredBindings returns the confirmation tool names whose bindings are
// older than maxAge, with their bindings.
func (v *visibilityState) expiredBindings(maxAge time.Duration) map[string]confirmBinding {
	cutoff := time.Now().Add(-maxAge)
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]confirmBinding)
	for name, b := range v.confirms {
		if b.createdAt.Before(cutoff) {
			out[name] = b
		}
	}
	return out
}

// visibleTo reports whether a tool should appear in the given session's
// listing: not hidden for it, and not a confirmation tool bound to a
// different session.
func (v *visibilityState) visibleTo(sessionID, toolName string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if set, ok := v.hidden[sessionID]; ok {
		if _, hiddenHere := set[toolName]; hiddenHere {
			return false
		}
	}
	if b, ok := v.confirms[toolName]; ok && b.sessionID != sessionID {
		return false
	}
	return true
}

// FilterListing wraps a tools capability so listings respect per-session
// visibility: tools hidden for the caller's session and confirmation tools
// belonging to other sessions are filtered out. Wrapping is idempotent;
// when the caller's session cannot be resolved the listing passes through
// unfiltered, erring on the side of discoverability.
func (o *Orchestrator) FilterListing(inner mcpservice.ToolsCapability) mcpservice.ToolsCapability {
	if f, ok := inner.(*filteredTools); ok && f.o == o {
		return inner
	}
	return &filteredTools{o: o, inner: inner}
}

type filteredTools struct {
	o     *Orchestrator
	inner mcpservice.ToolsCapability
}

var _ mcpservice.ToolsCapability = (*filteredTools)(nil)

func (f *filteredTools) ListTools(ctx context.Context, sess sessions.Session, cursor *string) (mcpservice.Page[mcp.Tool], error) {
	page, err := f.inner.ListTools(ctx, sess, cursor)
	if err != nil {
		return page, err
	}
	sid, ok := f.o.sessionID(ctx, sess)
	if !ok {
		return page, nil
	}
	// Filter into a fresh slice; the inner capability may hand out a
	// shared or cached one.
	kept := make([]mcp.Tool, 0, len(page.Items))
	for _, t := range page.Items {
		if f.o.vis.visibleTo(sid, t.Name) {
			kept = append(kept, t)
		}
	}
	page.Items = kept
	return page, nil
}

func (f *filteredTools) CallTool(ctx context.Context, sess sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	return f.inner.CallTool(ctx, sess, req)
}
