// Package sessionstest provides fake session implementations for tests.
package sessionstest

import (
	"context"
	"errors"
	"sync"

	"github.com/paymcp/paymcp-go/sessions"
)

// Session is a configurable in-memory sessions.Session.
type Session struct {
	ID   string
	Info sessions.ClientInfo

	// Caps is returned by GetClientCapabilities unless CapsErr is set.
	Caps    sessions.ClientCapabilities
	CapsErr error

	// Elicitor, when non-nil, is surfaced via GetElicitationCapability.
	Elicitor sessions.ElicitationCapability
}

var _ sessions.Session = (*Session)(nil)

func (s *Session) SessionID() string               { return s.ID }
func (s *Session) ClientInfo() sessions.ClientInfo { return s.Info }

func (s *Session) GetClientCapabilities(ctx context.Context) (sessions.ClientCapabilities, error) {
	if s.CapsErr != nil {
		return sessions.ClientCapabilities{}, s.CapsErr
	}
	return s.Caps, nil
}

func (s *Session) GetElicitationCapability() (sessions.ElicitationCapability, bool) {
	if s.Elicitor == nil {
		return nil, false
	}
	return s.Elicitor, true
}

// ScriptedElicitor returns a fixed sequence of actions, one per Elicit call,
// recording the prompt texts it was shown.
type ScriptedElicitor struct {
	Actions []sessions.ElicitAction
	Err     error

	mu      sync.Mutex
	calls   int
	Prompts []string
}

func (e *ScriptedElicitor) Elicit(ctx context.Context, text string) (sessions.ElicitAction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Prompts = append(e.Prompts, text)
	if e.Err != nil {
		return "", e.Err
	}
	if e.calls >= len(e.Actions) {
		return "", errors.New("sessionstest: unexpected elicitation")
	}
	a := e.Actions[e.calls]
	e.calls++
	return a, nil
}

// Calls reports how many elicitations were delivered.
func (e *ScriptedElicitor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
