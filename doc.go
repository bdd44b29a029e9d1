// Package paymcp gates MCP tool invocations behind a payment step.
//
// An Orchestrator wraps tool handlers so that the first call without proof
// of payment creates a payment with a configured provider and answers with
// a structured payment-required result (or an x402 protocol challenge);
// once the payment clears, the originally captured arguments are replayed
// through the real handler. Four interchangeable flow strategies cover
// different client capabilities — interactive elicitation, two-step
// resubmission, x402 challenge/response headers, and dynamic confirmation
// tools with session-scoped visibility — with AUTO selection per call from
// the session's advertised capabilities.
//
// Pending-payment state lives in a storage.Store shared across processes;
// tool-visibility state is process-local because it mirrors live server
// registration state, so multi-process deployments need sticky session
// routing for the dynamic-tools flow.
package paymcp
