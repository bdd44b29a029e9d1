package paymcp

import (
	"fmt"

	"github.com/paymcp/paymcp-go/mcp"
	"github.com/paymcp/paymcp-go/provider"
)

// Machine-readable message codes surfaced in structured results. Clients
// branch on these, so they are part of the wire contract.
const (
	msgPaymentRequired    = "payment_required"
	msgNotPaid            = "not_paid_yet"
	msgUnknownPayment     = "unknown_payment_id"
	msgUnknownChallenge   = "unknown_challenge"
	msgCanceled           = "canceled"
	msgPaymentFailed      = "payment_failed"
	msgTechnicalError     = "technical_error"
	msgIncorrectSignature = "incorrect_signature"
)

// structuredResult builds a non-error result with both a text rendering
// and machine-readable fields. Payment outcomes are data, not protocol
// faults, so IsError stays false.
func structuredResult(text string, fields map[string]any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content:           []mcp.ContentBlock{{Type: "text", Text: text}},
		StructuredContent: fields,
	}
}

// errorResult is for conditions the caller cannot recover from by paying:
// IsError is set and the structured status marks the result as an error.
func errorResult(text, message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content:           []mcp.ContentBlock{{Type: "text", Text: text}},
		StructuredContent: map[string]any{"status": "error", "message": message},
		IsError:           true,
	}
}

func resultPaymentRequired(price provider.Price, paymentID, url, nextTool string) *mcp.CallToolResult {
	fields := map[string]any{
		"message":    msgPaymentRequired,
		"payment_id": paymentID,
		"amount":     price.Amount.String(),
		"currency":   price.Currency,
	}
	text := fmt.Sprintf("Payment of %s is required.", price)
	if url != "" {
		fields["payment_url"] = url
		text += fmt.Sprintf(" Complete it at %s.", url)
	}
	if nextTool != "" {
		fields["next_tool"] = nextTool
		text += fmt.Sprintf(" Then call %q to continue.", nextTool)
	} else {
		text += fmt.Sprintf(" Then call this tool again with payment_id %q.", paymentID)
	}
	return structuredResult(text, fields)
}

func resultNotPaid(paymentID, url string) *mcp.CallToolResult {
	fields := map[string]any{
		"message":    msgNotPaid,
		"payment_id": paymentID,
	}
	if url != "" {
		fields["payment_url"] = url
	}
	return structuredResult(
		fmt.Sprintf("Payment %s has not completed yet. Finish paying and try again.", paymentID),
		fields,
	)
}

func resultUnknownPayment(paymentID string) *mcp.CallToolResult {
	return structuredResult(
		fmt.Sprintf("Payment %s is unknown or has expired. Call the tool again to start over.", paymentID),
		map[string]any{"message": msgUnknownPayment, "payment_id": paymentID},
	)
}

func resultUnknownChallenge() *mcp.CallToolResult {
	return structuredResult(
		"The payment challenge is unknown or has expired. Call the tool again to receive a new one.",
		map[string]any{"message": msgUnknownChallenge},
	)
}

func resultCanceled(paymentID string) *mcp.CallToolResult {
	return structuredResult(
		"Payment was declined. The tool was not executed.",
		map[string]any{"message": msgCanceled, "payment_id": paymentID},
	)
}

func resultPaymentFailed(paymentID string, st provider.Status) *mcp.CallToolResult {
	return structuredResult(
		fmt.Sprintf("Payment %s ended in state %q. Call the tool again to start over.", paymentID, st),
		map[string]any{"message": msgPaymentFailed, "payment_id": paymentID, "provider_status": string(st)},
	)
}

func resultTechnicalError(text string) *mcp.CallToolResult {
	return errorResult(text, msgTechnicalError)
}

func resultIncorrectSignature() *mcp.CallToolResult {
	return errorResult("Payment proof does not match the issued offer.", msgIncorrectSignature)
}
