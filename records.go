package paymcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paymcp/paymcp-go/storage"
	"github.com/paymcp/paymcp-go/x402"
)

// pendingPayment is the persisted record of an initiated, unconfirmed
// payment. It captures everything needed to replay the original call once
// payment clears.
type pendingPayment struct {
	PaymentID string          `json:"paymentId"`
	Provider  string          `json:"provider"`
	SessionID string          `json:"sessionId,omitempty"`
	ToolName  string          `json:"toolName"`
	Args      json.RawMessage `json:"args,omitempty"`
	URL       string          `json:"url,omitempty"`
	// ConfirmTool is set by the dynamic-tools flow only.
	ConfirmTool string    `json:"confirmTool,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// challengeRecord is the persisted x402 challenge: the single offer issued
// plus the captured call it gates.
type challengeRecord struct {
	Offer     x402.Offer      `json:"offer"`
	SessionID string          `json:"sessionId,omitempty"`
	ToolName  string          `json:"toolName"`
	Args      json.RawMessage `json:"args,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func recordKey(paymentID string) string { return "payment:" + paymentID }

func challengeKey(id string) string { return "challenge:" + id }

func (o *Orchestrator) putRecord(ctx context.Context, rec *pendingPayment) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("paymcp: marshal payment record: %w", err)
	}
	return o.store.Set(ctx, recordKey(rec.PaymentID), data, storage.WithTTL(o.retention))
}

// getRecord loads a pending payment, or nil when absent or expired.
func (o *Orchestrator) getRecord(ctx context.Context, paymentID string) (*pendingPayment, error) {
	it, err := o.store.Get(ctx, recordKey(paymentID))
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, nil
	}
	var rec pendingPayment
	if err := json.Unmarshal(it.Data, &rec); err != nil {
		return nil, fmt.Errorf("paymcp: unmarshal payment record: %w", err)
	}
	return &rec, nil
}

func (o *Orchestrator) deleteRecord(ctx context.Context, paymentID string) error {
	return o.store.Delete(ctx, recordKey(paymentID))
}

func (o *Orchestrator) putChallenge(ctx context.Context, key string, rec *challengeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("paymcp: marshal challenge record: %w", err)
	}
	return o.store.Set(ctx, challengeKey(key), data, storage.WithTTL(o.retention))
}

func (o *Orchestrator) getChallenge(ctx context.Context, key string) (*challengeRecord, error) {
	it, err := o.store.Get(ctx, challengeKey(key))
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, nil
	}
	var rec challengeRecord
	if err := json.Unmarshal(it.Data, &rec); err != nil {
		return nil, fmt.Errorf("paymcp: unmarshal challenge record: %w", err)
	}
	return &rec, nil
}

func (o *Orchestrator) deleteChallenge(ctx context.Context, key string) error {
	return o.store.Delete(ctx, challengeKey(key))
}
