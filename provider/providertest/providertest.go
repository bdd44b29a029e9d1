// Package providertest provides a scripted fake payment provider for tests.
package providertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/paymcp/paymcp-go/provider"
)

// Provider is a configurable in-memory payment provider. Zero value is
// usable: payments get sequential identifiers and report StatusPending
// until a test flips them via SetStatus.
type Provider struct {
	// ProviderName overrides the reported name ("fake" by default).
	ProviderName string

	// CreateErr, when set, fails CreatePayment.
	CreateErr error
	// StatusErr, when set, fails GetPaymentStatus.
	StatusErr error

	// Data, when set, is returned as Payment.Data from CreatePayment.
	Data json.RawMessage

	mu          sync.Mutex
	seq         int
	statuses    map[string]provider.Status
	created     []string
	statusCalls []string
}

var _ provider.Provider = (*Provider)(nil)

func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "fake"
}

func (p *Provider) CreatePayment(ctx context.Context, price provider.Price, description string) (*provider.Payment, error) {
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("pay_%d", p.seq)
	p.created = append(p.created, id)
	if p.statuses == nil {
		p.statuses = make(map[string]provider.Status)
	}
	if _, ok := p.statuses[id]; !ok {
		p.statuses[id] = provider.StatusPending
	}
	return &provider.Payment{
		ID:   id,
		URL:  "https://pay.example.test/" + id,
		Data: p.Data,
	}, nil
}

func (p *Provider) GetPaymentStatus(ctx context.Context, token string) (provider.Status, error) {
	p.mu.Lock()
	p.statusCalls = append(p.statusCalls, token)
	st, ok := p.statuses[token]
	err := p.StatusErr
	p.mu.Unlock()
	if err != nil {
		return provider.StatusUnknown, err
	}
	if !ok {
		return provider.StatusUnknown, nil
	}
	return st, nil
}

// SetStatus scripts the status reported for a token.
func (p *Provider) SetStatus(token string, st provider.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.statuses == nil {
		p.statuses = make(map[string]provider.Status)
	}
	p.statuses[token] = st
}

// Created returns the payment identifiers issued so far, in order.
func (p *Provider) Created() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.created...)
}

// StatusCalls returns the tokens passed to GetPaymentStatus, in order.
func (p *Provider) StatusCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.statusCalls...)
}
