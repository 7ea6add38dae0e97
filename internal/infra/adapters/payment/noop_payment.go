package payment

import (
	"context"
	"fmt"
	"sync"

	"tutoring-payment-service/internal/domain/model"
	"tutoring-payment-service/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is a simple in-memory gateway for dev mode and tests.
// Payments succeed after SucceedAfter status checks (default: the second one).
type NoopPaymentGateway struct {
	mu           sync.Mutex
	seq          int64
	checks       map[string]int
	amounts      map[string]int64
	SucceedAfter int
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		checks:       make(map[string]int),
		amounts:      make(map[string]int64),
		SucceedAfter: 2,
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) CreatePayment(ctx context.Context, req adapter.CreateRequest) (*adapter.CreateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("noop-%d", g.seq)
	g.amounts[id] = req.Amount
	return &adapter.CreateResult{
		ProviderID:      id,
		ConfirmationURL: "https://example.test/pay/" + id,
		Status:          model.PaymentStatusPending,
	}, nil
}

func (g *NoopPaymentGateway) CheckPayment(ctx context.Context, providerID string) (*adapter.StatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	amount, ok := g.amounts[providerID]
	if !ok {
		return nil, fmt.Errorf("noop: payment %s not found", providerID)
	}
	g.checks[providerID]++
	status := model.PaymentStatusPending
	if g.checks[providerID] >= g.SucceedAfter {
		status = model.PaymentStatusSucceeded
	}
	return &adapter.StatusResult{
		ProviderID: providerID,
		Status:     status,
		Amount:     amount,
	}, nil
}

func (g *NoopPaymentGateway) CancelAutoRenew(ctx context.Context, providerID string) error {
	return nil
}
