//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tutoring-payment-service/internal/domain"
	"tutoring-payment-service/internal/domain/model"
	"tutoring-payment-service/internal/domain/ports/adapter"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// MockPaymentRepo is a small in-memory payment repository with optional hooks.
type MockPaymentRepo struct {
	mu       sync.RWMutex
	store    map[string]*model.Payment
	SaveFunc func(ctx context.Context, p *model.Payment) error
}

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{store: make(map[string]*model.Payment)}
}

func (m *MockPaymentRepo) Save(ctx context.Context, p *model.Payment) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, p); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) FindByProviderID(ctx context.Context, providerID string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.ProviderID == providerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) UpdateStatusIfPending(ctx context.Context, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status.Terminal() {
		return false, nil
	}
	p.Status = status
	if paidAt != nil {
		p.PaidAt = paidAt
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockPaymentRepo) MarkRefunded(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Refunded = true
	return nil
}

func (m *MockPaymentRepo) ListByUser(ctx context.Context, userID string) ([]*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Payment
	for _, p := range m.store {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Payment
	for _, p := range m.store {
		if !p.Status.Terminal() && p.UpdatedAt.Before(cutoff) && len(out) < limit {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockPaymentRepo) SumByPeriod(ctx context.Context, period string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, p := range m.store {
		if p.Status == model.PaymentStatusSucceeded {
			sum += p.Amount
		}
	}
	return sum, nil
}

// MockSubscriptionRepo stores one subscription per user.
type MockSubscriptionRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Subscription
}

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{store: make(map[string]*model.Subscription)}
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.UserID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindByUser(ctx context.Context, userID string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// MockPendingStore records the resume key per user.
type MockPendingStore struct {
	mu    sync.Mutex
	store map[string]string
}

func NewMockPendingStore() *MockPendingStore {
	return &MockPendingStore{store: make(map[string]string)}
}

func (m *MockPendingStore) Set(ctx context.Context, userID, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[userID] = paymentID
	return nil
}

func (m *MockPendingStore) Get(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.store[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return id, nil
}

func (m *MockPendingStore) Clear(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, userID)
	return nil
}

// MockPaymentGateway drives provider behavior through function hooks.
type MockPaymentGateway struct {
	CreatePaymentFunc   func(ctx context.Context, req adapter.CreateRequest) (*adapter.CreateResult, error)
	CheckPaymentFunc    func(ctx context.Context, providerID string) (*adapter.StatusResult, error)
	CancelAutoRenewFunc func(ctx context.Context, providerID string) error

	mu     sync.Mutex
	checks int
}

func (m *MockPaymentGateway) Name() string { return "mock" }

func (m *MockPaymentGateway) CreatePayment(ctx context.Context, req adapter.CreateRequest) (*adapter.CreateResult, error) {
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, req)
	}
	return &adapter.CreateResult{
		ProviderID:      "prov-1",
		ConfirmationURL: "https://provider.test/confirm/prov-1",
		Status:          model.PaymentStatusPending,
	}, nil
}

func (m *MockPaymentGateway) CheckPayment(ctx context.Context, providerID string) (*adapter.StatusResult, error) {
	m.mu.Lock()
	m.checks++
	m.mu.Unlock()
	if m.CheckPaymentFunc != nil {
		return m.CheckPaymentFunc(ctx, providerID)
	}
	return &adapter.StatusResult{ProviderID: providerID, Status: model.PaymentStatusPending}, nil
}

func (m *MockPaymentGateway) CancelAutoRenew(ctx context.Context, providerID string) error {
	if m.CancelAutoRenewFunc != nil {
		return m.CancelAutoRenewFunc(ctx, providerID)
	}
	return nil
}

func (m *MockPaymentGateway) CheckCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checks
}

// MockInvalidator records dashboard invalidations.
type MockInvalidator struct {
	mu    sync.Mutex
	users []string
}

func (m *MockInvalidator) InvalidateUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, userID)
	return nil
}

func (m *MockInvalidator) Invalidated() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.users...)
}
