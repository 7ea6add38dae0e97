//go:build !integration

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tutoring-payment-service/internal/domain"
	"tutoring-payment-service/internal/domain/model"
	"tutoring-payment-service/internal/infra/web"
	"tutoring-payment-service/internal/reconcile"
)

//
// ---------------- in-memory use case mocks ----------------
//

type mockPaymentUC struct {
	mu       sync.Mutex
	payments map[string]*model.Payment
	resume   map[string]string
	checks   int
	lists    int
	events   []string
	revenue  int64

	checkFunc func(ctx context.Context, paymentID string) (*model.Payment, error)
}

func newMockPaymentUC() *mockPaymentUC {
	return &mockPaymentUC{
		payments: make(map[string]*model.Payment),
		resume:   make(map[string]string),
	}
}

func (m *mockPaymentUC) Create(ctx context.Context, userID, enrollmentID string, amount int64, currency, description string, recurring bool) (*model.Payment, string, error) {
	if userID == "" || amount <= 0 {
		return nil, "", domain.ErrInvalidArgument
	}
	p := &model.Payment{
		ID:        "pay-1",
		UserID:    userID,
		Amount:    amount,
		Currency:  currency,
		Status:    model.PaymentStatusPending,
		CreatedAt: time.Now(),
	}
	m.mu.Lock()
	m.payments[p.ID] = p
	m.resume[userID] = p.ID
	m.mu.Unlock()
	return p, "https://provider.test/confirm/pay-1", nil
}

func (m *mockPaymentUC) Check(ctx context.Context, paymentID string) (*model.Payment, error) {
	m.mu.Lock()
	m.checks++
	m.mu.Unlock()
	if m.checkFunc != nil {
		return m.checkFunc(ctx, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPaymentUC) Resume(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.resume[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return id, nil
}

func (m *mockPaymentUC) ApplyOutcome(ctx context.Context, userID string, o reconcile.Outcome) error {
	return nil
}

func (m *mockPaymentUC) HandleProviderEvent(ctx context.Context, event, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ProviderID == providerID {
			if event == "refund.succeeded" {
				p.Refunded = true
			}
			m.events = append(m.events, event)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockPaymentUC) ListByUser(ctx context.Context, userID string) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	var out []*model.Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockPaymentUC) SumByPeriod(ctx context.Context, period string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revenue, nil
}

type mockSubUC struct {
	sub *model.Subscription
}

func (m *mockSubUC) Status(ctx context.Context, userID string) (*model.Subscription, error) {
	if m.sub == nil {
		return nil, domain.ErrNoSubscription
	}
	return m.sub, nil
}

func (m *mockSubUC) Cancel(ctx context.Context, userID string) (*model.Subscription, error) {
	if m.sub == nil {
		return nil, domain.ErrNoSubscription
	}
	now := time.Now()
	m.sub.Status = model.SubscriptionStatusCanceled
	m.sub.CanceledAt = &now
	return m.sub, nil
}

func (m *mockSubUC) ActivateFromPayment(ctx context.Context, p *model.Payment) error { return nil }

//
// ---------------- helpers ----------------
//

func newTestServer(t *testing.T, payUC *mockPaymentUC, subUC *mockSubUC) (*httptest.Server, *web.AuthManager) {
	return newTestServerWithViews(t, payUC, subUC, nil)
}

func newTestServerWithViews(t *testing.T, payUC *mockPaymentUC, subUC *mockSubUC, views web.ViewCache) (*httptest.Server, *web.AuthManager) {
	t.Helper()
	logger := zerolog.Nop()
	auth := web.NewAuthManager("test-secret", time.Hour)
	srv := web.NewServer(payUC, subUC, auth, views, &logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, auth
}

func authedRequest(t *testing.T, auth *web.AuthManager, method, url string, body []byte) *http.Request {
	return authedRequestAs(t, auth, "parent", method, url, body)
}

func authedRequestAs(t *testing.T, auth *web.AuthManager, role, method, url string, body []byte) *http.Request {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, url, bytes.NewReader(body))
	} else {
		req, err = http.NewRequest(method, url, nil)
	}
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	token, err := auth.Mint("user-1", role)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

//
// ---------------- tests ----------------
//

func TestServer_RequiresAuth(t *testing.T) {
	ts, _ := newTestServer(t, newMockPaymentUC(), &mockSubUC{})

	resp, err := http.Get(ts.URL + "/payments/check-payment-status/?payment_id=p1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestServer_HealthIsPublic(t *testing.T) {
	ts, _ := newTestServer(t, newMockPaymentUC(), &mockSubUC{})
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_CreatePayment(t *testing.T) {
	payUC := newMockPaymentUC()
	ts, auth := newTestServer(t, payUC, &mockSubUC{})

	body, _ := json.Marshal(map[string]any{
		"enrollment_id": "enr-1",
		"amount":        150000,
		"description":   "Math lessons, March",
	})
	req := authedRequest(t, auth, http.MethodPost, ts.URL+"/api/v1/payments", body)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var out struct {
		PaymentID       string `json:"payment_id"`
		ConfirmationURL string `json:"confirmation_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.PaymentID == "" || out.ConfirmationURL == "" {
		t.Errorf("expected payment id and confirmation url, got %+v", out)
	}
}

func TestServer_CheckStatus(t *testing.T) {
	payUC := newMockPaymentUC()
	paidAt := time.Now()
	payUC.payments["pay-1"] = &model.Payment{
		ID:     "pay-1",
		UserID: "user-1",
		Amount: 150000,
		Status: model.PaymentStatusSucceeded,
		PaidAt: &paidAt,
	}
	ts, auth := newTestServer(t, payUC, &mockSubUC{})

	t.Run("requires payment_id", func(t *testing.T) {
		req := authedRequest(t, auth, http.MethodGet, ts.URL+"/payments/check-payment-status/", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 without payment_id, got %d", resp.StatusCode)
		}
	})

	t.Run("returns provider and ui status", func(t *testing.T) {
		req := authedRequest(t, auth, http.MethodGet, ts.URL+"/payments/check-payment-status/?payment_id=pay-1", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var out struct {
			Status   string  `json:"status"`
			UIStatus string  `json:"ui_status"`
			PaidAt   *string `json:"paid_at"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if out.Status != "succeeded" || out.UIStatus != "paid" {
			t.Errorf("expected succeeded/paid, got %s/%s", out.Status, out.UIStatus)
		}
		if out.PaidAt == nil {
			t.Error("expected paid_at in the response")
		}
	})

	t.Run("unknown payment is 404", func(t *testing.T) {
		req := authedRequest(t, auth, http.MethodGet, ts.URL+"/payments/check-payment-status/?payment_id=nope", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})
}

func TestServer_Resume(t *testing.T) {
	payUC := newMockPaymentUC()
	ts, auth := newTestServer(t, payUC, &mockSubUC{})

	req := authedRequest(t, auth, http.MethodGet, ts.URL+"/api/v1/payments/resume", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Pending   bool   `json:"pending"`
		PaymentID string `json:"payment_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Pending {
		t.Error("expected pending=false with no resume key")
	}

	payUC.resume["user-1"] = "pay-9"
	req = authedRequest(t, auth, http.MethodGet, ts.URL+"/api/v1/payments/resume", nil)
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp2.Body.Close()
	if err := json.NewDecoder(resp2.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.Pending || out.PaymentID != "pay-9" {
		t.Errorf("expected pending=true payment_id=pay-9, got %+v", out)
	}
}

func TestServer_CancelSubscription(t *testing.T) {
	subUC := &mockSubUC{sub: &model.Subscription{
		ID: "sub-1", UserID: "user-1",
		Status:      model.SubscriptionStatusActive,
		AccessUntil: time.Now().Add(10 * 24 * time.Hour),
	}}
	ts, auth := newTestServer(t, newMockPaymentUC(), subUC)

	req := authedRequest(t, auth, http.MethodPost, ts.URL+"/api/v1/subscriptions/cancel", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Status != "canceled" {
		t.Errorf("expected canceled, got %s", out.Status)
	}
}

func TestServer_ProviderWebhook(t *testing.T) {
	payUC := newMockPaymentUC()
	payUC.payments["pay-1"] = &model.Payment{
		ID: "pay-1", UserID: "user-1", ProviderID: "prov-1",
		Status: model.PaymentStatusSucceeded,
	}
	ts, _ := newTestServer(t, payUC, &mockSubUC{})

	post := func(t *testing.T, body string) *http.Response {
		t.Helper()
		resp, err := http.Post(ts.URL+"/webhooks/yookassa", "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		return resp
	}

	t.Run("refund notification is applied without a user token", func(t *testing.T) {
		resp := post(t, `{"event":"refund.succeeded","object":{"id":"prov-1"}}`)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		payUC.mu.Lock()
		defer payUC.mu.Unlock()
		if !payUC.payments["pay-1"].Refunded {
			t.Error("expected the payment to be marked refunded")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := post(t, `{"event":""}`)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("unknown payment", func(t *testing.T) {
		resp := post(t, `{"event":"payment.succeeded","object":{"id":"prov-missing"}}`)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})
}

func TestServer_AdminRevenue(t *testing.T) {
	payUC := newMockPaymentUC()
	payUC.revenue = 450000
	ts, auth := newTestServer(t, payUC, &mockSubUC{})

	t.Run("forbidden for non-admins", func(t *testing.T) {
		req := authedRequestAs(t, auth, "parent", http.MethodGet, ts.URL+"/api/v1/admin/revenue", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("rejects an unknown period", func(t *testing.T) {
		req := authedRequestAs(t, auth, "admin", http.MethodGet, ts.URL+"/api/v1/admin/revenue?period=fortnight", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("returns the period total for admins", func(t *testing.T) {
		req := authedRequestAs(t, auth, "admin", http.MethodGet, ts.URL+"/api/v1/admin/revenue?period=month", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var out struct {
			Period      string `json:"period"`
			TotalAmount int64  `json:"total_amount"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if out.Period != "month" || out.TotalAmount != 450000 {
			t.Errorf("expected month/450000, got %s/%d", out.Period, out.TotalAmount)
		}
	})
}

type memViewCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newMemViewCache() *memViewCache {
	return &memViewCache{store: make(map[string][]byte)}
}

func (c *memViewCache) GetView(ctx context.Context, view, userID string, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.store[view+":"+userID]
	if !ok {
		return domain.ErrNotFound
	}
	return json.Unmarshal(data, out)
}

func (c *memViewCache) SetView(ctx context.Context, view, userID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[view+":"+userID] = data
	return nil
}

func TestServer_ListPaymentsUsesViewCache(t *testing.T) {
	payUC := newMockPaymentUC()
	payUC.payments["pay-1"] = &model.Payment{
		ID: "pay-1", UserID: "user-1", Amount: 1000, Currency: "RUB",
		Status: model.PaymentStatusSucceeded, CreatedAt: time.Now(),
	}
	ts, auth := newTestServerWithViews(t, payUC, &mockSubUC{}, newMemViewCache())

	get := func(t *testing.T) []map[string]any {
		t.Helper()
		req := authedRequest(t, auth, http.MethodGet, ts.URL+"/api/v1/payments", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var out []map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return out
	}

	first := get(t)
	second := get(t)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one payment in both responses, got %d and %d", len(first), len(second))
	}
	payUC.mu.Lock()
	defer payUC.mu.Unlock()
	if payUC.lists != 1 {
		t.Errorf("expected the second request to be served from the view cache, got %d list calls", payUC.lists)
	}
}

func TestStatusClient_RejectsMalformedPaidAt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"payment_id":"pay-1","status":"succeeded","ui_status":"paid","amount":1000,"paid_at":"yesterday"}`))
	}))
	defer srv.Close()

	client := web.NewStatusClient(srv.URL, "token")
	if _, err := client.Check(context.Background(), "pay-1"); err == nil {
		t.Fatal("expected an error for a malformed paid_at, but got nil")
	}
}

// TestStatusClient_DrivesReconciliation polls the real HTTP endpoint through
// the StatusClient, exactly like a remote dashboard session would.
func TestStatusClient_DrivesReconciliation(t *testing.T) {
	payUC := newMockPaymentUC()
	var mu sync.Mutex
	calls := 0
	payUC.checkFunc = func(ctx context.Context, paymentID string) (*model.Payment, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		status := model.PaymentStatusPending
		if calls >= 3 {
			status = model.PaymentStatusSucceeded
		}
		return &model.Payment{ID: paymentID, Status: status}, nil
	}
	ts, auth := newTestServer(t, payUC, &mockSubUC{})

	token, err := auth.Mint("user-1", "parent")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	client := web.NewStatusClient(ts.URL, token)

	logger := zerolog.Nop()
	r := reconcile.New(client, &logger)
	done := make(chan reconcile.Outcome, 1)
	h, err := r.Start(context.Background(), "pay-1", reconcile.Options{
		Interval:   2 * time.Millisecond,
		OnTerminal: func(o reconcile.Outcome) { done <- o },
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case o := <-done:
		if o.Kind != reconcile.OutcomeSucceeded {
			t.Errorf("expected succeeded, got %s", o.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
	<-h.Done()

	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("expected exactly 3 status checks, got %d", calls)
	}
}
