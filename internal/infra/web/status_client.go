package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tutoring-payment-service/internal/domain"
	"tutoring-payment-service/internal/domain/model"
	"tutoring-payment-service/internal/reconcile"
)

var _ reconcile.StatusChecker = (*StatusClient)(nil)

// StatusClient polls the canonical status endpoint over HTTP. It is the
// out-of-process counterpart of the gateway-backed checker: anything holding
// a user token can drive a reconciliation session against a remote instance.
type StatusClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewStatusClient(baseURL, token string) *StatusClient {
	return &StatusClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *StatusClient) Check(ctx context.Context, paymentID string) (*model.Payment, error) {
	if paymentID == "" {
		return nil, domain.ErrMissingPaymentID
	}
	u := c.baseURL + "/payments/check-payment-status/?payment_id=" + url.QueryEscape(paymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var body checkStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	p := &model.Payment{
		ID:          body.PaymentID,
		Status:      model.PaymentStatus(body.Status),
		Amount:      body.Amount,
		Description: body.Description,
	}
	if body.PaidAt != nil {
		ts, err := time.Parse(time.RFC3339, *body.PaidAt)
		if err != nil {
			return nil, fmt.Errorf("parse paid_at %q: %w", *body.PaidAt, err)
		}
		p.PaidAt = &ts
	}
	return p, nil
}
