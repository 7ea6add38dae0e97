package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"tutoring-payment-service/internal/domain/model"
	"tutoring-payment-service/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*YooKassaGateway)(nil)

const defaultBaseURL = "https://api.yookassa.ru/v3"

// YooKassaGateway implements adapter.PaymentGateway over the YooKassa REST API.
type YooKassaGateway struct {
	shopID    string
	secretKey string
	baseURL   string
	client    *http.Client
}

func NewYooKassaGateway(shopID, secretKey, baseURL string) (*YooKassaGateway, error) {
	if shopID == "" || secretKey == "" {
		return nil, errors.New("yookassa credentials empty")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &YooKassaGateway{
		shopID:    shopID,
		secretKey: secretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *YooKassaGateway) Name() string { return "yookassa" }

type amountPayload struct {
	Value    string `json:"value"` // decimal string, e.g. "1500.00"
	Currency string `json:"currency"`
}

type confirmationPayload struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type paymentPayload struct {
	ID           string               `json:"id"`
	Status       string               `json:"status"`
	Amount       amountPayload        `json:"amount"`
	Description  string               `json:"description"`
	Confirmation *confirmationPayload `json:"confirmation,omitempty"`
	CapturedAt   *string              `json:"captured_at,omitempty"`
}

type apiError struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (g *YooKassaGateway) CreatePayment(ctx context.Context, req adapter.CreateRequest) (*adapter.CreateResult, error) {
	payload := map[string]any{
		"amount": amountPayload{
			Value:    minorToValue(req.Amount),
			Currency: req.Currency,
		},
		"capture":     true,
		"description": req.Description,
		"confirmation": confirmationPayload{
			Type:      "redirect",
			ReturnURL: req.ReturnURL,
		},
	}
	if req.Recurring {
		payload["save_payment_method"] = true
	}
	if req.Meta != nil {
		payload["metadata"] = req.Meta
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal create payload: %w", err)
	}

	var resp paymentPayload
	if err := g.do(ctx, http.MethodPost, "/payments", body, &resp); err != nil {
		return nil, err
	}
	res := &adapter.CreateResult{
		ProviderID: resp.ID,
		Status:     model.PaymentStatus(resp.Status),
	}
	if resp.Confirmation != nil {
		res.ConfirmationURL = resp.Confirmation.ConfirmationURL
	}
	return res, nil
}

func (g *YooKassaGateway) CheckPayment(ctx context.Context, providerID string) (*adapter.StatusResult, error) {
	if providerID == "" {
		return nil, errors.New("provider payment id empty")
	}
	var resp paymentPayload
	if err := g.do(ctx, http.MethodGet, "/payments/"+providerID, nil, &resp); err != nil {
		return nil, err
	}
	amount, err := valueToMinor(resp.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", resp.Amount.Value, err)
	}
	return &adapter.StatusResult{
		ProviderID:  resp.ID,
		Status:      model.PaymentStatus(resp.Status),
		Amount:      amount,
		Description: resp.Description,
		PaidAt:      resp.CapturedAt,
	}, nil
}

func (g *YooKassaGateway) CancelAutoRenew(ctx context.Context, providerID string) error {
	// YooKassa has no dedicated revoke call; dropping the saved method is done
	// by canceling the pending renewal payment when one exists.
	if providerID == "" {
		return nil
	}
	var resp paymentPayload
	return g.do(ctx, http.MethodPost, "/payments/"+providerID+"/cancel", []byte("{}"), &resp)
}

func (g *YooKassaGateway) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(g.shopID, g.secretKey)
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Idempotence-Key", uuid.NewString())
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Code != "" {
			return fmt.Errorf("yookassa %s %s: %s (%s)", method, path, apiErr.Description, apiErr.Code)
		}
		return fmt.Errorf("yookassa %s %s: status %d", method, path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal response: %w, body: %s", err, string(raw))
	}
	return nil
}

// minorToValue renders minor units as the provider's decimal string.
func minorToValue(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

// valueToMinor parses the provider's decimal string into minor units.
func valueToMinor(value string) (int64, error) {
	whole, frac, found := strings.Cut(value, ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	if !found {
		return units * 100, nil
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}
	return units*100 + cents, nil
}
