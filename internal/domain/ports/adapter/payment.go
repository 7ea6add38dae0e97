package adapter

import (
	"context"

	"tutoring-payment-service/internal/domain/model"
)

// CreateRequest carries everything the provider needs to open a payment.
type CreateRequest struct {
	Amount      int64  // minor units
	Currency    string // ISO code
	Description string
	ReturnURL   string // where the provider redirects the user afterwards
	Recurring   bool   // ask the provider to save the payment method
	Meta        map[string]interface{}
}

// CreateResult is the provider's answer to a create call.
type CreateResult struct {
	ProviderID      string // provider-side payment id, used for all status checks
	ConfirmationURL string // redirect target where the user completes payment
	Status          model.PaymentStatus
}

// StatusResult is a single provider-side status read.
type StatusResult struct {
	ProviderID  string
	Status      model.PaymentStatus
	Amount      int64
	Description string
	PaidAt      *string // RFC3339 from the provider, if captured
}

// PaymentGateway is the hex port for payment providers.
type PaymentGateway interface {
	Name() string

	// CreatePayment opens a payment intent with the provider.
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)
	// CheckPayment reads the current status of a payment by provider id.
	CheckPayment(ctx context.Context, providerID string) (*StatusResult, error)
	// CancelAutoRenew revokes a saved payment method so a recurring
	// subscription stops charging. No-op for one-off payments.
	CancelAutoRenew(ctx context.Context, providerID string) error
}
