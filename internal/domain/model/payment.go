package model

import "time"

// PaymentStatus is the provider-side status vocabulary.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"             // created; awaiting user action at the provider
	PaymentStatusWaitingForCapture PaymentStatus = "waiting_for_capture" // authorized; provider holds the funds
	PaymentStatusSucceeded         PaymentStatus = "succeeded"           // captured; the only success state
	PaymentStatusCanceled          PaymentStatus = "canceled"            // canceled at the provider or expired there
)

// Terminal reports whether no further provider-side transition is possible.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusCanceled
}

// UIStatus is the smaller status set surfaced to dashboards.
type UIStatus string

const (
	UIStatusPending           UIStatus = "pending"
	UIStatusWaitingForPayment UIStatus = "waiting_for_payment"
	UIStatusPaid              UIStatus = "paid"
	UIStatusOverdue           UIStatus = "overdue"
	UIStatusRefunded          UIStatus = "refunded"
	UIStatusNoPayment         UIStatus = "no_payment"
)

// MapToUI translates a provider status into the UI-facing vocabulary.
// A provider-side cancellation reverts the UI to the pre-payment state so the
// user can retry, it is not rendered as a failure.
func MapToUI(s PaymentStatus) UIStatus {
	switch s {
	case PaymentStatusSucceeded:
		return UIStatusPaid
	case PaymentStatusWaitingForCapture:
		return UIStatusWaitingForPayment
	default:
		return UIStatusPending
	}
}

// Payment records an external payment intent for an enrollment.
type Payment struct {
	ID           string // UUID, internal identity; immutable once created
	UserID       string // UUID of the paying user (student or parent)
	EnrollmentID string // UUID of the enrollment/subject the payment is for
	Provider     string // e.g. "yookassa"
	ProviderID   string // provider-side payment id, set on creation
	Amount       int64  // minor units, integer to avoid float errors
	Currency     string // ISO code, e.g. "RUB"
	Description  string // human-readable description shown to the gateway
	Recurring    bool   // payment (re)activates a recurring subscription
	Status       PaymentStatus
	Confirmation string // provider redirect URL where the user completes payment
	Refunded     bool   // set by an out-of-band refund, never by the poll loop
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PaidAt       *time.Time // set when succeeded
	DueAt        *time.Time // optional deadline used for the overdue UI state
	Meta         map[string]interface{}
}

// UIStatusOf derives the dashboard status for a possibly-missing payment.
func UIStatusOf(p *Payment, now time.Time) UIStatus {
	if p == nil {
		return UIStatusNoPayment
	}
	if p.Refunded {
		return UIStatusRefunded
	}
	if p.Status != PaymentStatusSucceeded && p.DueAt != nil && now.After(*p.DueAt) {
		return UIStatusOverdue
	}
	return MapToUI(p.Status)
}
