package model

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled" // access kept until AccessUntil
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// Subscription is the recurring-payment entitlement for a user.
// A succeeded recurring payment (re)activates it; an explicit cancel keeps
// access until the already-paid period runs out.
type Subscription struct {
	ID                string // UUID
	UserID            string // UUID
	Status            SubscriptionStatus
	AccessUntil       time.Time // end of the paid period
	ProviderPaymentID string    // provider id of the last charge, used to revoke auto-renew
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CanceledAt        *time.Time
}

// HasAccess reports whether the user still has entitlement at the given time.
// A canceled subscription keeps access until its paid period ends.
func (s *Subscription) HasAccess(now time.Time) bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusCanceled:
		return now.Before(s.AccessUntil)
	default:
		return false
	}
}
