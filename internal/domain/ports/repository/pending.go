package repository

import "context"

// PendingPaymentStore holds the single "pending payment id" per user that lets
// a redirect-and-return flow resume its reconciliation session. Entries are
// short-lived; a missing key is reported as domain.ErrNotFound.
type PendingPaymentStore interface {
	Set(ctx context.Context, userID, paymentID string) error
	Get(ctx context.Context, userID string) (string, error)
	Clear(ctx context.Context, userID string) error
}
