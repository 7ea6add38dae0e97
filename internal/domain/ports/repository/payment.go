package repository

import (
	"context"
	"time"

	"tutoring-payment-service/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, p *model.Payment) error
	FindByID(ctx context.Context, id string) (*model.Payment, error)
	FindByProviderID(ctx context.Context, providerID string) (*model.Payment, error)
	// UpdateStatusIfPending flips the status only when the stored payment is
	// still non-terminal. Returns false when another writer got there first.
	UpdateStatusIfPending(ctx context.Context, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error)
	MarkRefunded(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]*model.Payment, error)
	// ListPendingOlderThan feeds the background sweep: pending payments whose
	// last update predates the cutoff, capped at limit.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Payment, error)
	SumByPeriod(ctx context.Context, period string) (int64, error)
}
