package repository

import (
	"context"

	"tutoring-payment-service/internal/domain/model"
)

// -----------------------------
// Subscriptions
// -----------------------------

type SubscriptionRepository interface {
	Save(ctx context.Context, s *model.Subscription) error
	FindByUser(ctx context.Context, userID string) (*model.Subscription, error)
}
