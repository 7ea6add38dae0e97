package redis

import (
	"context"
	"fmt"
	"time"

	"tutoring-payment-service/internal/domain"
	"tutoring-payment-service/internal/domain/ports/repository"
)

var _ repository.PendingPaymentStore = (*PendingPaymentStore)(nil)

// PendingPaymentStore keeps the single "pending payment id" per user that a
// redirect-and-return flow reads to resume its reconciliation session.
type PendingPaymentStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewPendingPaymentStore(client RedisClient, ttl time.Duration) *PendingPaymentStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute // enough to come back from the provider redirect
	}
	return &PendingPaymentStore{client: client, ttl: ttl}
}

func (s *PendingPaymentStore) key(userID string) string {
	return fmt.Sprintf("pending_payment:%s", userID)
}

func (s *PendingPaymentStore) Set(ctx context.Context, userID, paymentID string) error {
	return s.client.Set(ctx, s.key(userID), paymentID, s.ttl)
}

func (s *PendingPaymentStore) Get(ctx context.Context, userID string) (string, error) {
	v, err := s.client.Get(ctx, s.key(userID))
	if IsNil(err) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *PendingPaymentStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.key(userID))
}
