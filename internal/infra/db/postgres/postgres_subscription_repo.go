package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tutoring-payment-service/internal/domain"
	"tutoring-payment-service/internal/domain/model"
	"tutoring-payment-service/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Save(ctx context.Context, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (id, user_id, status, access_until, provider_payment_id, created_at, updated_at, canceled_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (user_id) DO UPDATE SET
  status=$3, access_until=$4, provider_payment_id=$5, updated_at=$7, canceled_at=$8;`

	_, err := r.pool.Exec(ctx, q,
		s.ID, s.UserID, s.Status, s.AccessUntil, s.ProviderPaymentID,
		s.CreatedAt, s.UpdatedAt, s.CanceledAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepo) FindByUser(ctx context.Context, userID string) (*model.Subscription, error) {
	const q = `
SELECT id, user_id, status, access_until, provider_payment_id, created_at, updated_at, canceled_at
FROM subscriptions WHERE user_id=$1;`

	s := &model.Subscription{}
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&s.ID, &s.UserID, &s.Status, &s.AccessUntil, &s.ProviderPaymentID,
		&s.CreatedAt, &s.UpdatedAt, &s.CanceledAt,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}
