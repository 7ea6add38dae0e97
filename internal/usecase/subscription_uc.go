package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tutoring-payment-service/internal/domain"
	"tutoring-payment-service/internal/domain/model"
	"tutoring-payment-service/internal/domain/ports/adapter"
	"tutoring-payment-service/internal/domain/ports/repository"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	// Status returns the user's subscription; domain.ErrNoSubscription when
	// the user never had one.
	Status(ctx context.Context, userID string) (*model.Subscription, error)
	// Cancel stops auto-renewal. Access is kept until the paid period ends.
	Cancel(ctx context.Context, userID string) (*model.Subscription, error)
	// ActivateFromPayment (re)activates the subscription after a succeeded
	// recurring payment, extending access by one billing period.
	ActivateFromPayment(ctx context.Context, p *model.Payment) error
}

type subscriptionUC struct {
	subs    repository.SubscriptionRepository
	gateway adapter.PaymentGateway
	period  time.Duration // billing period granted per succeeded payment
	log     *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, gateway adapter.PaymentGateway, period time.Duration, logger *zerolog.Logger) *subscriptionUC {
	if period <= 0 {
		period = 30 * 24 * time.Hour
	}
	ucLog := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{subs: subs, gateway: gateway, period: period, log: &ucLog}
}

func (u *subscriptionUC) Status(ctx context.Context, userID string) (*model.Subscription, error) {
	s, err := u.subs.FindByUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoSubscription
	}
	return s, err
}

func (u *subscriptionUC) Cancel(ctx context.Context, userID string) (*model.Subscription, error) {
	s, err := u.subs.FindByUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoSubscription
	}
	if err != nil {
		return nil, err
	}
	if s.Status == model.SubscriptionStatusCanceled {
		return s, nil // already canceled, keep idempotent
	}

	if s.ProviderPaymentID != "" {
		if err := u.gateway.CancelAutoRenew(ctx, s.ProviderPaymentID); err != nil {
			// Local cancellation still proceeds; the provider side is retried
			// manually by support if revocation failed.
			u.log.Warn().Err(err).Str("user_id", userID).Msg("provider auto-renew revocation failed")
		}
	}

	now := time.Now()
	s.Status = model.SubscriptionStatusCanceled
	s.CanceledAt = &now
	s.UpdatedAt = now
	if err := u.subs.Save(ctx, s); err != nil {
		return nil, err
	}
	u.log.Info().Str("user_id", userID).Time("access_until", s.AccessUntil).Msg("subscription canceled")
	return s, nil
}

func (u *subscriptionUC) ActivateFromPayment(ctx context.Context, p *model.Payment) error {
	if p == nil || p.Status != model.PaymentStatusSucceeded {
		return domain.ErrInvalidArgument
	}
	now := time.Now()

	s, err := u.subs.FindByUser(ctx, p.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s = &model.Subscription{
			ID:        uuid.NewString(),
			UserID:    p.UserID,
			CreatedAt: now,
		}
	case err != nil:
		return err
	}

	// Extend from the current paid period when it is still running, otherwise
	// start a fresh period from now.
	base := now
	if s.AccessUntil.After(now) {
		base = s.AccessUntil
	}
	s.Status = model.SubscriptionStatusActive
	s.AccessUntil = base.Add(u.period)
	s.ProviderPaymentID = p.ProviderID
	s.CanceledAt = nil
	s.UpdatedAt = now
	if err := u.subs.Save(ctx, s); err != nil {
		return err
	}
	u.log.Info().Str("user_id", p.UserID).Time("access_until", s.AccessUntil).Msg("subscription activated")
	return nil
}
