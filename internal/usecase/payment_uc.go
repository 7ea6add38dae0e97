package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tutoring-payment-service/internal/domain"
	"tutoring-payment-service/internal/domain/model"
	"tutoring-payment-service/internal/domain/ports/adapter"
	"tutoring-payment-service/internal/domain/ports/repository"
	"tutoring-payment-service/internal/infra/metrics"
	"tutoring-payment-service/internal/reconcile"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)
var _ reconcile.StatusChecker = (PaymentUseCase)(nil)

// DashboardInvalidator drops cached dashboard views for a user after a
// payment reaches the succeeded outcome.
type DashboardInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

type PaymentUseCase interface {
	// Create opens a payment with the provider and returns the stored intent
	// plus the confirmation URL the user is redirected to.
	Create(ctx context.Context, userID, enrollmentID string, amount int64, currency, description string, recurring bool) (*model.Payment, string, error)
	// Check reads the current status for a payment and persists any terminal
	// transition. It is the StatusChecker used by reconciliation sessions.
	Check(ctx context.Context, paymentID string) (*model.Payment, error)
	// Resume returns the pending payment id recorded for the user, if any,
	// so a redirect-and-return flow can restart its session.
	Resume(ctx context.Context, userID string) (string, error)
	// ApplyOutcome performs the terminal bookkeeping for a finished session:
	// clearing the resume key, activating the subscription for recurring
	// payments, and invalidating the user's cached dashboard views.
	ApplyOutcome(ctx context.Context, userID string, o reconcile.Outcome) error
	// HandleProviderEvent applies a webhook notification from the provider.
	// Payments land out-of-band this way when polling already gave up.
	HandleProviderEvent(ctx context.Context, event, providerID string) error
	ListByUser(ctx context.Context, userID string) ([]*model.Payment, error)
	SumByPeriod(ctx context.Context, period string) (int64, error)
}

type paymentUC struct {
	payments  repository.PaymentRepository
	pending   repository.PendingPaymentStore
	gateway   adapter.PaymentGateway
	subs      SubscriptionUseCase
	dashboard DashboardInvalidator
	returnURL string
	log       *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	pending repository.PendingPaymentStore,
	gateway adapter.PaymentGateway,
	subs SubscriptionUseCase,
	dashboard DashboardInvalidator,
	returnURL string,
	logger *zerolog.Logger,
) *paymentUC {
	ucLog := logger.With().Str("component", "PaymentUC").Logger()
	return &paymentUC{
		payments:  payments,
		pending:   pending,
		gateway:   gateway,
		subs:      subs,
		dashboard: dashboard,
		returnURL: returnURL,
		log:       &ucLog,
	}
}

func (u *paymentUC) Create(ctx context.Context, userID, enrollmentID string, amount int64, currency, description string, recurring bool) (*model.Payment, string, error) {
	if userID == "" || amount <= 0 {
		return nil, "", domain.ErrInvalidArgument
	}

	res, err := u.gateway.CreatePayment(ctx, adapter.CreateRequest{
		Amount:      amount,
		Currency:    currency,
		Description: description,
		ReturnURL:   u.returnURL,
		Recurring:   recurring,
		Meta:        map[string]interface{}{"enrollment_id": enrollmentID},
	})
	if err != nil {
		return nil, "", fmt.Errorf("create payment with provider: %w", err)
	}

	now := time.Now()
	p := &model.Payment{
		ID:           uuid.NewString(),
		UserID:       userID,
		EnrollmentID: enrollmentID,
		Provider:     u.gateway.Name(),
		ProviderID:   res.ProviderID,
		Amount:       amount,
		Currency:     currency,
		Description:  description,
		Recurring:    recurring,
		Status:       res.Status,
		Confirmation: res.ConfirmationURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.payments.Save(ctx, p); err != nil {
		return nil, "", err
	}
	// Record the resume key so a full-page redirect can pick the session up.
	if err := u.pending.Set(ctx, userID, p.ID); err != nil {
		u.log.Warn().Err(err).Str("payment_id", p.ID).Msg("failed to record pending payment id")
	}
	metrics.IncPayment(string(p.Status))
	u.log.Info().Str("payment_id", p.ID).Str("provider_id", p.ProviderID).Int64("amount", amount).Msg("payment created")
	return p, res.ConfirmationURL, nil
}

func (u *paymentUC) Check(ctx context.Context, paymentID string) (*model.Payment, error) {
	if paymentID == "" {
		return nil, domain.ErrMissingPaymentID
	}
	p, err := u.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	// Terminal states never transition again; skip the provider round-trip.
	if p.Status.Terminal() {
		return p, nil
	}

	res, err := u.gateway.CheckPayment(ctx, p.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("check payment %s: %w", paymentID, err)
	}
	if res.Status == p.Status {
		return p, nil
	}

	var paidAt *time.Time
	if res.Status == model.PaymentStatusSucceeded {
		now := time.Now()
		paidAt = &now
	}
	updated, err := u.payments.UpdateStatusIfPending(ctx, p.ID, res.Status, paidAt)
	if err != nil {
		return nil, err
	}
	if updated {
		metrics.IncPayment(string(res.Status))
		if res.Status == model.PaymentStatusSucceeded {
			metrics.AddPaymentRevenue(p.Currency, p.Amount)
		}
		p.Status = res.Status
		p.PaidAt = paidAt
		p.UpdatedAt = time.Now()
	} else {
		// Lost the race against another writer; re-read the winner's state.
		return u.payments.FindByID(ctx, p.ID)
	}
	return p, nil
}

func (u *paymentUC) Resume(ctx context.Context, userID string) (string, error) {
	return u.pending.Get(ctx, userID)
}

func (u *paymentUC) ApplyOutcome(ctx context.Context, userID string, o reconcile.Outcome) error {
	switch o.Kind {
	case reconcile.OutcomeSucceeded:
		if err := u.pending.Clear(ctx, userID); err != nil {
			u.log.Warn().Err(err).Msg("failed to clear pending payment id")
		}
		if o.Payment != nil && o.Payment.Recurring {
			if err := u.subs.ActivateFromPayment(ctx, o.Payment); err != nil {
				return fmt.Errorf("activate subscription: %w", err)
			}
		}
		if err := u.dashboard.InvalidateUser(ctx, userID); err != nil {
			u.log.Warn().Err(err).Msg("dashboard invalidation failed")
		}
	case reconcile.OutcomeCanceled:
		if err := u.pending.Clear(ctx, userID); err != nil {
			u.log.Warn().Err(err).Msg("failed to clear pending payment id")
		}
	case reconcile.OutcomeTimedOut, reconcile.OutcomeErrorExhausted:
		// The payment may still land out-of-band; keep the resume key so the
		// next page load can pick polling back up.
	}
	return nil
}

func (u *paymentUC) HandleProviderEvent(ctx context.Context, event, providerID string) error {
	p, err := u.payments.FindByProviderID(ctx, providerID)
	if err != nil {
		return err
	}
	switch event {
	case "payment.succeeded", "payment.canceled":
		status := model.PaymentStatusSucceeded
		kind := reconcile.OutcomeSucceeded
		var paidAt *time.Time
		if event == "payment.succeeded" {
			now := time.Now()
			paidAt = &now
		} else {
			status = model.PaymentStatusCanceled
			kind = reconcile.OutcomeCanceled
		}
		updated, err := u.payments.UpdateStatusIfPending(ctx, p.ID, status, paidAt)
		if err != nil {
			return err
		}
		if !updated {
			// A polling session already landed this transition.
			return nil
		}
		metrics.IncPayment(string(status))
		if status == model.PaymentStatusSucceeded {
			metrics.AddPaymentRevenue(p.Currency, p.Amount)
		}
		p.Status = status
		p.PaidAt = paidAt
		u.log.Info().Str("payment_id", p.ID).Str("event", event).Msg("payment landed via webhook")
		return u.ApplyOutcome(ctx, p.UserID, reconcile.Outcome{Kind: kind, Payment: p})
	case "refund.succeeded":
		if err := u.payments.MarkRefunded(ctx, p.ID); err != nil {
			return err
		}
		if err := u.dashboard.InvalidateUser(ctx, p.UserID); err != nil {
			u.log.Warn().Err(err).Msg("dashboard invalidation failed")
		}
		u.log.Info().Str("payment_id", p.ID).Msg("payment refunded via webhook")
		return nil
	default:
		return domain.ErrInvalidArgument
	}
}

func (u *paymentUC) ListByUser(ctx context.Context, userID string) ([]*model.Payment, error) {
	return u.payments.ListByUser(ctx, userID)
}

func (u *paymentUC) SumByPeriod(ctx context.Context, period string) (int64, error) {
	return u.payments.SumByPeriod(ctx, period)
}
