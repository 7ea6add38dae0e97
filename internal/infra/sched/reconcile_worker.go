package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tutoring-payment-service/internal/config"
	"tutoring-payment-service/internal/domain"
	"tutoring-payment-service/internal/domain/model"
	"tutoring-payment-service/internal/domain/ports/repository"
	"tutoring-payment-service/internal/infra/worker"
	"tutoring-payment-service/internal/reconcile"
	"tutoring-payment-service/internal/usecase"
)

// ReconcileWorker periodically scans for stale pending payments and runs a
// bounded reconciliation session for each. This covers payments whose
// dashboard session died mid-flight: browser closed, process crashed, or the
// user never returned from the provider redirect.
type ReconcileWorker struct {
	payments   repository.PaymentRepository
	payUC      usecase.PaymentUseCase
	reconciler *reconcile.Reconciler
	pool       *worker.Pool

	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending payment must be to retry
	session    reconcile.Options
	log        *zerolog.Logger
}

func NewReconcileWorker(
	payments repository.PaymentRepository,
	payUC usecase.PaymentUseCase,
	reconciler *reconcile.Reconciler,
	pool *worker.Pool,
	cfg config.ReconcilerConfig,
	logger *zerolog.Logger,
) *ReconcileWorker {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	wLog := logger.With().Str("component", "ReconcileWorker").Logger()
	return &ReconcileWorker{
		payments:   payments,
		payUC:      payUC,
		reconciler: reconciler,
		pool:       pool,
		interval:   cfg.SweepInterval,
		staleAfter: cfg.StaleAfter,
		session: reconcile.Options{
			Interval:    cfg.Interval,
			MaxAttempts: cfg.MaxAttempts,
			ErrorBudget: cfg.ErrorBudget,
		},
		log: &wLog,
	}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting reconcile sweep")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping reconcile sweep")
			return ctx.Err()
		case <-t.C:
			w.sweep(ctx)
		}
	}
}

func (w *ReconcileWorker) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.payments.ListPendingOlderThan(ctx, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale pending payments failed")
		return
	}
	for _, p := range stale {
		p := p
		if err := w.pool.Submit(func(taskCtx context.Context) error {
			return w.reconcileOne(taskCtx, p)
		}); err != nil {
			w.log.Warn().Err(err).Str("payment_id", p.ID).Msg("sweep submit failed")
		}
	}
	if len(stale) > 0 {
		w.log.Info().Int("count", len(stale)).Msg("stale pending payments queued")
	}
}

func (w *ReconcileWorker) reconcileOne(ctx context.Context, p *model.Payment) error {
	opts := w.session
	opts.OnTerminal = func(o reconcile.Outcome) {
		if err := w.payUC.ApplyOutcome(ctx, p.UserID, o); err != nil {
			w.log.Error().Err(err).Str("payment_id", p.ID).Msg("apply outcome failed")
		}
		if o.Kind == reconcile.OutcomeSucceeded {
			w.log.Info().Str("payment_id", p.ID).Msg("stale payment reconciled")
		}
	}
	h, err := w.reconciler.Start(ctx, p.ID, opts)
	if errors.Is(err, domain.ErrSessionActive) {
		return nil // a live dashboard session owns this payment
	}
	if err != nil {
		return err
	}
	<-h.Done()
	return nil
}
