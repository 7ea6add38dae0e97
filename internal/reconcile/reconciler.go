// Package reconcile drives the asynchronous payment-confirmation protocol:
// after a user is sent to the external provider, a session polls the payment
// status under a bounded retry budget until a terminal outcome is reached.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"tutoring-payment-service/internal/domain"
	"tutoring-payment-service/internal/domain/model"
	"tutoring-payment-service/internal/infra/metrics"
)

const (
	DefaultInterval    = 3 * time.Second
	DefaultMaxAttempts = 40
	defaultErrorBudget = 3
)

// StatusChecker reads the current state of one payment. Both the gateway-backed
// use case and the HTTP status client satisfy it.
type StatusChecker interface {
	Check(ctx context.Context, paymentID string) (*model.Payment, error)
}

type OutcomeKind string

const (
	OutcomeSucceeded      OutcomeKind = "succeeded"
	OutcomeCanceled       OutcomeKind = "canceled"
	OutcomeTimedOut       OutcomeKind = "timed_out"
	OutcomeErrorExhausted OutcomeKind = "error_exhausted"
)

// Outcome is the terminal result of a session. Payment is set for succeeded
// and canceled, where the last status read carries the provider's final word.
type Outcome struct {
	Kind    OutcomeKind
	Payment *model.Payment
}

// Options tunes a single session. Callbacks are invoked from the session
// goroutine; nil callbacks are skipped.
type Options struct {
	Interval    time.Duration // delay between checks; the first check is immediate
	MaxAttempts int           // pending checks before giving up with OutcomeTimedOut
	ErrorBudget int           // consecutive failed checks before OutcomeErrorExhausted

	OnStatusChange func(model.UIStatus)
	OnTerminal     func(Outcome)
	OnError        func(error)
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.ErrorBudget <= 0 {
		o.ErrorBudget = defaultErrorBudget
	}
	return o
}

// Reconciler starts and tracks sessions. At most one session is live per
// payment id per Reconciler; sessions for different payments are independent.
type Reconciler struct {
	checker StatusChecker
	log     *zerolog.Logger

	mu     sync.Mutex
	active map[string]*Handle
}

func New(checker StatusChecker, logger *zerolog.Logger) *Reconciler {
	recLog := logger.With().Str("component", "PaymentReconciler").Logger()
	return &Reconciler{
		checker: checker,
		log:     &recLog,
		active:  make(map[string]*Handle),
	}
}

// Start begins polling for paymentID. The first check is issued immediately,
// subsequent checks are strictly sequential with Options.Interval between them.
func (r *Reconciler) Start(ctx context.Context, paymentID string, opts Options) (*Handle, error) {
	if paymentID == "" {
		return nil, domain.ErrMissingPaymentID
	}
	opts = opts.withDefaults()

	r.mu.Lock()
	if _, busy := r.active[paymentID]; busy {
		r.mu.Unlock()
		return nil, domain.ErrSessionActive
	}
	sessLog := r.log.With().
		Str("session_id", ulid.Make().String()).
		Str("payment_id", paymentID).
		Logger()
	h := &Handle{
		paymentID: paymentID,
		opts:      opts,
		checker:   r.checker,
		log:       &sessLog,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	h.release = func() { r.releaseSession(paymentID, h) }
	r.active[paymentID] = h
	r.mu.Unlock()

	go h.run(ctx)
	return h, nil
}

func (r *Reconciler) releaseSession(paymentID string, h *Handle) {
	r.mu.Lock()
	if r.active[paymentID] == h {
		delete(r.active, paymentID)
	}
	r.mu.Unlock()
}

// Handle is the caller's grip on one running session.
type Handle struct {
	paymentID string
	opts      Options
	checker   StatusChecker
	log       *zerolog.Logger

	quit       chan struct{}
	done       chan struct{}
	cancelOnce sync.Once
	release    func()
}

// Cancel stops the session immediately. Idempotent and a no-op once the
// session has already reached a terminal outcome. Any in-flight check result
// arriving afterwards is discarded, never delivered.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() { close(h.quit) })
}

// Done is closed when the session goroutine has fully stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) run(ctx context.Context) {
	defer close(h.done)
	defer h.release()

	timer := time.NewTimer(0) // fire the first check without waiting an interval
	defer timer.Stop()

	attempts := 0
	consecErrs := 0
	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Msg("session aborted: context done")
			metrics.IncReconcileSession("aborted")
			return
		case <-h.quit:
			h.log.Debug().Msg("session canceled by caller")
			metrics.IncReconcileSession("aborted")
			return
		case <-timer.C:
		}

		start := time.Now()
		p, err := h.checker.Check(ctx, h.paymentID)
		metrics.ObserveReconcilePoll(time.Since(start).Seconds())

		if h.stopped(ctx) {
			// Canceled while the check was in flight; the stale result must
			// not reach the caller.
			metrics.IncReconcileSession("aborted")
			return
		}

		if err != nil {
			metrics.IncReconcilePoll("error")
			consecErrs++
			h.log.Warn().Err(err).Int("consecutive_errors", consecErrs).Msg("status check failed")
			h.emitError(err)
			if consecErrs >= h.opts.ErrorBudget {
				h.terminal(Outcome{Kind: OutcomeErrorExhausted})
				return
			}
			timer.Reset(h.opts.Interval)
			continue
		}
		metrics.IncReconcilePoll("ok")
		consecErrs = 0

		switch p.Status {
		case model.PaymentStatusSucceeded:
			h.emitStatus(model.UIStatusPaid)
			h.terminal(Outcome{Kind: OutcomeSucceeded, Payment: p})
			return
		case model.PaymentStatusCanceled:
			// Revert the UI to the pre-payment state so the user can retry.
			h.emitStatus(model.UIStatusPending)
			h.terminal(Outcome{Kind: OutcomeCanceled, Payment: p})
			return
		default: // pending | waiting_for_capture
			h.emitStatus(model.MapToUI(p.Status))
			attempts++
			if attempts >= h.opts.MaxAttempts {
				// Not an error: the payment may still land out-of-band via
				// the provider webhook after polling gives up.
				h.terminal(Outcome{Kind: OutcomeTimedOut})
				return
			}
			timer.Reset(h.opts.Interval)
		}
	}
}

func (h *Handle) stopped(ctx context.Context) bool {
	select {
	case <-h.quit:
		return true
	default:
	}
	return ctx.Err() != nil
}

func (h *Handle) terminal(o Outcome) {
	h.log.Info().Str("outcome", string(o.Kind)).Msg("session finished")
	metrics.IncReconcileSession(string(o.Kind))
	if h.opts.OnTerminal != nil {
		h.safeEmit(func() { h.opts.OnTerminal(o) })
	}
}

func (h *Handle) emitStatus(s model.UIStatus) {
	if h.opts.OnStatusChange != nil {
		h.safeEmit(func() { h.opts.OnStatusChange(s) })
	}
}

func (h *Handle) emitError(err error) {
	if h.opts.OnError != nil {
		h.safeEmit(func() { h.opts.OnError(err) })
	}
}

// safeEmit keeps a panicking caller callback from killing the session goroutine.
func (h *Handle) safeEmit(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error().Interface("panic", rec).Msg("callback panicked")
		}
	}()
	fn()
}
