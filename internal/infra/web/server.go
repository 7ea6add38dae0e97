package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tutoring-payment-service/internal/infra/logging"
	"tutoring-payment-service/internal/usecase"
)

// ViewCache serves and stores rendered dashboard views per user. A nil cache
// disables view caching; invalidation stays with the use case layer.
type ViewCache interface {
	GetView(ctx context.Context, view, userID string, out any) error
	SetView(ctx context.Context, view, userID string, payload any) error
}

// Server exposes the payment API: creating payments, the canonical
// status-check endpoint the dashboards poll, the provider webhook, and
// subscription management.
type Server struct {
	payUC usecase.PaymentUseCase
	subUC usecase.SubscriptionUseCase
	auth  *AuthManager
	views ViewCache
	log   *zerolog.Logger
}

func NewServer(payUC usecase.PaymentUseCase, subUC usecase.SubscriptionUseCase, auth *AuthManager, views ViewCache, logger *zerolog.Logger) *Server {
	srvLog := logger.With().Str("component", "WebServer").Logger()
	return &Server{payUC: payUC, subUC: subUC, auth: auth, views: views, log: &srvLog}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.traceMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Provider notifications are authenticated upstream (IP allowlist at the
	// edge), not with user tokens.
	r.Post("/webhooks/yookassa", s.handleProviderWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Canonical status endpoint. The legacy /api/check-payment/ variant
		// was retired when the polling loops were unified.
		r.Get("/payments/check-payment-status/", s.handleCheckStatus)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/payments", s.handleCreatePayment)
			r.Get("/payments", s.handleListPayments)
			r.Get("/payments/resume", s.handleResume)
			r.Get("/subscriptions/status", s.handleSubscriptionStatus)
			r.Post("/subscriptions/cancel", s.handleCancelSubscription)
			r.Get("/admin/revenue", s.handleRevenue)
		})
	})
	return r
}

func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithTraceID(r.Context(), ulid.Make().String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := logging.WithUserID(withUser(r.Context(), claims), claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
