package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tutoring-payment-service/internal/domain"
	"tutoring-payment-service/internal/domain/model"
	"tutoring-payment-service/internal/infra/logging"
)

type createPaymentRequest struct {
	EnrollmentID string `json:"enrollment_id"`
	Amount       int64  `json:"amount"` // minor units
	Currency     string `json:"currency"`
	Description  string `json:"description"`
	Recurring    bool   `json:"recurring"`
}

type createPaymentResponse struct {
	PaymentID       string `json:"payment_id"`
	ConfirmationURL string `json:"confirmation_url"`
	Status          string `json:"status"`
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	claims, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Currency == "" {
		req.Currency = "RUB"
	}

	p, confirmationURL, err := s.payUC.Create(r.Context(), claims.Subject, req.EnrollmentID, req.Amount, req.Currency, req.Description, req.Recurring)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.With(r.Context(), s.log).Error().Err(err).Msg("create payment failed")
		writeError(w, http.StatusBadGateway, "payment provider unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, createPaymentResponse{
		PaymentID:       p.ID,
		ConfirmationURL: confirmationURL,
		Status:          string(p.Status),
	})
}

// checkStatusResponse is the canonical status payload the dashboards poll.
type checkStatusResponse struct {
	PaymentID   string  `json:"payment_id"`
	Status      string  `json:"status"`    // provider vocabulary
	UIStatus    string  `json:"ui_status"` // dashboard vocabulary
	Amount      int64   `json:"amount"`
	Description string  `json:"description"`
	PaidAt      *string `json:"paid_at,omitempty"`
}

func (s *Server) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("payment_id")
	if paymentID == "" {
		writeError(w, http.StatusBadRequest, "payment_id is required")
		return
	}
	ctx := logging.WithPaymentID(r.Context(), paymentID)
	p, err := s.payUC.Check(ctx, paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "payment not found")
			return
		}
		logging.With(ctx, s.log).Error().Err(err).Msg("status check failed")
		writeError(w, http.StatusBadGateway, "status check failed")
		return
	}
	resp := checkStatusResponse{
		PaymentID:   p.ID,
		Status:      string(p.Status),
		UIStatus:    string(model.UIStatusOf(p, time.Now())),
		Amount:      p.Amount,
		Description: p.Description,
	}
	if p.PaidAt != nil {
		ts := p.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &ts
	}
	writeJSON(w, http.StatusOK, resp)
}

type paymentListItem struct {
	PaymentID   string `json:"payment_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	UIStatus    string `json:"ui_status"`
	CreatedAt   string `json:"created_at"`
}

const paymentsView = "payments"

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	claims, _ := userFrom(r.Context())
	if s.views != nil {
		var cached []paymentListItem
		if err := s.views.GetView(r.Context(), paymentsView, claims.Subject, &cached); err == nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}
	payments, err := s.payUC.ListByUser(r.Context(), claims.Subject)
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("list payments failed")
		writeError(w, http.StatusInternalServerError, "failed to list payments")
		return
	}
	now := time.Now()
	out := make([]paymentListItem, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentListItem{
			PaymentID:   p.ID,
			Amount:      p.Amount,
			Currency:    p.Currency,
			Description: p.Description,
			UIStatus:    string(model.UIStatusOf(p, now)),
			CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		})
	}
	if s.views != nil {
		if err := s.views.SetView(r.Context(), paymentsView, claims.Subject, out); err != nil {
			s.log.Debug().Err(err).Msg("payments view cache write failed")
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// providerEvent is the notification body the provider posts on payment and
// refund state changes.
type providerEvent struct {
	Event  string `json:"event"`
	Object struct {
		ID string `json:"id"`
	} `json:"object"`
}

func (s *Server) handleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	var ev providerEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.Event == "" || ev.Object.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid notification body")
		return
	}
	err := s.payUC.HandleProviderEvent(r.Context(), ev.Event, ev.Object.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown payment")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "unsupported event")
	case err != nil:
		logging.With(r.Context(), s.log).Error().Err(err).Str("event", ev.Event).Msg("webhook handling failed")
		// Non-2xx makes the provider redeliver later.
		writeError(w, http.StatusInternalServerError, "notification not applied")
	default:
		w.WriteHeader(http.StatusOK)
	}
}

var revenuePeriods = map[string]bool{"day": true, "week": true, "month": true, "year": true}

func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	claims, _ := userFrom(r.Context())
	if claims.Role != "admin" {
		writeError(w, http.StatusForbidden, "admin only")
		return
	}
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "month"
	}
	if !revenuePeriods[period] {
		writeError(w, http.StatusBadRequest, "period must be one of day|week|month|year")
		return
	}
	total, err := s.payUC.SumByPeriod(r.Context(), period)
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("revenue query failed")
		writeError(w, http.StatusInternalServerError, "revenue query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": period, "total_amount": total})
}

// handleResume tells a freshly reloaded page whether a reconciliation session
// should be restarted for a payment begun before the provider redirect.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	claims, _ := userFrom(r.Context())
	paymentID, err := s.payUC.Resume(r.Context(), claims.Subject)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"pending": false})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("resume lookup failed")
		writeError(w, http.StatusInternalServerError, "resume lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": true, "payment_id": paymentID})
}

func (s *Server) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := userFrom(r.Context())
	sub, err := s.subUC.Status(r.Context(), claims.Subject)
	if errors.Is(err, domain.ErrNoSubscription) {
		writeJSON(w, http.StatusOK, map[string]any{"has_subscription": false})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("subscription status failed")
		writeError(w, http.StatusInternalServerError, "subscription status failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"has_subscription": true,
		"status":           string(sub.Status),
		"has_access":       sub.HasAccess(time.Now()),
		"access_until":     sub.AccessUntil.Format(time.RFC3339),
	})
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	claims, _ := userFrom(r.Context())
	sub, err := s.subUC.Cancel(r.Context(), claims.Subject)
	if errors.Is(err, domain.ErrNoSubscription) {
		writeError(w, http.StatusNotFound, "no subscription")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("cancel subscription failed")
		writeError(w, http.StatusInternalServerError, "cancel failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       string(sub.Status),
		"access_until": sub.AccessUntil.Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
