package api

import (
	"io"
	"net/http"

	"techcare/internal/models"
)

const maxWebhookBytes = 64 << 10

// POST /api/payments/intents
func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	var body struct {
		BookingID string `json:"booking_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.BookingID == "" {
		writeError(w, http.StatusBadRequest, "booking_id is required")
		return
	}
	intent, err := s.svc.Payments.CreateIntent(r.Context(), actor, body.BookingID)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Payment intent created", intent)
}

// POST /api/payments/confirm
func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	var body struct {
		BookingID       string `json:"booking_id"`
		PaymentIntentID string `json:"payment_intent_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.BookingID == "" || body.PaymentIntentID == "" {
		writeError(w, http.StatusBadRequest, "booking_id and payment_intent_id are required")
		return
	}
	b, err := s.svc.Payments.Confirm(r.Context(), actor, body.BookingID, body.PaymentIntentID)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Payment confirmed", b)
}

// POST /api/payments/webhook
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if err := s.svc.Payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]bool{"received": true})
}
