// Package webhook receives signed callbacks from the payment provider.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/http/respond"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/payout"
)

const maxBodyBytes = 1 << 20

//go:generate mockgen -source=handler.go -destination=handler_mock.go -package=webhook

type PaymentIngester interface {
	Ingest(ctx context.Context, ev payment.ProviderEvent) (*payment.Result, error)
}

type PayoutMarker interface {
	Mark(ctx context.Context, id uuid.UUID, status payout.Status, reason string) (*payout.Payout, error)
}

type Handler struct {
	verifier *Verifier
	payments PaymentIngester
	payouts  PayoutMarker
}

func NewHandler(verifier *Verifier, payments PaymentIngester, payouts PayoutMarker) *Handler {
	return &Handler{verifier: verifier, payments: payments, payouts: payouts}
}

func (h *Handler) Routes(r chi.Router) {
	r.Use(h.verify)
	r.Post("/payments", h.payment)
	r.Post("/payouts", h.payout)
}

// verify rejects requests whose signature does not cover the body, then puts
// the body back for the handler.
func (h *Handler) verify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		if err := h.verifier.Verify(r.Header.Get(SignatureHeader), body); err != nil {
			slog.Warn("webhook signature rejected", "path", r.URL.Path, "error", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)

			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

type paymentEvent struct {
	TransactionID string     `json:"transaction_id"`
	OrderID       uuid.UUID  `json:"order_id"`
	SessionID     *uuid.UUID `json:"session_id,omitempty"`
	GuestRef      string     `json:"guest_ref,omitempty"`
	Principal     int64      `json:"principal"`
	Tip           int64      `json:"tip"`
	Fee           *int64     `json:"fee,omitempty"`
	Currency      string     `json:"currency"`
	Method        string     `json:"method"`
	Outcome       string     `json:"outcome"`
	FailureReason string     `json:"failure_reason,omitempty"`
}

type paymentAck struct {
	PaymentID     uuid.UUID      `json:"payment_id"`
	Status        payment.Status `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`
	Replayed      bool           `json:"replayed"`
}

// payment acknowledges every event it has durably recorded, including
// charges the order could not take: those are failed with a queued refund and
// must not be redelivered.
func (h *Handler) payment(w http.ResponseWriter, r *http.Request) {
	var ev paymentEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.payments.Ingest(r.Context(), payment.ProviderEvent{
		TransactionID: ev.TransactionID,
		OrderID:       ev.OrderID,
		SessionID:     ev.SessionID,
		GuestRef:      ev.GuestRef,
		Principal:     ev.Principal,
		Tip:           ev.Tip,
		Fee:           ev.Fee,
		Currency:      ev.Currency,
		Method:        ev.Method,
		Outcome:       payment.Outcome(ev.Outcome),
		FailureReason: ev.FailureReason,
	})
	if err != nil && (res == nil || res.Payment == nil) {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, paymentAck{
		PaymentID:     res.Payment.ID,
		Status:        res.Payment.Status,
		FailureReason: res.Payment.FailureReason,
		Replayed:      res.Replayed,
	})
}

type payoutEvent struct {
	PayoutID uuid.UUID `json:"payout_id"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
}

type payoutAck struct {
	PayoutID uuid.UUID     `json:"payout_id"`
	Status   payout.Status `json:"status"`
}

func (h *Handler) payout(w http.ResponseWriter, r *http.Request) {
	var ev payoutEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status, err := payout.ParseStatus(ev.Status)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	p, err := h.payouts.Mark(r.Context(), ev.PayoutID, status, ev.Reason)
	if err != nil {
		if errors.Is(err, payout.ErrIllegalTransition) {
			slog.Warn("payout webhook out of order", "payout_id", ev.PayoutID, "status", status, "error", err)
		}

		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusOK, payoutAck{PayoutID: p.ID, Status: p.Status})
}
