package payout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/splitpay/internal/http/respond"
	"github.com/MrJamesThe3rd/splitpay/internal/payout"
	"github.com/MrJamesThe3rd/splitpay/internal/statement"
)

type Handler struct {
	aggregator *payout.Aggregator
	statements *statement.Service
}

func NewHandler(aggregator *payout.Aggregator, statements *statement.Service) *Handler {
	return &Handler{aggregator: aggregator, statements: statements}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/{id}", h.get)
	r.Get("/{id}/payments", h.payments)
	r.Get("/{id}/statement", h.statement)
	r.Get("/{id}/remittance", h.remittance)
	r.Patch("/{id}/status", h.updateStatus)
}

// RestaurantRoutes hangs payout history, balance and settlement runs under
// /restaurants/{id}.
func (h *Handler) RestaurantRoutes(r chi.Router) {
	r.Get("/{id}/payouts", h.history)
	r.Get("/{id}/balance", h.balance)
	r.Post("/{id}/settlements", h.settle)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	p, err := h.aggregator.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) payments(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	payments, err := h.aggregator.Payments(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := make([]paymentLine, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, toPaymentLine(p))
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer

	p, err := h.statements.WriteTo(r.Context(), id, &buf)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", statement.Filename(p)))

	if _, err := buf.WriteTo(w); err != nil {
		respond.Error(w, r, fmt.Errorf("writing statement: %w", err))
	}
}

func (h *Handler) remittance(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	p, err := h.aggregator.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	payments, err := h.aggregator.Payments(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(statement.RemittanceText(p, payments)))
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status, err := payout.ParseStatus(req.Status)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	p, err := h.aggregator.Mark(r.Context(), id, status, req.Reason)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	payouts, err := h.aggregator.History(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := make([]payoutResponse, 0, len(payouts))
	for _, p := range payouts {
		resp = append(resp, toResponse(p))
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	b, err := h.aggregator.Balance(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toBalanceResponse(b))
}

type settleRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// settle runs a settlement for one restaurant. A period with nothing to settle
// answers 204.
func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := h.aggregator.RunSettlement(r.Context(), id, payout.Period{From: req.From, To: req.To})
	if errors.Is(err, payout.ErrEmptyPeriod) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(p))
}
