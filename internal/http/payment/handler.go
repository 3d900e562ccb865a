package payment

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/http/respond"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/refund"
)

type Handler struct {
	processor *payment.Processor
	relay     *refund.Relay
}

func NewHandler(processor *payment.Processor, relay *refund.Relay) *Handler {
	return &Handler{processor: processor, relay: relay}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/refund", h.refund)
}

// RefundRoutes serves the refund outbox.
func (h *Handler) RefundRoutes(r chi.Router) {
	r.Get("/", h.listRefunds)
	r.Post("/flush", h.flushRefunds)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var filter payment.Filter

	q := r.URL.Query()

	for key, dst := range map[string]**uuid.UUID{
		"order_id":      &filter.OrderID,
		"restaurant_id": &filter.RestaurantID,
	} {
		if s := q.Get(key); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				http.Error(w, "invalid "+key, http.StatusBadRequest)
				return
			}

			*dst = &id
		}
	}

	if s := q.Get("status"); s != "" {
		filter.Status = new(payment.Status(s))
	}

	if s := q.Get("start_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			filter.From = new(t)
		}
	}

	if s := q.Get("end_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			filter.To = new(t.AddDate(0, 0, 1))
		}
	}

	payments, err := h.processor.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, toResponse(p))
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	p, err := h.processor.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(p))
}

type refundRequest struct {
	IncludeTip bool `json:"include_tip"`
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req refundRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	res, err := h.processor.Refund(r.Context(), id, payment.RefundPolicy{Tip: req.IncludeTip})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(res.Payment))
}

func (h *Handler) listRefunds(w http.ResponseWriter, r *http.Request) {
	var status *refund.Status
	if s := r.URL.Query().Get("status"); s != "" {
		status = new(refund.Status(s))
	}

	cmds, err := h.relay.List(r.Context(), status)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := make([]refundResponse, 0, len(cmds))
	for _, c := range cmds {
		resp = append(resp, toRefundResponse(c))
	}

	respond.JSON(w, http.StatusOK, resp)
}

type flushResponse struct {
	Sent     int `json:"sent"`
	Retrying int `json:"retrying"`
	GaveUp   int `json:"gave_up"`
}

func (h *Handler) flushRefunds(w http.ResponseWriter, r *http.Request) {
	report, err := h.relay.Flush(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, flushResponse{Sent: report.Sent, Retrying: report.Retrying, GaveUp: report.GaveUp})
}
