package order

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/http/respond"
	"github.com/MrJamesThe3rd/splitpay/internal/split"
)

// SessionRoutes serves split sessions by their own id.
func (h *Handler) SessionRoutes(r chi.Router) {
	r.Get("/{id}", h.getSession)
	r.Put("/{id}/assignments", h.assignItem)
	r.Post("/{id}/shares", h.recordShare)
	r.Get("/{id}/guests/{guest}/due", h.guestDue)
	r.Post("/{id}/close", h.closeSession)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.writeSession(w, r, http.StatusOK, sess)
}

type assignItemRequest struct {
	ItemID uuid.UUID `json:"item_id"`
	Guest  string    `json:"guest"`
}

func (h *Handler) assignItem(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req assignItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.AssignItem(r.Context(), id, req.ItemID, req.Guest)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.writeSession(w, r, http.StatusOK, sess)
}

type recordShareRequest struct {
	Guest  string `json:"guest"`
	Amount int64  `json:"amount"`
}

func (h *Handler) recordShare(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req recordShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.RecordGuestShare(r.Context(), id, req.Guest, req.Amount)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.writeSession(w, r, http.StatusOK, sess)
}

// guestDue tells a guest how much to pay before they are sent to the provider.
func (h *Handler) guestDue(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	guest := chi.URLParam(r, "guest")

	sess, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	o, err := h.orders.Get(r.Context(), sess.OrderID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	due, err := split.Due(*sess, *o, guest)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	outstanding, err := split.Outstanding(*sess, *o, guest)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, dueResponse{
		Guest:       guest,
		Due:         respond.FromMoney(due),
		PaidSoFar:   respond.FromMoney(sess.PaidBy(guest)),
		Outstanding: respond.FromMoney(outstanding),
		Paid:        sess.Paid[guest],
	})
}

// writeSession renders sess against the current state of its order.
func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request, status int, sess *split.Session) {
	o, err := h.orders.Get(r.Context(), sess.OrderID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, status, toSessionResponse(sess, o))
}

type closeSessionRequest struct {
	Abandon bool `json:"abandon"`
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req closeSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	sess, err := h.sessions.Close(r.Context(), id, req.Abandon)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.writeSession(w, r, http.StatusOK, sess)
}
