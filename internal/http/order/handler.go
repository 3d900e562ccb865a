package order

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/http/respond"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/split"
)

type Handler struct {
	orders    *order.Service
	sessions  *split.Service
	processor *payment.Processor
}

func NewHandler(orders *order.Service, sessions *split.Service, processor *payment.Processor) *Handler {
	return &Handler{orders: orders, sessions: sessions, processor: processor}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.summary)
	r.Post("/{id}/close", h.close)
	r.Get("/{id}/session", h.activeSession)
	r.Post("/{id}/sessions", h.openSession)
}

type itemRequest struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	RestaurantID uuid.UUID     `json:"restaurant_id"`
	TableID      string        `json:"table_id"`
	Currency     string        `json:"currency"`
	Total        *int64        `json:"total,omitempty"`
	Items        []itemRequest `json:"items"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	items := make([]order.ItemParams, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.ItemParams{Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}

	o, err := h.orders.Create(r.Context(), order.CreateParams{
		RestaurantID: req.RestaurantID,
		TableID:      req.TableID,
		Currency:     req.Currency,
		Total:        req.Total,
		Items:        items,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := order.ListFilter{TableID: r.URL.Query().Get("table_id")}

	if s := r.URL.Query().Get("restaurant_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "invalid restaurant_id", http.StatusBadRequest)
			return
		}

		filter.RestaurantID = &id
	}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(order.Status(s))
	}

	orders, err := h.orders.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}

	respond.JSON(w, http.StatusOK, resp)
}

// summary is the dashboard view of an order: ledger state, payments and the
// active split session.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	s, err := h.processor.Summary(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toSummaryResponse(s))
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	o, err := h.orders.Close(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) activeSession(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Active(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.writeSession(w, r, http.StatusOK, sess)
}

type openSessionRequest struct {
	Kind   split.Kind `json:"kind"`
	People int        `json:"people,omitempty"`
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Open(r.Context(), split.OpenParams{OrderID: id, Kind: req.Kind, People: req.People})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.writeSession(w, r, http.StatusCreated, sess)
}
