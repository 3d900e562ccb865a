package restaurant

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/splitpay/internal/http/respond"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
	"github.com/MrJamesThe3rd/splitpay/internal/pos"
	"github.com/MrJamesThe3rd/splitpay/internal/restaurant"
)

type Handler struct {
	svc       *restaurant.Service
	importSvc *pos.Service
}

func NewHandler(svc *restaurant.Service, importSvc *pos.Service) *Handler {
	return &Handler{svc: svc, importSvc: importSvc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/imports", h.importBills)
}

type createRestaurantRequest struct {
	Name           string `json:"name"`
	Currency       string `json:"currency"`
	BankAccountRef string `json:"bank_account_ref"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRestaurantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rest, err := h.svc.Create(r.Context(), restaurant.CreateParams{
		Name:           req.Name,
		Currency:       req.Currency,
		BankAccountRef: req.BankAccountRef,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(rest))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rests, err := h.svc.List(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := make([]restaurantResponse, 0, len(rests))
	for _, rest := range rests {
		resp = append(resp, toResponse(rest))
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	rest, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(rest))
}

type importResponse struct {
	Imported int         `json:"imported"`
	Orders   []orderLine `json:"orders"`
	Error    string      `json:"error,omitempty"`
}

type orderLine struct {
	ID      string        `json:"id"`
	TableID string        `json:"table_id"`
	Total   respond.Money `json:"total"`
	Items   int           `json:"items"`
}

// importBills opens one order per bill found in an uploaded POS export.
func (h *Handler) importBills(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r, "id")
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	rest, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	orders, err := h.importSvc.Import(r.Context(), rest.ID, rest.Currency, file)
	if err != nil && len(orders) == 0 {
		respond.Error(w, r, err)
		return
	}

	resp := importResponse{Imported: len(orders), Orders: make([]orderLine, 0, len(orders))}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, toOrderLine(o))
	}

	if err != nil {
		// Some bills were opened before the failure; report both.
		resp.Error = err.Error()
		respond.JSON(w, respond.Status(err), resp)

		return
	}

	respond.JSON(w, http.StatusCreated, resp)
}

func toOrderLine(o *order.Order) orderLine {
	return orderLine{
		ID:      o.ID.String(),
		TableID: o.TableID,
		Total:   respond.FromMoney(o.Total),
		Items:   len(o.Items),
	}
}
