package order

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/http/respond"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/split"
)

type itemResponse struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	UnitPrice respond.Money `json:"unit_price"`
	Quantity  int           `json:"quantity"`
	Paid      bool          `json:"paid"`
}

type orderResponse struct {
	ID           uuid.UUID      `json:"id"`
	RestaurantID uuid.UUID      `json:"restaurant_id"`
	TableID      string         `json:"table_id"`
	Total        respond.Money  `json:"total"`
	Paid         respond.Money  `json:"paid"`
	Remaining    respond.Money  `json:"remaining"`
	Status       order.Status   `json:"status"`
	Items        []itemResponse `json:"items"`
	Version      int64          `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
}

type paymentLine struct {
	ID            uuid.UUID      `json:"id"`
	GuestRef      string         `json:"guest_ref,omitempty"`
	Principal     respond.Money  `json:"principal"`
	Tip           respond.Money  `json:"tip"`
	Status        payment.Status `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type summaryResponse struct {
	Order    orderResponse    `json:"order"`
	Progress string           `json:"progress"`
	Tips     respond.Money    `json:"tips"`
	Fees     respond.Money    `json:"fees"`
	Payments []paymentLine    `json:"payments"`
	Session  *sessionResponse `json:"session,omitempty"`
}

type allocationResponse struct {
	Guest  string        `json:"guest"`
	Amount respond.Money `json:"amount"`
}

type sessionResponse struct {
	ID            uuid.UUID                `json:"id"`
	OrderID       uuid.UUID                `json:"order_id"`
	Kind          split.Kind               `json:"kind"`
	Base          respond.Money            `json:"base"`
	Active        bool                     `json:"active"`
	People        int                      `json:"people,omitempty"`
	Assignments   map[string]string        `json:"assignments,omitempty"`
	Allocations   []allocationResponse     `json:"allocations,omitempty"`
	PlannedShares []respond.Money          `json:"planned_shares,omitempty"`
	PaidGuests    []string                 `json:"paid_guests"`
	Contributions map[string]respond.Money `json:"contributions,omitempty"`
	Version       int64                    `json:"version"`
	CreatedAt     time.Time                `json:"created_at"`
	ClosedAt      *time.Time               `json:"closed_at,omitempty"`
}

type dueResponse struct {
	Guest       string        `json:"guest"`
	Due         respond.Money `json:"due"`
	PaidSoFar   respond.Money `json:"paid_so_far"`
	Outstanding respond.Money `json:"outstanding"`
	Paid        bool          `json:"paid"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]itemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemResponse{
			ID:        it.ID,
			Name:      it.Name,
			UnitPrice: respond.FromMoney(it.UnitPrice),
			Quantity:  it.Quantity,
			Paid:      it.Paid,
		})
	}

	return orderResponse{
		ID:           o.ID,
		RestaurantID: o.RestaurantID,
		TableID:      o.TableID,
		Total:        respond.FromMoney(o.Total),
		Paid:         respond.FromMoney(order.Paid(*o)),
		Remaining:    respond.FromMoney(order.Remaining(*o)),
		Status:       o.Status,
		Items:        items,
		Version:      o.Version,
		CreatedAt:    o.CreatedAt,
		ClosedAt:     o.ClosedAt,
	}
}

func toSummaryResponse(s *payment.Summary) summaryResponse {
	payments := make([]paymentLine, 0, len(s.Payments))
	for _, p := range s.Payments {
		payments = append(payments, paymentLine{
			ID:            p.ID,
			GuestRef:      p.GuestRef,
			Principal:     respond.FromMoney(p.Principal),
			Tip:           respond.FromMoney(p.Tip),
			Status:        p.Status,
			FailureReason: p.FailureReason,
			CreatedAt:     p.CreatedAt,
		})
	}

	resp := summaryResponse{
		Order:    toOrderResponse(s.Order),
		Progress: s.Progress.String(),
		Tips:     respond.FromMoney(s.Tips),
		Fees:     respond.FromMoney(s.Fees),
		Payments: payments,
	}

	if s.Session != nil {
		sess := toSessionResponse(s.Session, s.Order)
		resp.Session = &sess
	}

	return resp
}

func toSessionResponse(s *split.Session, o *order.Order) sessionResponse {
	resp := sessionResponse{
		ID:         s.ID,
		OrderID:    s.OrderID,
		Kind:       s.Mode.Kind(),
		Base:       respond.FromMoney(s.Base),
		Active:     s.Active,
		PaidGuests: make([]string, 0, len(s.Paid)),
		Version:    s.Version,
		CreatedAt:  s.CreatedAt,
		ClosedAt:   s.ClosedAt,
	}

	for guest, paid := range s.Paid {
		if paid {
			resp.PaidGuests = append(resp.PaidGuests, guest)
		}
	}

	slices.Sort(resp.PaidGuests)

	switch m := s.Mode.(type) {
	case split.ItemsMode:
		resp.Assignments = make(map[string]string, len(m.Assignments))
		for itemID, guest := range m.Assignments {
			resp.Assignments[itemID.String()] = guest
		}
	case split.EqualMode:
		resp.People = m.People
	}

	for _, a := range s.Allocations() {
		resp.Allocations = append(resp.Allocations, allocationResponse{Guest: a.Guest, Amount: respond.FromMoney(a.Amount)})
	}

	for guest, paid := range s.Contributed {
		if resp.Contributions == nil {
			resp.Contributions = make(map[string]respond.Money, len(s.Contributed))
		}

		resp.Contributions[guest] = respond.FromMoney(paid)
	}

	for _, share := range split.PlannedShares(*s, *o) {
		resp.PlannedShares = append(resp.PlannedShares, respond.FromMoney(share))
	}

	return resp
}
