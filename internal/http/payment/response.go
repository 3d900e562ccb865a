package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/http/respond"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/refund"
)

type paymentResponse struct {
	ID             uuid.UUID      `json:"id"`
	TransactionID  string         `json:"transaction_id"`
	OrderID        uuid.UUID      `json:"order_id"`
	RestaurantID   uuid.UUID      `json:"restaurant_id"`
	SplitSessionID *uuid.UUID     `json:"split_session_id,omitempty"`
	GuestRef       string         `json:"guest_ref,omitempty"`
	Principal      respond.Money  `json:"principal"`
	Tip            respond.Money  `json:"tip"`
	Fee            respond.Money  `json:"fee"`
	Net            respond.Money  `json:"net"`
	Method         string         `json:"method"`
	Status         payment.Status `json:"status"`
	FailureReason  string         `json:"failure_reason,omitempty"`
	PayoutID       *uuid.UUID     `json:"payout_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	RefundedAt     *time.Time     `json:"refunded_at,omitempty"`
}

func toResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		ID:             p.ID,
		TransactionID:  p.TransactionID,
		OrderID:        p.OrderID,
		RestaurantID:   p.RestaurantID,
		SplitSessionID: p.SplitSessionID,
		GuestRef:       p.GuestRef,
		Principal:      respond.FromMoney(p.Principal),
		Tip:            respond.FromMoney(p.Tip),
		Fee:            respond.FromMoney(p.Fee),
		Net:            respond.FromMoney(p.Net()),
		Method:         p.Method,
		Status:         p.Status,
		FailureReason:  p.FailureReason,
		PayoutID:       p.PayoutID,
		CreatedAt:      p.CreatedAt,
		CompletedAt:    p.CompletedAt,
		RefundedAt:     p.RefundedAt,
	}
}

type refundResponse struct {
	ID            uuid.UUID     `json:"id"`
	PaymentID     uuid.UUID     `json:"payment_id"`
	TransactionID string        `json:"transaction_id"`
	OrderID       uuid.UUID     `json:"order_id"`
	Amount        respond.Money `json:"amount"`
	Reason        string        `json:"reason"`
	Status        refund.Status `json:"status"`
	Attempts      int           `json:"attempts"`
	LastError     string        `json:"last_error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	SentAt        *time.Time    `json:"sent_at,omitempty"`
}

func toRefundResponse(c *refund.Command) refundResponse {
	return refundResponse{
		ID:            c.ID,
		PaymentID:     c.PaymentID,
		TransactionID: c.TransactionID,
		OrderID:       c.OrderID,
		Amount:        respond.FromMoney(c.Amount),
		Reason:        c.Reason,
		Status:        c.Status,
		Attempts:      c.Attempts,
		LastError:     c.LastError,
		CreatedAt:     c.CreatedAt,
		SentAt:        c.SentAt,
	}
}
