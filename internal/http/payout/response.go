package payout

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/http/respond"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/payout"
)

type payoutResponse struct {
	ID             uuid.UUID     `json:"id"`
	RestaurantID   uuid.UUID     `json:"restaurant_id"`
	PeriodFrom     time.Time     `json:"period_from"`
	PeriodTo       time.Time     `json:"period_to"`
	Gross          respond.Money `json:"gross"`
	TotalTips      respond.Money `json:"total_tips"`
	TotalFees      respond.Money `json:"total_fees"`
	Amount         respond.Money `json:"amount"`
	PaymentCount   int           `json:"payment_count"`
	Status         payout.Status `json:"status"`
	FailureReason  string        `json:"failure_reason,omitempty"`
	BankAccountRef string        `json:"bank_account_ref"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type paymentLine struct {
	ID            uuid.UUID     `json:"id"`
	TransactionID string        `json:"transaction_id"`
	OrderID       uuid.UUID     `json:"order_id"`
	Principal     respond.Money `json:"principal"`
	Tip           respond.Money `json:"tip"`
	Fee           respond.Money `json:"fee"`
	Net           respond.Money `json:"net"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

type totalsResponse struct {
	Gross respond.Money `json:"gross"`
	Tips  respond.Money `json:"tips"`
	Fees  respond.Money `json:"fees"`
	Net   respond.Money `json:"net"`
	Count int           `json:"count"`
}

type balanceResponse struct {
	RestaurantID uuid.UUID      `json:"restaurant_id"`
	Unsettled    totalsResponse `json:"unsettled"`
	Pending      respond.Money  `json:"pending"`
	InTransit    respond.Money  `json:"in_transit"`
	PaidOut      respond.Money  `json:"paid_out"`
	Failed       respond.Money  `json:"failed"`
}

func toResponse(p *payout.Payout) payoutResponse {
	return payoutResponse{
		ID:             p.ID,
		RestaurantID:   p.RestaurantID,
		PeriodFrom:     p.Period.From,
		PeriodTo:       p.Period.To,
		Gross:          respond.FromMoney(p.Gross),
		TotalTips:      respond.FromMoney(p.TotalTips),
		TotalFees:      respond.FromMoney(p.TotalFees),
		Amount:         respond.FromMoney(p.Amount),
		PaymentCount:   p.PaymentCount,
		Status:         p.Status,
		FailureReason:  p.FailureReason,
		BankAccountRef: p.BankAccountRef,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func toPaymentLine(p *payment.Payment) paymentLine {
	return paymentLine{
		ID:            p.ID,
		TransactionID: p.TransactionID,
		OrderID:       p.OrderID,
		Principal:     respond.FromMoney(p.Principal),
		Tip:           respond.FromMoney(p.Tip),
		Fee:           respond.FromMoney(p.Fee),
		Net:           respond.FromMoney(p.Net()),
		CompletedAt:   p.CompletedAt,
	}
}

func toBalanceResponse(b *payout.Balance) balanceResponse {
	return balanceResponse{
		RestaurantID: b.RestaurantID,
		Unsettled: totalsResponse{
			Gross: respond.FromMoney(b.Unsettled.Gross),
			Tips:  respond.FromMoney(b.Unsettled.Tips),
			Fees:  respond.FromMoney(b.Unsettled.Fees),
			Net:   respond.FromMoney(b.Unsettled.Net),
			Count: b.Unsettled.Count,
		},
		Pending:   respond.FromMoney(b.Pending),
		InTransit: respond.FromMoney(b.InTransit),
		PaidOut:   respond.FromMoney(b.PaidOut),
		Failed:    respond.FromMoney(b.Failed),
	}
}
