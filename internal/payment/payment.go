package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
)

var (
	ErrNotFound          = errors.New("payment not found")
	ErrInvalidEvent      = errors.New("invalid provider event")
	ErrIllegalTransition = errors.New("illegal payment transition")
	ErrShareExceeded     = errors.New("payment exceeds the guest's share")
	ErrVersionConflict   = errors.New("payment was modified concurrently")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Terminal reports whether a provider event can no longer change the payment.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Failure reasons recorded on failed payments and refund commands.
const (
	ReasonOrderFullyPaid  = "order_fully_paid"
	ReasonOrderClosed     = "order_closed"
	ReasonShareExceeded   = "share_exceeded"
	ReasonProviderTimeout = "provider_timeout"
	ReasonDeclined        = "declined"
	ReasonRefunded        = "refunded"
)

// Payment is one guest's charge against an order. The platform fee is taken
// from the restaurant's proceeds, so the diner is charged principal plus tip.
type Payment struct {
	ID             uuid.UUID
	TransactionID  string
	OrderID        uuid.UUID
	RestaurantID   uuid.UUID
	SplitSessionID *uuid.UUID
	GuestRef       string
	Principal      money.Money
	Tip            money.Money
	Fee            money.Money
	Method         string
	Status         Status
	FailureReason  string
	PayoutID       *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	RefundedAt     *time.Time
}

// TotalCharged is what the diner paid the provider.
func (p Payment) TotalCharged() money.Money {
	return p.Principal.Add(p.Tip)
}

// Net is what the payment contributes to the restaurant's payout.
func (p Payment) Net() money.Money {
	return p.Principal.Add(p.Tip).Sub(p.Fee)
}

type IllegalTransitionError struct {
	PaymentID uuid.UUID
	From      Status
	To        Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("payment %s cannot go from %s to %s", e.PaymentID, e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }

var transitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusRefunded},
}

// Transition moves the payment to status to and stamps the matching
// timestamp. Only pending to completed or failed and completed to refunded
// are allowed.
func (p *Payment) Transition(to Status, at time.Time) error {
	allowed := false

	for _, s := range transitions[p.Status] {
		if s == to {
			allowed = true
			break
		}
	}

	if !allowed {
		return &IllegalTransitionError{PaymentID: p.ID, From: p.Status, To: to}
	}

	p.Status = to
	p.UpdatedAt = at

	switch to {
	case StatusCompleted:
		p.CompletedAt = &at
	case StatusRefunded:
		p.RefundedAt = &at
	}

	return nil
}

// FeeSchedule is applied when the provider does not report a fee.
type FeeSchedule struct {
	BasisPoints int64
	Fixed       int64
}

// Apply charges the rate on charged plus the fixed part, rounded half to even.
func (f FeeSchedule) Apply(charged money.Money) money.Money {
	return charged.ApplyRate(f.BasisPoints).Add(money.New(f.Fixed, charged.Currency))
}
