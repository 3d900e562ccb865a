// Package payout settles completed payments into payouts to a restaurant's
// bank account. A payment is included in at most one payout: settlement
// stamps it with the payout id in the transaction that creates the payout.
package payout

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
)

var (
	ErrNotFound          = errors.New("payout not found")
	ErrEmptyPeriod       = errors.New("no unsettled payments in period")
	ErrInvalidPeriod     = errors.New("invalid settlement period")
	ErrIllegalTransition = errors.New("illegal payout transition")
	ErrInvalidStatus     = errors.New("invalid payout status")
	ErrMixedCurrency     = errors.New("payments in more than one currency")
	ErrVersionConflict   = errors.New("payout changed concurrently")
	// ErrWatermarkConflict means a payment picked for settlement was stamped
	// by another payout before this one could claim it.
	ErrWatermarkConflict = errors.New("payment already settled")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusInTransit Status = "in_transit"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusInTransit, StatusPaid, StatusFailed:
		return st, nil
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Period is the half-open interval [From, To) of completion times.
type Period struct {
	From time.Time
	To   time.Time
}

func (p Period) Validate() error {
	if p.From.IsZero() || p.To.IsZero() || !p.From.Before(p.To) {
		return fmt.Errorf("%w: from must be before to", ErrInvalidPeriod)
	}

	return nil
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.From) && t.Before(p.To)
}

// Window is the settlement period ending at now truncated to interval and
// reaching lookback into the past. Overlapping windows are safe, so a long
// lookback picks up payments a missed run left behind.
func Window(now time.Time, interval, lookback time.Duration) Period {
	to := now.UTC().Truncate(interval)
	return Period{From: to.Add(-lookback), To: to}
}

type Payout struct {
	ID             uuid.UUID
	RestaurantID   uuid.UUID
	Period         Period
	Gross          money.Money
	TotalTips      money.Money
	TotalFees      money.Money
	Amount         money.Money
	PaymentCount   int
	Status         Status
	FailureReason  string
	BankAccountRef string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Totals is the money settled by a set of payments. Net is what the
// restaurant receives: Gross + Tips - Fees.
type Totals struct {
	Gross money.Money
	Tips  money.Money
	Fees  money.Money
	Net   money.Money
	Count int
}

// Summarize adds up completed payments. Payments in any other status are
// ignored.
func Summarize(currency string, payments []*payment.Payment) (Totals, error) {
	t := Totals{
		Gross: money.Zero(currency),
		Tips:  money.Zero(currency),
		Fees:  money.Zero(currency),
		Net:   money.Zero(currency),
	}

	for _, p := range payments {
		if p.Status != payment.StatusCompleted {
			continue
		}

		if p.Principal.Currency != t.Gross.Currency {
			return Totals{}, fmt.Errorf("%w: %s and %s", ErrMixedCurrency, t.Gross.Currency, p.Principal.Currency)
		}

		t.Gross = t.Gross.Add(p.Principal)
		t.Tips = t.Tips.Add(p.Tip)
		t.Fees = t.Fees.Add(p.Fee)
		t.Count++
	}

	t.Net = t.Gross.Add(t.Tips).Sub(t.Fees)

	return t, nil
}

// New returns a pending payout carrying totals.
func New(restaurantID uuid.UUID, period Period, bankAccountRef string, t Totals) Payout {
	return Payout{
		RestaurantID:   restaurantID,
		Period:         period,
		Gross:          t.Gross,
		TotalTips:      t.Tips,
		TotalFees:      t.Fees,
		Amount:         t.Net,
		PaymentCount:   t.Count,
		Status:         StatusPending,
		BankAccountRef: bankAccountRef,
	}
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusInTransit, StatusFailed},
	StatusInTransit: {StatusPaid, StatusFailed},
}

// Transition moves the payout to status to. A failure reason is kept only
// for failed payouts.
func (p *Payout) Transition(to Status, reason string, at time.Time) error {
	allowed := false

	for _, s := range transitions[p.Status] {
		if s == to {
			allowed = true
			break
		}
	}

	if !allowed {
		return &IllegalTransitionError{PayoutID: p.ID, From: p.Status, To: to}
	}

	p.Status = to
	p.UpdatedAt = at

	if to == StatusFailed {
		p.FailureReason = reason
	}

	return nil
}

type EmptyPeriodError struct {
	RestaurantID uuid.UUID
	Period       Period
}

func (e *EmptyPeriodError) Error() string {
	return fmt.Sprintf("restaurant %s has no unsettled payments completed in [%s, %s)",
		e.RestaurantID, e.Period.From.Format(time.RFC3339), e.Period.To.Format(time.RFC3339))
}

func (e *EmptyPeriodError) Is(target error) bool { return target == ErrEmptyPeriod }

type IllegalTransitionError struct {
	PayoutID uuid.UUID
	From     Status
	To       Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("payout %s cannot move from %s to %s", e.PayoutID, e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// Balance is where a restaurant's money stands.
type Balance struct {
	RestaurantID uuid.UUID
	// Unsettled covers completed payments not yet in any payout.
	Unsettled Totals
	Pending   money.Money
	InTransit money.Money
	PaidOut   money.Money
	Failed    money.Money
}
