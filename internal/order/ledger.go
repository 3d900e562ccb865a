package order

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
)

// Paid is the sum of credits minus the sum of reversals.
func Paid(o Order) money.Money {
	paid := money.Zero(o.Total.Currency)

	for _, e := range o.Entries {
		switch e.Kind {
		case EntryCredit:
			paid = paid.Add(e.Principal)
		case EntryReversal:
			paid = paid.Sub(e.Principal)
		}
	}

	return paid
}

// Remaining is total minus paid. The ledger functions never let it go below zero.
func Remaining(o Order) money.Money {
	return o.Total.Sub(Paid(o))
}

// Progress is the paid share of the total as a percentage with two decimals,
// clamped to [0, 100]. A zero total has zero progress.
func Progress(o Order) decimal.Decimal {
	if o.Total.Amount <= 0 {
		return decimal.Zero
	}

	pct := decimal.NewFromInt(Paid(o).Amount).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(o.Total.Amount)).
		RoundBank(2)

	switch {
	case pct.IsNegative():
		return decimal.Zero
	case pct.GreaterThan(decimal.NewFromInt(100)):
		return decimal.NewFromInt(100)
	}

	return pct
}

func deriveStatus(o Order) Status {
	if o.Status == StatusClosed {
		return StatusClosed
	}

	paid := Paid(o)

	switch {
	case paid.Amount == 0:
		return StatusOpen
	case paid.Cmp(o.Total) < 0:
		return StatusPartiallyPaid
	default:
		return StatusPaid
	}
}

// ApplyPayment appends a credit for a completed payment and returns the new
// ledger state. o is not modified.
func ApplyPayment(o Order, c Credit) (Order, error) {
	if o.Status == StatusClosed {
		return o, ErrOrderClosed
	}

	if !c.Principal.SameCurrency(o.Total) {
		return o, fmt.Errorf("%w: order is %s, payment is %s", money.ErrCurrencyMismatch, o.Total.Currency, c.Principal.Currency)
	}

	if !c.Principal.IsPositive() {
		return o, fmt.Errorf("%w: principal must be positive", ErrInvalid)
	}

	if _, ok := findEntry(o, c.PaymentID, EntryCredit); ok {
		return o, ErrDuplicateEntry
	}

	paid := Paid(o)
	if paid.Add(c.Principal).Cmp(o.Total) > 0 {
		return o, &OverpaymentError{OrderID: o.ID, Total: o.Total, Paid: paid, Principal: c.Principal}
	}

	next := o
	next.Entries = append(slices.Clone(o.Entries), Entry{
		PaymentID: c.PaymentID,
		Kind:      EntryCredit,
		Principal: c.Principal,
		CreatedAt: c.At,
	})
	next.Status = deriveStatus(next)
	next.UpdatedAt = c.At

	return next, nil
}

// ReversePayment appends a reversal for the principal credited by paymentID.
// Closed orders accept reversals so that refunds stay possible after closing.
func ReversePayment(o Order, paymentID uuid.UUID, at time.Time) (Order, error) {
	credit, ok := findEntry(o, paymentID, EntryCredit)
	if !ok {
		return o, ErrNoCredit
	}

	if _, ok := findEntry(o, paymentID, EntryReversal); ok {
		return o, ErrAlreadyReversed
	}

	next := o
	next.Entries = append(slices.Clone(o.Entries), Entry{
		PaymentID: paymentID,
		Kind:      EntryReversal,
		Principal: credit.Principal,
		CreatedAt: at,
	})
	next.Status = deriveStatus(next)
	next.UpdatedAt = at

	return next, nil
}

// Close marks the order closed. Closing a closed order is a no-op.
func Close(o Order, at time.Time) Order {
	if o.Status == StatusClosed {
		return o
	}

	o.Status = StatusClosed
	o.ClosedAt = &at
	o.UpdatedAt = at

	return o
}

// MarkItemsPaid flags items as paid.
func MarkItemsPaid(o Order, ids []uuid.UUID) (Order, error) {
	return setItemsPaid(o, ids, true)
}

// UnmarkItemsPaid clears the paid flag, used when the paying guest is refunded.
func UnmarkItemsPaid(o Order, ids []uuid.UUID) (Order, error) {
	return setItemsPaid(o, ids, false)
}

func setItemsPaid(o Order, ids []uuid.UUID, paid bool) (Order, error) {
	items := slices.Clone(o.Items)

	for _, id := range ids {
		idx := slices.IndexFunc(items, func(it Item) bool { return it.ID == id })
		if idx < 0 {
			return o, fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}

		items[idx].Paid = paid
	}

	o.Items = items

	return o, nil
}

func findEntry(o Order, paymentID uuid.UUID, kind EntryKind) (Entry, bool) {
	for _, e := range o.Entries {
		if e.PaymentID == paymentID && e.Kind == kind {
			return e, true
		}
	}

	return Entry{}, false
}
