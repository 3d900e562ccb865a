package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrInvalid         = errors.New("invalid order")
	ErrOrderClosed     = errors.New("order is closed")
	ErrOverpayment     = errors.New("payment exceeds order remaining")
	ErrDuplicateEntry  = errors.New("payment already credited")
	ErrNoCredit        = errors.New("payment has no credit entry")
	ErrAlreadyReversed = errors.New("payment already reversed")
	ErrVersionConflict = errors.New("order was modified concurrently")
	ErrItemNotFound    = errors.New("order item not found")
)

// Status is derived from the ledger except for Closed, which is set by hand
// and never undone.
type Status string

const (
	StatusOpen          Status = "open"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusClosed        Status = "closed"
)

type EntryKind string

const (
	EntryCredit   EntryKind = "credit"
	EntryReversal EntryKind = "reversal"
)

// Order is a table's bill. Entries is append-only: paying and refunding add
// entries, nothing ever edits or removes one.
type Order struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	TableID      string
	Total        money.Money
	Items        []Item
	Entries      []Entry
	Status       Status
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
}

type Item struct {
	ID        uuid.UUID
	Name      string
	UnitPrice money.Money
	Quantity  int
	Paid      bool
}

// Total is unit price times quantity.
func (i Item) Total() money.Money {
	return money.New(i.UnitPrice.Amount*int64(i.Quantity), i.UnitPrice.Currency)
}

// Entry is one line of the order ledger.
type Entry struct {
	ID        uuid.UUID // uuid.Nil until persisted
	PaymentID uuid.UUID
	Kind      EntryKind
	Principal money.Money
	CreatedAt time.Time
}

// Credit is what the payment processor applies to an order when a payment
// completes.
type Credit struct {
	PaymentID uuid.UUID
	Principal money.Money
	At        time.Time
}

// OverpaymentError reports a credit that would push the paid amount past the
// order total. It matches ErrOverpayment.
type OverpaymentError struct {
	OrderID   uuid.UUID
	Total     money.Money
	Paid      money.Money
	Principal money.Money
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("order %s: paying %s on top of %s exceeds total %s", e.OrderID, e.Principal, e.Paid, e.Total)
}

func (e *OverpaymentError) Is(target error) bool {
	return target == ErrOverpayment
}

// Item returns the item with the given id.
func (o Order) Item(id uuid.UUID) (Item, bool) {
	for _, it := range o.Items {
		if it.ID == id {
			return it, true
		}
	}

	return Item{}, false
}
