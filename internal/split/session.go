package split

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
)

// Open starts a session over what remains of o. The one-active-session rule
// needs storage and is enforced by Service.Open.
func Open(o order.Order, kind Kind, people int, at time.Time) (Session, error) {
	if o.Status == order.StatusClosed {
		return Session{}, order.ErrOrderClosed
	}

	remaining := order.Remaining(o)
	if !remaining.IsPositive() {
		return Session{}, ErrNothingToSplit
	}

	var mode Mode

	switch kind {
	case KindItems:
		if len(o.Items) == 0 {
			return Session{}, &InvalidModeError{Kind: kind, Reason: "order has no items"}
		}

		if order.Paid(o).Amount != 0 {
			return Session{}, &InvalidModeError{Kind: kind, Reason: "order is already partially paid"}
		}

		mode = ItemsMode{Assignments: map[uuid.UUID]string{}}
	case KindEqual:
		if people < 1 {
			return Session{}, &InvalidModeError{Kind: kind, Reason: "at least one person is required"}
		}

		mode = EqualMode{People: people}
	case KindCustom:
		mode = CustomMode{}
	case KindWhole:
		mode = WholeMode{}
	default:
		return Session{}, &InvalidModeError{Kind: kind, Reason: "unknown mode"}
	}

	return Session{
		OrderID:     o.ID,
		Mode:        mode,
		Base:        remaining,
		Active:      true,
		Paid:        map[string]bool{},
		Contributed: map[string]money.Money{},
		CreatedAt:   at,
	}, nil
}

// PlannedShares lists the equal shares: the ones already claimed followed by
// an even split, remainder cents first, of what the order still has open
// beyond them.
func PlannedShares(s Session, o order.Order) []money.Money {
	m, ok := s.Mode.(EqualMode)
	if !ok {
		return nil
	}

	shares := make([]money.Money, 0, m.People)
	for _, a := range m.Allocations {
		shares = append(shares, a.Amount)
	}

	return append(shares, unclaimedShares(s, o, m, "")...)
}

// unclaimedShares splits what is left of the order, once the claimed shares
// are accounted for, among the people who have not claimed one yet. What
// guest already paid without a share counts towards the pool.
func unclaimedShares(s Session, o order.Order, m EqualMode, guest string) []money.Money {
	left := m.People - len(m.Allocations)
	if left <= 0 {
		return nil
	}

	pool := order.Remaining(o).Sub(s.owed(""))
	if guest != "" {
		pool = pool.Add(s.PaidBy(guest))
	}

	if !pool.IsPositive() {
		return nil
	}

	return pool.Split(left)
}

// AssignItem gives an item to a guest in items mode. Items that are paid, or
// held by a guest who has paid anything towards them, cannot move.
func AssignItem(s Session, o order.Order, itemID uuid.UUID, guest string) (Session, error) {
	if err := checkMutable(s, guest); err != nil {
		return s, err
	}

	m, ok := s.Mode.(ItemsMode)
	if !ok {
		return s, &InvalidModeError{Kind: s.Mode.Kind(), Reason: "items can only be assigned in items mode"}
	}

	item, ok := o.Item(itemID)
	if !ok {
		return s, fmt.Errorf("%w: %s", order.ErrItemNotFound, itemID)
	}

	if item.Paid {
		return s, &ItemAlreadyAssignedError{ItemID: itemID, Paid: true}
	}

	if holder, ok := m.Assignments[itemID]; ok && holder != guest && (s.Paid[holder] || s.PaidBy(holder).IsPositive()) {
		return s, &ItemAlreadyAssignedError{ItemID: itemID, Guest: holder, Paid: true}
	}

	next := s.clone()
	next.Mode.(ItemsMode).Assignments[itemID] = guest

	return next, nil
}

// RecordGuestShare records how much a guest will pay in equal or custom mode.
// o is the session's order as it stands now, so payments made since the
// session opened shrink what can still be allocated.
//
// In custom mode amount must be positive and replaces any previous share of
// the guest. The shares still owed, this one included, may not exceed the
// order's remaining amount. In equal mode the guest takes the next planned
// share; a zero amount accepts it, any other amount has to match it exactly.
func RecordGuestShare(s Session, o order.Order, guest string, amount money.Money) (Session, error) {
	if err := checkMutable(s, guest); err != nil {
		return s, err
	}

	if !amount.SameCurrency(s.Base) {
		return s, fmt.Errorf("%w: session is %s, share is %s", money.ErrCurrencyMismatch, s.Base.Currency, amount.Currency)
	}

	switch m := s.Mode.(type) {
	case CustomMode:
		return recordCustomShare(s, o, m, guest, amount)
	case EqualMode:
		return recordEqualShare(s, o, m, guest, amount)
	}

	return s, &InvalidModeError{Kind: s.Mode.Kind(), Reason: "shares are only recorded in equal or custom mode"}
}

func recordCustomShare(s Session, o order.Order, m CustomMode, guest string, amount money.Money) (Session, error) {
	if !amount.IsPositive() {
		return s, fmt.Errorf("%w: share must be positive", money.ErrInvalidAmount)
	}

	paid := s.PaidBy(guest)
	if amount.Cmp(paid) < 0 {
		return s, fmt.Errorf("%w: guest already paid %s, share is %s", ErrShareMismatch, paid, amount)
	}

	others := s.owed(guest)
	remaining := order.Remaining(o)
	requested := amount.Sub(paid)

	if others.Add(requested).Cmp(remaining) > 0 {
		return s, &AllocationExceedsTotalError{Remaining: remaining, Allocated: others, Requested: requested}
	}

	next := s.clone()
	nm := next.Mode.(CustomMode)

	idx := slices.IndexFunc(nm.Allocations, func(a Allocation) bool { return a.Guest == guest })
	if idx >= 0 {
		nm.Allocations[idx].Amount = amount
	} else {
		nm.Allocations = append(nm.Allocations, Allocation{Guest: guest, Amount: amount})
	}

	next.Mode = nm

	return next, nil
}

func recordEqualShare(s Session, o order.Order, m EqualMode, guest string, amount money.Money) (Session, error) {
	if idx := slices.IndexFunc(m.Allocations, func(a Allocation) bool { return a.Guest == guest }); idx >= 0 {
		held := m.Allocations[idx].Amount
		if amount.IsZero() || amount.Cmp(held) == 0 {
			return s, nil
		}

		return s, fmt.Errorf("%w: guest holds %s, got %s", ErrShareMismatch, held, amount)
	}

	planned := unclaimedShares(s, o, m, guest)
	if len(planned) == 0 || !planned[0].IsPositive() {
		return s, &AllocationExceedsTotalError{Remaining: order.Remaining(o), Allocated: s.owed(""), Requested: amount}
	}

	share := planned[0]
	if !amount.IsZero() && amount.Cmp(share) != 0 {
		return s, fmt.Errorf("%w: next share is %s, got %s", ErrShareMismatch, share, amount)
	}

	if paid := s.PaidBy(guest); share.Cmp(paid) < 0 {
		return s, fmt.Errorf("%w: guest already paid %s, share is %s", ErrShareMismatch, paid, share)
	}

	next := s.clone()
	nm := next.Mode.(EqualMode)
	nm.Allocations = append(nm.Allocations, Allocation{Guest: guest, Amount: share})
	next.Mode = nm

	return next, nil
}

// Due is what guest owes under the session's mode. In whole mode that is
// everything the order still has open.
func Due(s Session, o order.Order, guest string) (money.Money, error) {
	switch m := s.Mode.(type) {
	case WholeMode:
		return order.Remaining(o), nil
	case EqualMode, CustomMode:
		for _, a := range s.Allocations() {
			if a.Guest == guest {
				return a.Amount, nil
			}
		}

		return money.Money{}, fmt.Errorf("%w: %q", ErrUnknownGuest, guest)
	case ItemsMode:
		due := money.Zero(s.Base.Currency)
		found := false

		for _, it := range o.Items {
			if m.Assignments[it.ID] == guest {
				due = due.Add(it.Total())
				found = true
			}
		}

		if !found {
			return money.Money{}, fmt.Errorf("%w: %q", ErrUnknownGuest, guest)
		}

		return due, nil
	}

	return money.Money{}, &InvalidModeError{Reason: "session has no mode"}
}

// GuestItems lists the items assigned to guest in items mode.
func GuestItems(s Session, guest string) []uuid.UUID {
	m, ok := s.Mode.(ItemsMode)
	if !ok {
		return nil
	}

	var ids []uuid.UUID

	for id, g := range m.Assignments {
		if g == guest {
			ids = append(ids, id)
		}
	}

	slices.SortFunc(ids, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })

	return ids
}

// Outstanding is what guest still has to pay: their due less the principal
// they already paid in this session.
func Outstanding(s Session, o order.Order, guest string) (money.Money, error) {
	due, err := Due(s, o, guest)
	if err != nil {
		return money.Money{}, err
	}

	if _, ok := s.Mode.(WholeMode); ok {
		return due, nil
	}

	left := due.Sub(s.PaidBy(guest))
	if left.IsNegative() {
		return money.Zero(due.Currency), nil
	}

	return left, nil
}

// Finalized reports whether the session fully accounts for what it splits:
// the shares still owed matching exactly what the order has open, or every
// open item having a guest. Without payments from outside the session the
// shares then sum to the base.
func Finalized(s Session, o order.Order) bool {
	switch m := s.Mode.(type) {
	case WholeMode:
		return true
	case EqualMode:
		return len(m.Allocations) == m.People && s.owed("").Cmp(order.Remaining(o)) == 0
	case CustomMode:
		return s.owed("").Cmp(order.Remaining(o)) == 0
	case ItemsMode:
		for _, it := range o.Items {
			if _, ok := m.Assignments[it.ID]; !ok && !it.Paid {
				return false
			}
		}

		return true
	}

	return false
}

// RecordGuestPayment adds principal paid by guest. o is the order before the
// payment was applied. The guest counts as paid once the principal covers
// what they had outstanding; guests without a share never do.
func RecordGuestPayment(s Session, o order.Order, guest string, principal money.Money) Session {
	outstanding, err := Outstanding(s, o, guest)

	next := s.clone()
	if next.Paid == nil {
		next.Paid = map[string]bool{}
	}

	if next.Contributed == nil {
		next.Contributed = map[string]money.Money{}
	}

	next.Contributed[guest] = s.PaidBy(guest).Add(principal)

	if err == nil && principal.Cmp(outstanding) >= 0 {
		next.Paid[guest] = true
	}

	return next
}

// ReverseGuestPayment takes a refunded principal back off guest, who is no
// longer paid in full.
func ReverseGuestPayment(s Session, guest string, principal money.Money) Session {
	next := s.clone()
	delete(next.Paid, guest)

	left := s.PaidBy(guest).Sub(principal)
	if left.IsPositive() {
		next.Contributed[guest] = left
	} else {
		delete(next.Contributed, guest)
	}

	return next
}

// Close deactivates the session. Unless abandon is set the order must be
// fully paid and, in items mode, every item must have been assigned. Closing
// an inactive session is a no-op.
func Close(s Session, o order.Order, abandon bool, at time.Time) (Session, error) {
	if !s.Active {
		return s, nil
	}

	if !abandon {
		if order.Remaining(o).IsPositive() {
			return s, ErrOrderNotPaid
		}

		if s.Mode.Kind() == KindItems && !Finalized(s, o) {
			return s, ErrUnassignedItems
		}
	}

	next := s.clone()
	next.Active = false
	next.ClosedAt = &at

	return next, nil
}

func checkMutable(s Session, guest string) error {
	if !s.Active {
		return ErrSessionClosed
	}

	if strings.TrimSpace(guest) == "" {
		return ErrGuestRequired
	}

	if s.Paid[guest] {
		return fmt.Errorf("%w: %q", ErrGuestAlreadyPaid, guest)
	}

	return nil
}
