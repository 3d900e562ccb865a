package split

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
)

var (
	ErrNotFound               = errors.New("split session not found")
	ErrInvalidMode            = errors.New("invalid split mode")
	ErrSessionAlreadyActive   = errors.New("order already has an active split session")
	ErrItemAlreadyAssigned    = errors.New("item already assigned")
	ErrAllocationExceedsTotal = errors.New("allocations exceed the amount to split")
	ErrNothingToSplit         = errors.New("order has nothing left to pay")
	ErrSessionClosed          = errors.New("split session is not active")
	ErrOrderNotPaid           = errors.New("order still has a remaining amount")
	ErrUnassignedItems        = errors.New("not every item is assigned")
	ErrGuestRequired          = errors.New("guest reference is required")
	ErrGuestAlreadyPaid       = errors.New("guest has already paid")
	ErrUnknownGuest           = errors.New("guest has no share in this session")
	ErrShareMismatch          = errors.New("amount does not match the planned share")
	ErrVersionConflict        = errors.New("split session was modified concurrently")
)

type Kind string

const (
	KindItems  Kind = "items"
	KindEqual  Kind = "equal"
	KindCustom Kind = "custom"
	KindWhole  Kind = "whole"
)

// Mode is one of ItemsMode, EqualMode, CustomMode or WholeMode.
type Mode interface {
	Kind() Kind
	clone() Mode
}

// ItemsMode maps order item ids to the guest paying for them.
type ItemsMode struct {
	Assignments map[uuid.UUID]string
}

// EqualMode divides the base into People shares handed out in order.
type EqualMode struct {
	People      int
	Allocations []Allocation
}

// CustomMode lets every guest name their own amount.
type CustomMode struct {
	Allocations []Allocation
}

// WholeMode has a single payer for whatever remains.
type WholeMode struct{}

func (ItemsMode) Kind() Kind  { return KindItems }
func (EqualMode) Kind() Kind  { return KindEqual }
func (CustomMode) Kind() Kind { return KindCustom }
func (WholeMode) Kind() Kind  { return KindWhole }

func (m ItemsMode) clone() Mode {
	return ItemsMode{Assignments: maps.Clone(m.Assignments)}
}

func (m EqualMode) clone() Mode {
	return EqualMode{People: m.People, Allocations: slices.Clone(m.Allocations)}
}

func (m CustomMode) clone() Mode {
	return CustomMode{Allocations: slices.Clone(m.Allocations)}
}

func (m WholeMode) clone() Mode { return m }

type Allocation struct {
	Guest  string
	Amount money.Money
}

// Session is one negotiation of how an order is divided among guests. Base is
// the order's remaining amount when the session was opened. Contributed holds
// the principal each guest has paid so far; a guest is in Paid once that
// covers their whole share.
type Session struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	Mode        Mode
	Base        money.Money
	Active      bool
	Paid        map[string]bool
	Contributed map[string]money.Money
	Version     int64
	CreatedAt   time.Time
	ClosedAt    *time.Time
}

func (s Session) clone() Session {
	s.Paid = maps.Clone(s.Paid)
	s.Contributed = maps.Clone(s.Contributed)
	if s.Mode != nil {
		s.Mode = s.Mode.clone()
	}

	return s
}

// Allocations returns the recorded shares of an equal or custom session.
func (s Session) Allocations() []Allocation {
	switch m := s.Mode.(type) {
	case EqualMode:
		return m.Allocations
	case CustomMode:
		return m.Allocations
	}

	return nil
}

// Allocated is the sum of the recorded shares.
func (s Session) Allocated() money.Money {
	total := money.Zero(s.Base.Currency)
	for _, a := range s.Allocations() {
		total = total.Add(a.Amount)
	}

	return total
}

// PaidBy is the principal guest has paid in this session.
func (s Session) PaidBy(guest string) money.Money {
	if c, ok := s.Contributed[guest]; ok {
		return c
	}

	return money.Zero(s.Base.Currency)
}

// owed is what the allocated guests other than except still have to pay.
func (s Session) owed(except string) money.Money {
	total := money.Zero(s.Base.Currency)
	for _, a := range s.Allocations() {
		if a.Guest == except {
			continue
		}

		if left := a.Amount.Sub(s.PaidBy(a.Guest)); left.IsPositive() {
			total = total.Add(left)
		}
	}

	return total
}

type InvalidModeError struct {
	Kind   Kind
	Reason string
}

func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("invalid split mode %q: %s", e.Kind, e.Reason)
}

func (e *InvalidModeError) Is(target error) bool { return target == ErrInvalidMode }

type SessionAlreadyActiveError struct {
	OrderID   uuid.UUID
	SessionID uuid.UUID
}

func (e *SessionAlreadyActiveError) Error() string {
	if e.SessionID == uuid.Nil {
		return fmt.Sprintf("order %s already has an active split session", e.OrderID)
	}

	return fmt.Sprintf("order %s already has active split session %s", e.OrderID, e.SessionID)
}

func (e *SessionAlreadyActiveError) Is(target error) bool { return target == ErrSessionAlreadyActive }

type ItemAlreadyAssignedError struct {
	ItemID uuid.UUID
	Guest  string
	Paid   bool
}

func (e *ItemAlreadyAssignedError) Error() string {
	if e.Guest == "" {
		return fmt.Sprintf("item %s is already paid", e.ItemID)
	}

	return fmt.Sprintf("item %s is held by %q who already paid", e.ItemID, e.Guest)
}

func (e *ItemAlreadyAssignedError) Is(target error) bool { return target == ErrItemAlreadyAssigned }

// AllocationExceedsTotalError reports a share that does not fit in what the
// order still has open. Allocated is what other guests still owe.
type AllocationExceedsTotalError struct {
	Remaining money.Money
	Allocated money.Money
	Requested money.Money
}

func (e *AllocationExceedsTotalError) Error() string {
	return fmt.Sprintf("allocating %s on top of %s exceeds the remaining %s", e.Requested, e.Allocated, e.Remaining)
}

func (e *AllocationExceedsTotalError) Is(target error) bool {
	return target == ErrAllocationExceedsTotal
}
