package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/splitpay/internal/metrics"
	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
	"github.com/MrJamesThe3rd/splitpay/internal/refund"
	"github.com/MrJamesThe3rd/splitpay/internal/split"
)

//go:generate mockgen -source=processor.go -destination=repository_mock.go -package=payment
type Repository interface {
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*Payment, error)
	ListPayments(ctx context.Context, filter Filter) ([]*Payment, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Payment, error)
	// InsertPending stores p unless its transaction id is already known and
	// reports whether it did.
	InsertPending(ctx context.Context, p *Payment) (bool, error)

	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
	ActiveSession(ctx context.Context, orderID uuid.UUID) (*split.Session, error)

	BeginOrder(ctx context.Context, orderID uuid.UUID) (OrderTx, error)
}

// OrderTx holds the row lock of one order. Everything written through it is
// committed together.
type OrderTx interface {
	Order() *order.Order
	Payment(ctx context.Context, id uuid.UUID) (*Payment, error)
	Session(ctx context.Context, id uuid.UUID) (*split.Session, error)
	ActiveSession(ctx context.Context) (*split.Session, error)

	SaveOrder(ctx context.Context, o *order.Order) error
	SaveSession(ctx context.Context, s *split.Session) error
	SavePayment(ctx context.Context, p *Payment) error
	QueueRefund(ctx context.Context, cmd *refund.Command) error

	Commit() error
	Rollback() error
}

type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// ProviderEvent is a payment provider callback. Amounts are minor units.
type ProviderEvent struct {
	TransactionID string
	OrderID       uuid.UUID
	SessionID     *uuid.UUID
	GuestRef      string
	Principal     int64
	Tip           int64
	Fee           *int64
	Currency      string
	Method        string
	Outcome       Outcome
	FailureReason string
}

// Breakdown is the final split of a captured charge. A nil Fee means the fee
// schedule decides.
type Breakdown struct {
	Principal int64
	Tip       int64
	Fee       *int64
}

type Result struct {
	Payment  *Payment
	Order    *order.Order
	Session  *split.Session
	Replayed bool
}

// RefundPolicy says what goes back to the diner besides the principal.
type RefundPolicy struct {
	Tip bool
}

type Filter struct {
	OrderID      *uuid.UUID
	RestaurantID *uuid.UUID
	Status       *Status
	From         *time.Time
	To           *time.Time
}

type Summary struct {
	Order     *order.Order
	Paid      money.Money
	Remaining money.Money
	Progress  decimal.Decimal
	Tips      money.Money
	Fees      money.Money
	Payments  []*Payment
	Session   *split.Session
}

type Processor struct {
	repo    Repository
	fees    FeeSchedule
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewProcessor(repo Repository, fees FeeSchedule, m *metrics.Metrics) *Processor {
	return &Processor{repo: repo, fees: fees, metrics: m, now: time.Now}
}

// Ingest handles a provider event keyed by its transaction id. An event for
// a payment that already reached a terminal status changes nothing and
// returns the stored payment with Replayed set.
func (p *Processor) Ingest(ctx context.Context, ev ProviderEvent) (*Result, error) {
	if err := ev.validate(); err != nil {
		return nil, err
	}

	replayed := true

	pay, err := p.repo.GetByTransactionID(ctx, ev.TransactionID)
	switch {
	case errors.Is(err, ErrNotFound):
		pay, replayed, err = p.record(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("recording payment: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("finding payment: %w", err)
	}

	if pay.OrderID != ev.OrderID {
		return nil, fmt.Errorf("%w: transaction %s belongs to another order", ErrInvalidEvent, ev.TransactionID)
	}

	if pay.Status.Terminal() {
		p.metrics.PaymentIngested(string(ev.Outcome), true)
		return &Result{Payment: pay, Replayed: true}, nil
	}

	var res *Result

	switch ev.Outcome {
	case OutcomePending:
		res = &Result{Payment: pay, Replayed: replayed}
	case OutcomeCompleted:
		res, err = p.Confirm(ctx, pay.ID, Breakdown{Principal: ev.Principal, Tip: ev.Tip, Fee: ev.Fee})
	case OutcomeFailed:
		res, err = p.Fail(ctx, pay.ID, ev.FailureReason)
	}

	if res != nil {
		p.metrics.PaymentIngested(string(ev.Outcome), res.Replayed)
	}

	return res, err
}

func (p *Processor) record(ctx context.Context, ev ProviderEvent) (*Payment, bool, error) {
	o, err := p.repo.GetOrder(ctx, ev.OrderID)
	if err != nil {
		return nil, false, err
	}

	currency, _ := money.NormalizeCurrency(ev.Currency)
	if currency != o.Total.Currency {
		return nil, false, fmt.Errorf("%w: order is %s, event is %s", ErrInvalidEvent, o.Total.Currency, currency)
	}

	pay := &Payment{
		TransactionID:  ev.TransactionID,
		OrderID:        o.ID,
		RestaurantID:   o.RestaurantID,
		SplitSessionID: ev.SessionID,
		GuestRef:       strings.TrimSpace(ev.GuestRef),
		Method:         ev.Method,
		Status:         StatusPending,
	}

	if err := p.setAmounts(pay, currency, Breakdown{Principal: ev.Principal, Tip: ev.Tip, Fee: ev.Fee}); err != nil {
		return nil, false, err
	}

	inserted, err := p.repo.InsertPending(ctx, pay)
	if err != nil {
		return nil, false, err
	}

	if inserted {
		slog.Info("payment recorded", "payment_id", pay.ID, "transaction_id", pay.TransactionID, "order_id", pay.OrderID)
		return pay, false, nil
	}

	// Lost the insert race against a concurrent delivery of the same event.
	existing, err := p.repo.GetByTransactionID(ctx, ev.TransactionID)
	if err != nil {
		return nil, false, err
	}

	return existing, true, nil
}

// Confirm completes a pending payment and applies it to its order under the
// order lock. A charge the order cannot take is failed with a reason and a
// refund is queued in the same transaction; the Result then holds the failed
// payment and the error says why.
func (p *Processor) Confirm(ctx context.Context, id uuid.UUID, b Breakdown) (*Result, error) {
	otx, pay, err := p.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	defer otx.Rollback()

	switch pay.Status {
	case StatusCompleted:
		return &Result{Payment: pay, Order: otx.Order(), Replayed: true}, nil
	case StatusPending:
	default:
		return nil, &IllegalTransitionError{PaymentID: pay.ID, From: pay.Status, To: StatusCompleted}
	}

	if err := p.setAmounts(pay, pay.Principal.Currency, b); err != nil {
		return nil, err
	}

	now := p.now()
	current := *otx.Order()

	sess, err := p.sessionFor(ctx, otx, pay)
	if err != nil {
		return nil, err
	}

	if err := checkShare(sess, current, pay); err != nil {
		return p.reject(ctx, otx, pay, current, ReasonShareExceeded, err)
	}

	next, err := order.ApplyPayment(current, order.Credit{PaymentID: pay.ID, Principal: pay.Principal, At: now})
	if err != nil {
		switch {
		case errors.Is(err, order.ErrOverpayment):
			return p.reject(ctx, otx, pay, current, ReasonOrderFullyPaid, err)
		case errors.Is(err, order.ErrOrderClosed):
			return p.reject(ctx, otx, pay, current, ReasonOrderClosed, err)
		}

		return nil, fmt.Errorf("applying payment: %w", err)
	}

	if err := pay.Transition(StatusCompleted, now); err != nil {
		return nil, err
	}

	if sess != nil {
		pay.SplitSessionID = &sess.ID

		updated := *sess

		if pay.GuestRef != "" {
			updated = split.RecordGuestPayment(updated, current, pay.GuestRef, pay.Principal)

			if updated.Paid[pay.GuestRef] {
				next, err = order.MarkItemsPaid(next, split.GuestItems(updated, pay.GuestRef))
				if err != nil {
					return nil, fmt.Errorf("marking items paid: %w", err)
				}
			}
		}

		if order.Remaining(next).IsZero() {
			closed, err := split.Close(updated, next, false, now)
			if err != nil {
				slog.Warn("split session left open on paid order", "session_id", sess.ID, "order_id", next.ID, "error", err)
			} else {
				updated = closed
			}
		}

		if err := otx.SaveSession(ctx, &updated); err != nil {
			return nil, fmt.Errorf("saving session: %w", err)
		}

		sess = &updated
	}

	if err := otx.SaveOrder(ctx, &next); err != nil {
		return nil, fmt.Errorf("saving order: %w", err)
	}

	if err := otx.SavePayment(ctx, pay); err != nil {
		return nil, fmt.Errorf("saving payment: %w", err)
	}

	if err := otx.Commit(); err != nil {
		return nil, fmt.Errorf("committing payment: %w", err)
	}

	slog.Info("payment completed",
		"payment_id", pay.ID,
		"order_id", next.ID,
		"principal", pay.Principal.String(),
		"remaining", order.Remaining(next).String(),
		"order_status", next.Status,
	)

	return &Result{Payment: pay, Order: &next, Session: sess}, nil
}

func (p *Processor) reject(ctx context.Context, otx OrderTx, pay *Payment, o order.Order, reason string, cause error) (*Result, error) {
	if err := pay.Transition(StatusFailed, p.now()); err != nil {
		return nil, err
	}

	pay.FailureReason = reason

	cmd := refund.NewCommand(pay.ID, pay.TransactionID, pay.OrderID, pay.TotalCharged(), reason)

	if err := otx.SavePayment(ctx, pay); err != nil {
		return nil, fmt.Errorf("saving payment: %w", err)
	}

	if err := otx.QueueRefund(ctx, &cmd); err != nil {
		return nil, fmt.Errorf("queueing refund: %w", err)
	}

	if err := otx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rejection: %w", err)
	}

	p.metrics.PaymentRejected(reason)
	p.metrics.RefundQueued()
	slog.Warn("payment rejected, refund queued",
		"payment_id", pay.ID,
		"order_id", pay.OrderID,
		"reason", reason,
		"amount", cmd.Amount.String(),
	)

	return &Result{Payment: pay, Order: &o}, cause
}

// Fail marks a pending payment failed. Failing a failed payment is a no-op.
func (p *Processor) Fail(ctx context.Context, id uuid.UUID, reason string) (*Result, error) {
	otx, pay, err := p.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	defer otx.Rollback()

	if pay.Status == StatusFailed {
		return &Result{Payment: pay, Order: otx.Order(), Replayed: true}, nil
	}

	if err := pay.Transition(StatusFailed, p.now()); err != nil {
		return nil, err
	}

	pay.FailureReason = reason
	if pay.FailureReason == "" {
		pay.FailureReason = ReasonDeclined
	}

	if err := otx.SavePayment(ctx, pay); err != nil {
		return nil, fmt.Errorf("saving payment: %w", err)
	}

	if err := otx.Commit(); err != nil {
		return nil, fmt.Errorf("committing failure: %w", err)
	}

	slog.Info("payment failed", "payment_id", pay.ID, "order_id", pay.OrderID, "reason", pay.FailureReason)

	return &Result{Payment: pay, Order: otx.Order()}, nil
}

// Refund reverses a completed payment's principal on the order ledger and
// queues the money back to the diner. The guest and their items become
// unpaid again in the payment's split session.
func (p *Processor) Refund(ctx context.Context, id uuid.UUID, policy RefundPolicy) (*Result, error) {
	otx, pay, err := p.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	defer otx.Rollback()

	if pay.Status == StatusRefunded {
		return &Result{Payment: pay, Order: otx.Order(), Replayed: true}, nil
	}

	now := p.now()

	if err := pay.Transition(StatusRefunded, now); err != nil {
		return nil, err
	}

	next, err := order.ReversePayment(*otx.Order(), pay.ID, now)
	if err != nil {
		return nil, fmt.Errorf("reversing payment: %w", err)
	}

	var sess *split.Session

	if pay.SplitSessionID != nil && pay.GuestRef != "" {
		s, err := otx.Session(ctx, *pay.SplitSessionID)
		if err != nil && !errors.Is(err, split.ErrNotFound) {
			return nil, fmt.Errorf("loading session: %w", err)
		}

		if s != nil {
			next, err = order.UnmarkItemsPaid(next, split.GuestItems(*s, pay.GuestRef))
			if err != nil {
				return nil, fmt.Errorf("unmarking items: %w", err)
			}

			if s.Active {
				updated := split.ReverseGuestPayment(*s, pay.GuestRef, pay.Principal)
				if err := otx.SaveSession(ctx, &updated); err != nil {
					return nil, fmt.Errorf("saving session: %w", err)
				}

				s = &updated
			}

			sess = s
		}
	}

	amount := pay.Principal
	if policy.Tip {
		amount = amount.Add(pay.Tip)
	}

	cmd := refund.NewCommand(pay.ID, pay.TransactionID, pay.OrderID, amount, ReasonRefunded)

	if err := otx.SaveOrder(ctx, &next); err != nil {
		return nil, fmt.Errorf("saving order: %w", err)
	}

	if err := otx.SavePayment(ctx, pay); err != nil {
		return nil, fmt.Errorf("saving payment: %w", err)
	}

	if err := otx.QueueRefund(ctx, &cmd); err != nil {
		return nil, fmt.Errorf("queueing refund: %w", err)
	}

	if err := otx.Commit(); err != nil {
		return nil, fmt.Errorf("committing refund: %w", err)
	}

	p.metrics.RefundQueued()
	slog.Info("payment refunded", "payment_id", pay.ID, "order_id", next.ID, "amount", amount.String(), "settled", pay.PayoutID != nil)

	return &Result{Payment: pay, Order: &next, Session: sess}, nil
}

// SweepStale fails payments still pending since before cutoff. Payments that
// complete while the sweep runs are left alone.
func (p *Processor) SweepStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := p.repo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("listing stale payments: %w", err)
	}

	swept := 0

	for _, pay := range stale {
		res, err := p.Fail(ctx, pay.ID, ReasonProviderTimeout)
		if errors.Is(err, ErrIllegalTransition) {
			continue
		}

		if err != nil {
			return swept, fmt.Errorf("failing payment %s: %w", pay.ID, err)
		}

		if !res.Replayed {
			swept++
		}
	}

	p.metrics.PaymentsSwept(swept)

	return swept, nil
}

func (p *Processor) Get(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return p.repo.GetPayment(ctx, id)
}

func (p *Processor) List(ctx context.Context, filter Filter) ([]*Payment, error) {
	return p.repo.ListPayments(ctx, filter)
}

// Summary projects an order's ledger, payments and active split session.
func (p *Processor) Summary(ctx context.Context, orderID uuid.UUID) (*Summary, error) {
	o, err := p.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	payments, err := p.repo.ListPayments(ctx, Filter{OrderID: &orderID})
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}

	sess, err := p.repo.ActiveSession(ctx, orderID)
	if err != nil && !errors.Is(err, split.ErrNotFound) {
		return nil, fmt.Errorf("loading active session: %w", err)
	}

	currency := o.Total.Currency
	sum := &Summary{
		Order:     o,
		Paid:      order.Paid(*o),
		Remaining: order.Remaining(*o),
		Progress:  order.Progress(*o),
		Tips:      money.Zero(currency),
		Fees:      money.Zero(currency),
		Payments:  payments,
		Session:   sess,
	}

	for _, pay := range payments {
		if pay.Status != StatusCompleted {
			continue
		}

		sum.Tips = sum.Tips.Add(pay.Tip)
		sum.Fees = sum.Fees.Add(pay.Fee)
	}

	return sum, nil
}

func (p *Processor) begin(ctx context.Context, id uuid.UUID) (OrderTx, *Payment, error) {
	current, err := p.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	otx, err := p.repo.BeginOrder(ctx, current.OrderID)
	if err != nil {
		return nil, nil, fmt.Errorf("locking order: %w", err)
	}

	pay, err := otx.Payment(ctx, id)
	if err != nil {
		otx.Rollback()
		return nil, nil, fmt.Errorf("reloading payment: %w", err)
	}

	return otx, pay, nil
}

// sessionFor returns the session a payment counts against: the one named by
// the payment while it is active, otherwise the order's active session.
func (p *Processor) sessionFor(ctx context.Context, otx OrderTx, pay *Payment) (*split.Session, error) {
	if pay.SplitSessionID != nil {
		s, err := otx.Session(ctx, *pay.SplitSessionID)
		switch {
		case err == nil && s.Active && s.OrderID == pay.OrderID:
			return s, nil
		case err != nil && !errors.Is(err, split.ErrNotFound):
			return nil, fmt.Errorf("loading session: %w", err)
		}
	}

	s, err := otx.ActiveSession(ctx)
	if errors.Is(err, split.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("loading active session: %w", err)
	}

	return s, nil
}

// checkShare holds a guest to what is left of the share the session gives
// them, so a share may be paid in parts. Guests without a share and
// whole-bill sessions are only bound by the order total.
func checkShare(sess *split.Session, o order.Order, pay *Payment) error {
	if sess == nil || pay.GuestRef == "" || sess.Mode.Kind() == split.KindWhole {
		return nil
	}

	if sess.Paid[pay.GuestRef] {
		return fmt.Errorf("%w: guest %q already paid", ErrShareExceeded, pay.GuestRef)
	}

	outstanding, err := split.Outstanding(*sess, o, pay.GuestRef)
	if errors.Is(err, split.ErrUnknownGuest) {
		return nil
	}

	if err != nil {
		return err
	}

	if pay.Principal.Cmp(outstanding) > 0 {
		return fmt.Errorf("%w: guest %q owes %s, paid %s", ErrShareExceeded, pay.GuestRef, outstanding, pay.Principal)
	}

	return nil
}

func (p *Processor) setAmounts(pay *Payment, currency string, b Breakdown) error {
	if b.Principal <= 0 || b.Tip < 0 || (b.Fee != nil && *b.Fee < 0) {
		return fmt.Errorf("%w: principal must be positive, tip and fee non-negative", ErrInvalidEvent)
	}

	pay.Principal = money.New(b.Principal, currency)
	pay.Tip = money.New(b.Tip, currency)

	if b.Fee != nil {
		pay.Fee = money.New(*b.Fee, currency)
	} else {
		pay.Fee = p.fees.Apply(pay.TotalCharged())
	}

	return nil
}

func (ev ProviderEvent) validate() error {
	if strings.TrimSpace(ev.TransactionID) == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidEvent)
	}

	if ev.OrderID == uuid.Nil {
		return fmt.Errorf("%w: order id is required", ErrInvalidEvent)
	}

	if _, err := money.NormalizeCurrency(ev.Currency); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	if ev.Principal <= 0 || ev.Tip < 0 || (ev.Fee != nil && *ev.Fee < 0) {
		return fmt.Errorf("%w: principal must be positive, tip and fee non-negative", ErrInvalidEvent)
	}

	switch ev.Outcome {
	case OutcomePending, OutcomeCompleted, OutcomeFailed:
		return nil
	}

	return fmt.Errorf("%w: unknown outcome %q", ErrInvalidEvent, ev.Outcome)
}
