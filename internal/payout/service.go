package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/metrics"
	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/restaurant"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=payout
type Repository interface {
	GetPayout(ctx context.Context, id uuid.UUID) (*Payout, error)
	ListPayouts(ctx context.Context, restaurantID uuid.UUID) ([]*Payout, error)
	PayoutPayments(ctx context.Context, payoutID uuid.UUID) ([]*payment.Payment, error)
	UnsettledPayments(ctx context.Context, restaurantID uuid.UUID, currency string) ([]*payment.Payment, error)
	// UpdateStatus writes p's status if the stored status is still from.
	UpdateStatus(ctx context.Context, p *Payout, from Status) error

	GetRestaurant(ctx context.Context, id uuid.UUID) (*restaurant.Restaurant, error)
	ListRestaurants(ctx context.Context) ([]*restaurant.Restaurant, error)

	BeginSettlement(ctx context.Context, restaurantID uuid.UUID) (SettlementTx, error)
}

// SettlementTx holds the settlement lock of one restaurant.
type SettlementTx interface {
	// Settleable returns the restaurant's completed payments in currency and
	// period that no payout has claimed yet, locked until the end of the tx.
	Settleable(ctx context.Context, period Period, currency string) ([]*payment.Payment, error)
	CreatePayout(ctx context.Context, p *Payout) error
	// AssignPayments stamps the payments with payoutID and fails with
	// ErrWatermarkConflict if any of them was already stamped.
	AssignPayments(ctx context.Context, payoutID uuid.UUID, paymentIDs []uuid.UUID) error
	Commit() error
	Rollback() error
}

type Aggregator struct {
	repo    Repository
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAggregator(repo Repository, m *metrics.Metrics) *Aggregator {
	return &Aggregator{repo: repo, metrics: m, now: time.Now}
}

// RunSettlement creates a pending payout from the restaurant's unsettled
// completed payments in period. It returns an *EmptyPeriodError when there
// is nothing to settle.
func (a *Aggregator) RunSettlement(ctx context.Context, restaurantID uuid.UUID, period Period) (*Payout, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	r, err := a.repo.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	stx, err := a.repo.BeginSettlement(ctx, restaurantID)
	if err != nil {
		a.metrics.Settlement("error")
		return nil, fmt.Errorf("beginning settlement: %w", err)
	}
	defer stx.Rollback()

	payments, err := stx.Settleable(ctx, period, r.Currency)
	if err != nil {
		a.metrics.Settlement("error")
		return nil, fmt.Errorf("selecting payments: %w", err)
	}

	if len(payments) == 0 {
		a.metrics.Settlement("empty")
		return nil, &EmptyPeriodError{RestaurantID: restaurantID, Period: period}
	}

	totals, err := Summarize(r.Currency, payments)
	if err != nil {
		a.metrics.Settlement("error")
		return nil, fmt.Errorf("summarizing payments: %w", err)
	}

	p := New(restaurantID, period, r.BankAccountRef, totals)

	if err := stx.CreatePayout(ctx, &p); err != nil {
		a.metrics.Settlement("error")
		return nil, fmt.Errorf("creating payout: %w", err)
	}

	ids := make([]uuid.UUID, len(payments))
	for i, pay := range payments {
		ids[i] = pay.ID
	}

	if err := stx.AssignPayments(ctx, p.ID, ids); err != nil {
		a.metrics.Settlement("error")
		return nil, fmt.Errorf("assigning payments: %w", err)
	}

	if err := stx.Commit(); err != nil {
		a.metrics.Settlement("error")
		return nil, fmt.Errorf("committing settlement: %w", err)
	}

	a.metrics.Settlement("created")
	a.metrics.PayoutCreated(p.Amount.Currency, p.Amount.Amount)
	slog.Info("payout created",
		"payout_id", p.ID,
		"restaurant_id", restaurantID,
		"payments", p.PaymentCount,
		"amount", p.Amount.String(),
		"fees", p.TotalFees.String(),
		"tips", p.TotalTips.String(),
	)

	return &p, nil
}

type SettleReport struct {
	Created []*Payout
	Empty   int
	Failed  int
}

// SettleAll runs a settlement for every restaurant. One restaurant failing
// does not stop the others.
func (a *Aggregator) SettleAll(ctx context.Context, period Period) (SettleReport, error) {
	var report SettleReport

	restaurants, err := a.repo.ListRestaurants(ctx)
	if err != nil {
		return report, fmt.Errorf("listing restaurants: %w", err)
	}

	for _, r := range restaurants {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		p, err := a.RunSettlement(ctx, r.ID, period)
		switch {
		case errors.Is(err, ErrEmptyPeriod):
			report.Empty++
		case err != nil:
			report.Failed++
			slog.Error("settlement failed", "restaurant_id", r.ID, "error", err)
		default:
			report.Created = append(report.Created, p)
		}
	}

	return report, nil
}

func (a *Aggregator) MarkInTransit(ctx context.Context, id uuid.UUID) (*Payout, error) {
	return a.transition(ctx, id, StatusInTransit, "")
}

func (a *Aggregator) MarkPaid(ctx context.Context, id uuid.UUID) (*Payout, error) {
	return a.transition(ctx, id, StatusPaid, "")
}

// MarkFailed is terminal. The payout's payments stay assigned to it; moving
// the money again is an operator decision.
func (a *Aggregator) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*Payout, error) {
	if reason == "" {
		reason = "transfer_failed"
	}

	return a.transition(ctx, id, StatusFailed, reason)
}

// Mark applies a status reported by the provider.
func (a *Aggregator) Mark(ctx context.Context, id uuid.UUID, status Status, reason string) (*Payout, error) {
	switch status {
	case StatusInTransit:
		return a.MarkInTransit(ctx, id)
	case StatusPaid:
		return a.MarkPaid(ctx, id)
	case StatusFailed:
		return a.MarkFailed(ctx, id, reason)
	}

	return nil, fmt.Errorf("%w: cannot mark payout %s", ErrInvalidStatus, status)
}

// transition treats a redelivered status as a no-op.
func (a *Aggregator) transition(ctx context.Context, id uuid.UUID, to Status, reason string) (*Payout, error) {
	p, err := a.repo.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Status == to {
		return p, nil
	}

	from := p.Status
	if err := p.Transition(to, reason, a.now()); err != nil {
		return nil, err
	}

	if err := a.repo.UpdateStatus(ctx, p, from); err != nil {
		return nil, fmt.Errorf("updating payout: %w", err)
	}

	slog.Info("payout status changed", "payout_id", p.ID, "from", from, "to", to, "reason", p.FailureReason)

	return p, nil
}

func (a *Aggregator) Get(ctx context.Context, id uuid.UUID) (*Payout, error) {
	return a.repo.GetPayout(ctx, id)
}

// History lists a restaurant's payouts, newest first.
func (a *Aggregator) History(ctx context.Context, restaurantID uuid.UUID) ([]*Payout, error) {
	return a.repo.ListPayouts(ctx, restaurantID)
}

func (a *Aggregator) Payments(ctx context.Context, payoutID uuid.UUID) ([]*payment.Payment, error) {
	if _, err := a.repo.GetPayout(ctx, payoutID); err != nil {
		return nil, err
	}

	return a.repo.PayoutPayments(ctx, payoutID)
}

func (a *Aggregator) Balance(ctx context.Context, restaurantID uuid.UUID) (*Balance, error) {
	r, err := a.repo.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	unsettled, err := a.repo.UnsettledPayments(ctx, restaurantID, r.Currency)
	if err != nil {
		return nil, fmt.Errorf("listing unsettled payments: %w", err)
	}

	totals, err := Summarize(r.Currency, unsettled)
	if err != nil {
		return nil, err
	}

	payouts, err := a.repo.ListPayouts(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("listing payouts: %w", err)
	}

	b := &Balance{
		RestaurantID: restaurantID,
		Unsettled:    totals,
		Pending:      money.Zero(r.Currency),
		InTransit:    money.Zero(r.Currency),
		PaidOut:      money.Zero(r.Currency),
		Failed:       money.Zero(r.Currency),
	}

	for _, p := range payouts {
		switch p.Status {
		case StatusPending:
			b.Pending = b.Pending.Add(p.Amount)
		case StatusInTransit:
			b.InTransit = b.InTransit.Add(p.Amount)
		case StatusPaid:
			b.PaidOut = b.PaidOut.Add(p.Amount)
		case StatusFailed:
			b.Failed = b.Failed.Add(p.Amount)
		}
	}

	return b, nil
}
