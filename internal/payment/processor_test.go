package payment_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/splitpay/internal/metrics"
	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/refund"
	"github.com/MrJamesThe3rd/splitpay/internal/split"
)

func eur(cents int64) money.Money {
	return money.New(cents, "EUR")
}

type fixture struct {
	store     *memStore
	processor *payment.Processor
	registry  *prometheus.Registry
}

func newFixture(fees payment.FeeSchedule) *fixture {
	reg := prometheus.NewRegistry()
	store := newMemStore()

	return &fixture{
		store:     store,
		processor: payment.NewProcessor(store, fees, metrics.New(reg)),
		registry:  reg,
	}
}

func (f *fixture) openOrder(total int64, items ...order.Item) order.Order {
	return f.store.addOrder(order.Order{
		RestaurantID: uuid.New(),
		TableID:      "T7",
		Total:        eur(total),
		Items:        items,
		Status:       order.StatusOpen,
	})
}

func event(txID string, orderID uuid.UUID, principal int64, outcome payment.Outcome) payment.ProviderEvent {
	return payment.ProviderEvent{
		TransactionID: txID,
		OrderID:       orderID,
		Principal:     principal,
		Currency:      "EUR",
		Method:        "card",
		Outcome:       outcome,
		Fee:           new(int64(0)),
	}
}

func (f *fixture) counter(t *testing.T, name, label, value string) float64 {
	t.Helper()

	families, err := f.registry.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}

		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}

	return 0
}

func TestIngest_FullPayment(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	o := f.openOrder(4550)

	ev := event("TRX-100", o.ID, 4550, payment.OutcomeCompleted)
	ev.Fee = new(int64(70))

	res, err := f.processor.Ingest(context.Background(), ev)
	require.NoError(t, err)

	assert.False(t, res.Replayed)
	assert.Equal(t, payment.StatusCompleted, res.Payment.Status)
	assert.Equal(t, eur(70), res.Payment.Fee)
	assert.Equal(t, eur(4550), res.Payment.TotalCharged())
	assert.Equal(t, eur(4480), res.Payment.Net())
	assert.NotNil(t, res.Payment.CompletedAt)

	stored := f.store.order(o.ID)
	assert.Equal(t, order.StatusPaid, stored.Status)
	assert.True(t, order.Remaining(stored).IsZero())
	assert.Empty(t, f.store.refundCommands())
}

func TestIngest_ReplayDoesNotApplyTwice(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	o := f.openOrder(6000)

	ev := event("TRX-1", o.ID, 2000, payment.OutcomeCompleted)

	first, err := f.processor.Ingest(context.Background(), ev)
	require.NoError(t, err)

	second, err := f.processor.Ingest(context.Background(), ev)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, first.Payment.Status, second.Payment.Status)
	assert.Equal(t, first.Payment.CompletedAt, second.Payment.CompletedAt)

	stored := f.store.order(o.ID)
	assert.Len(t, stored.Entries, 1)
	assert.Equal(t, eur(2000), order.Paid(stored))
	assert.Equal(t, float64(1), f.counter(t, "splitpay_payments_ingested_total", "replayed", "true"))
}

func TestIngest_PendingThenCompleted(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	o := f.openOrder(3000)

	pending, err := f.processor.Ingest(context.Background(), event("TRX-2", o.ID, 3000, payment.OutcomePending))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, pending.Payment.Status)
	assert.True(t, order.Paid(f.store.order(o.ID)).IsZero())

	again, err := f.processor.Ingest(context.Background(), event("TRX-2", o.ID, 3000, payment.OutcomePending))
	require.NoError(t, err)
	assert.True(t, again.Replayed)

	done, err := f.processor.Ingest(context.Background(), event("TRX-2", o.ID, 3000, payment.OutcomeCompleted))
	require.NoError(t, err)
	assert.Equal(t, pending.Payment.ID, done.Payment.ID)
	assert.Equal(t, payment.StatusCompleted, done.Payment.Status)
	assert.Equal(t, order.StatusPaid, f.store.order(o.ID).Status)
}

func TestIngest_FeeSchedule(t *testing.T) {
	f := newFixture(payment.FeeSchedule{BasisPoints: 150, Fixed: 10})
	o := f.openOrder(4550)

	ev := event("TRX-3", o.ID, 4550, payment.OutcomeCompleted)
	ev.Tip = 500
	ev.Fee = nil

	res, err := f.processor.Ingest(context.Background(), ev)
	require.NoError(t, err)

	// 1.5% of 50.50 is 0.7575, rounded to 0.76, plus 0.10 fixed.
	assert.Equal(t, eur(86), res.Payment.Fee)
	assert.Equal(t, eur(5050), res.Payment.TotalCharged())
	assert.Equal(t, eur(4964), res.Payment.Net())
}

func TestIngest_InvalidEvents(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	o := f.openOrder(1000)

	type testCase struct {
		name    string
		mutate  func(ev *payment.ProviderEvent)
		wantErr error
	}

	tests := []testCase{
		{name: "MissingTransaction", mutate: func(ev *payment.ProviderEvent) { ev.TransactionID = "" }, wantErr: payment.ErrInvalidEvent},
		{name: "ZeroPrincipal", mutate: func(ev *payment.ProviderEvent) { ev.Principal = 0 }, wantErr: payment.ErrInvalidEvent},
		{name: "NegativeTip", mutate: func(ev *payment.ProviderEvent) { ev.Tip = -1 }, wantErr: payment.ErrInvalidEvent},
		{name: "UnknownOutcome", mutate: func(ev *payment.ProviderEvent) { ev.Outcome = "maybe" }, wantErr: payment.ErrInvalidEvent},
		{name: "CurrencyMismatch", mutate: func(ev *payment.ProviderEvent) { ev.Currency = "USD" }, wantErr: payment.ErrInvalidEvent},
		{name: "UnknownOrder", mutate: func(ev *payment.ProviderEvent) { ev.OrderID = uuid.New() }, wantErr: order.ErrNotFound},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := event(fmt.Sprintf("TRX-BAD-%d", i), o.ID, 500, payment.OutcomeCompleted)
			tt.mutate(&ev)

			_, err := f.processor.Ingest(context.Background(), ev)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.True(t, order.Paid(f.store.order(o.ID)).IsZero())
}

func TestIngest_TransactionReusedForOtherOrder(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	a := f.openOrder(1000)
	b := f.openOrder(1000)

	_, err := f.processor.Ingest(context.Background(), event("TRX-4", a.ID, 1000, payment.OutcomeCompleted))
	require.NoError(t, err)

	_, err = f.processor.Ingest(context.Background(), event("TRX-4", b.ID, 1000, payment.OutcomeCompleted))
	assert.ErrorIs(t, err, payment.ErrInvalidEvent)
	assert.True(t, order.Paid(f.store.order(b.ID)).IsZero())
}

func TestConfirm_ConcurrentLastShare(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	o := f.openOrder(4000)

	_, err := f.processor.Ingest(context.Background(), event("TRX-FIRST", o.ID, 2000, payment.OutcomeCompleted))
	require.NoError(t, err)

	var ids []uuid.UUID

	for _, txID := range []string{"TRX-A", "TRX-B"} {
		res, err := f.processor.Ingest(context.Background(), event(txID, o.ID, 2000, payment.OutcomePending))
		require.NoError(t, err)

		ids = append(ids, res.Payment.ID)
	}

	var (
		wg      sync.WaitGroup
		results = make([]*payment.Result, len(ids))
		errs    = make([]error, len(ids))
	)

	for i, id := range ids {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i], errs[i] = f.processor.Confirm(context.Background(), id, payment.Breakdown{Principal: 2000, Fee: new(int64(30))})
		}()
	}

	wg.Wait()

	var succeeded, overpaid int

	for i := range ids {
		if errs[i] == nil {
			succeeded++

			assert.Equal(t, payment.StatusCompleted, results[i].Payment.Status)

			continue
		}

		overpaid++

		var overpay *order.OverpaymentError
		require.ErrorAs(t, errs[i], &overpay)
		assert.Equal(t, payment.StatusFailed, results[i].Payment.Status)
		assert.Equal(t, payment.ReasonOrderFullyPaid, results[i].Payment.FailureReason)
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, overpaid)

	stored := f.store.order(o.ID)
	assert.Equal(t, order.StatusPaid, stored.Status)
	assert.Equal(t, stored.Total, order.Paid(stored))

	cmds := f.store.refundCommands()
	require.Len(t, cmds, 1)
	assert.Equal(t, eur(2000), cmds[0].Amount)
	assert.Equal(t, payment.ReasonOrderFullyPaid, cmds[0].Reason)
	assert.Equal(t, refund.StatusPending, cmds[0].Status)

	assert.Equal(t, float64(1), f.counter(t, "splitpay_payments_rejected_total", "reason", payment.ReasonOrderFullyPaid))
}

func TestConfirm_ClosedOrder(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	o := f.store.addOrder(order.Close(order.Order{ID: uuid.New(), Total: eur(1000), Status: order.StatusOpen}, time.Now()))

	ev := event("TRX-5", o.ID, 1000, payment.OutcomeCompleted)
	ev.Tip = 150

	res, err := f.processor.Ingest(context.Background(), ev)
	assert.ErrorIs(t, err, order.ErrOrderClosed)
	require.NotNil(t, res)
	assert.Equal(t, payment.ReasonOrderClosed, res.Payment.FailureReason)

	cmds := f.store.refundCommands()
	require.Len(t, cmds, 1)
	assert.Equal(t, eur(1150), cmds[0].Amount, "the diner gets principal and tip back")

	replay, err := f.processor.Ingest(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Len(t, f.store.refundCommands(), 1)
}

func TestFail(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	o := f.openOrder(1000)

	ev := event("TRX-6", o.ID, 1000, payment.OutcomeFailed)
	ev.FailureReason = "card_declined"

	res, err := f.processor.Ingest(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, res.Payment.Status)
	assert.Equal(t, "card_declined", res.Payment.FailureReason)
	assert.True(t, order.Paid(f.store.order(o.ID)).IsZero())

	_, err = f.processor.Confirm(context.Background(), res.Payment.ID, payment.Breakdown{Principal: 1000})
	assert.ErrorIs(t, err, payment.ErrIllegalTransition)

	_, err = f.processor.Refund(context.Background(), res.Payment.ID, payment.RefundPolicy{})
	assert.ErrorIs(t, err, payment.ErrIllegalTransition)

	again, err := f.processor.Fail(context.Background(), res.Payment.ID, "")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
}

func TestFail_CompletedIsIllegal(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	o := f.openOrder(1000)

	res, err := f.processor.Ingest(context.Background(), event("TRX-7", o.ID, 1000, payment.OutcomeCompleted))
	require.NoError(t, err)

	_, err = f.processor.Fail(context.Background(), res.Payment.ID, "late decline")

	var illegal *payment.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, payment.StatusCompleted, illegal.From)
	assert.Equal(t, payment.StatusFailed, illegal.To)
}

func TestRefund(t *testing.T) {
	type testCase struct {
		name       string
		policy     payment.RefundPolicy
		wantAmount int64
	}

	tests := []testCase{
		{name: "PrincipalOnly", policy: payment.RefundPolicy{}, wantAmount: 2500},
		{name: "WithTip", policy: payment.RefundPolicy{Tip: true}, wantAmount: 2800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(payment.FeeSchedule{})
			o := f.openOrder(2500)

			ev := event("TRX-8", o.ID, 2500, payment.OutcomeCompleted)
			ev.Tip = 300

			paid, err := f.processor.Ingest(context.Background(), ev)
			require.NoError(t, err)
			require.Equal(t, order.StatusPaid, f.store.order(o.ID).Status)

			res, err := f.processor.Refund(context.Background(), paid.Payment.ID, tt.policy)
			require.NoError(t, err)
			assert.Equal(t, payment.StatusRefunded, res.Payment.Status)
			assert.NotNil(t, res.Payment.RefundedAt)

			stored := f.store.order(o.ID)
			assert.Equal(t, order.StatusOpen, stored.Status)
			assert.Equal(t, eur(2500), order.Remaining(stored))
			assert.Len(t, stored.Entries, 2)

			cmds := f.store.refundCommands()
			require.Len(t, cmds, 1)
			assert.Equal(t, eur(tt.wantAmount), cmds[0].Amount)
			assert.Equal(t, payment.ReasonRefunded, cmds[0].Reason)

			again, err := f.processor.Refund(context.Background(), paid.Payment.ID, tt.policy)
			require.NoError(t, err)
			assert.True(t, again.Replayed)
			assert.Len(t, f.store.refundCommands(), 1)
		})
	}
}

func TestRefund_PendingIsIllegal(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	o := f.openOrder(1000)

	res, err := f.processor.Ingest(context.Background(), event("TRX-9", o.ID, 1000, payment.OutcomePending))
	require.NoError(t, err)

	_, err = f.processor.Refund(context.Background(), res.Payment.ID, payment.RefundPolicy{})
	assert.ErrorIs(t, err, payment.ErrIllegalTransition)
}

func TestConfirm_EqualSplitSession(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	o := f.openOrder(10000)

	sess, err := split.Open(o, split.KindEqual, 3, time.Now())
	require.NoError(t, err)

	for _, guest := range []string{"ana", "rui", "eva"} {
		sess, err = split.RecordGuestShare(sess, o, guest, eur(0))
		require.NoError(t, err)
	}

	sess = f.store.addSession(sess)

	ev := event("TRX-GREEDY", o.ID, 3334, payment.OutcomeCompleted)
	ev.GuestRef = "rui"

	_, err = f.processor.Ingest(context.Background(), ev)
	assert.ErrorIs(t, err, payment.ErrShareExceeded, "rui owes 33.33")

	shares := map[string]int64{"ana": 3334, "rui": 3333, "eva": 3333}
	for guest, amount := range shares {
		ev := event("TRX-"+guest, o.ID, amount, payment.OutcomeCompleted)
		ev.GuestRef = guest
		ev.SessionID = &sess.ID

		res, err := f.processor.Ingest(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, *res.Payment.SplitSessionID)
	}

	stored := f.store.order(o.ID)
	assert.Equal(t, order.StatusPaid, stored.Status)
	assert.Equal(t, eur(10000), order.Paid(stored))

	final := f.store.session(sess.ID)
	assert.False(t, final.Active)
	assert.True(t, final.Paid["ana"])
	assert.True(t, final.Paid["rui"])
	assert.True(t, final.Paid["eva"])

	cmds := f.store.refundCommands()
	require.Len(t, cmds, 1)
	assert.Equal(t, payment.ReasonShareExceeded, cmds[0].Reason)
}

func TestConfirm_CustomShareInParts(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	o := f.openOrder(10000)

	sess, err := split.Open(o, split.KindCustom, 0, time.Now())
	require.NoError(t, err)

	sess, err = split.RecordGuestShare(sess, o, "ana", eur(6000))
	require.NoError(t, err)

	sess, err = split.RecordGuestShare(sess, o, "rui", eur(4000))
	require.NoError(t, err)

	sess = f.store.addSession(sess)

	guestEvent := func(txID string, principal int64) payment.ProviderEvent {
		ev := event(txID, o.ID, principal, payment.OutcomeCompleted)
		ev.GuestRef = "ana"

		return ev
	}

	first, err := f.processor.Ingest(context.Background(), guestEvent("TRX-ANA-1", 3000))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, first.Payment.Status)
	assert.False(t, f.store.session(sess.ID).Paid["ana"])
	assert.Equal(t, eur(3000), f.store.session(sess.ID).PaidBy("ana"))

	_, err = f.processor.Ingest(context.Background(), guestEvent("TRX-ANA-OVER", 3001))
	assert.ErrorIs(t, err, payment.ErrShareExceeded, "ana only owes 30.00 more")

	second, err := f.processor.Ingest(context.Background(), guestEvent("TRX-ANA-2", 3000))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, second.Payment.Status)

	stored := f.store.order(o.ID)
	assert.Equal(t, order.StatusPartiallyPaid, stored.Status)
	assert.Equal(t, eur(4000), order.Remaining(stored))

	current := f.store.session(sess.ID)
	assert.True(t, current.Active)
	assert.True(t, current.Paid["ana"])
	assert.Equal(t, eur(6000), current.PaidBy("ana"))

	cmds := f.store.refundCommands()
	require.Len(t, cmds, 1, "only the overpayment is refunded")
	assert.Equal(t, payment.ReasonShareExceeded, cmds[0].Reason)

	_, err = f.processor.Refund(context.Background(), first.Payment.ID, payment.RefundPolicy{})
	require.NoError(t, err)

	current = f.store.session(sess.ID)
	assert.False(t, current.Paid["ana"])
	assert.Equal(t, eur(3000), current.PaidBy("ana"))

	again, err := f.processor.Ingest(context.Background(), guestEvent("TRX-ANA-3", 3000))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, again.Payment.Status)
	assert.True(t, f.store.session(sess.ID).Paid["ana"])
}

func TestConfirm_ItemsSession(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})

	wine := order.Item{ID: uuid.New(), Name: "Wine", UnitPrice: eur(2400), Quantity: 1}
	fish := order.Item{ID: uuid.New(), Name: "Fish", UnitPrice: eur(1800), Quantity: 2}
	o := f.openOrder(6000, wine, fish)

	sess, err := split.Open(o, split.KindItems, 0, time.Now())
	require.NoError(t, err)

	sess, err = split.AssignItem(sess, o, wine.ID, "ana")
	require.NoError(t, err)

	sess, err = split.AssignItem(sess, o, fish.ID, "rui")
	require.NoError(t, err)

	sess = f.store.addSession(sess)

	ev := event("TRX-ANA", o.ID, 2400, payment.OutcomeCompleted)
	ev.GuestRef = "ana"

	paid, err := f.processor.Ingest(context.Background(), ev)
	require.NoError(t, err)

	stored := f.store.order(o.ID)
	assert.True(t, stored.Items[0].Paid)
	assert.False(t, stored.Items[1].Paid)
	assert.True(t, f.store.session(sess.ID).Paid["ana"])

	_, err = f.processor.Refund(context.Background(), paid.Payment.ID, payment.RefundPolicy{})
	require.NoError(t, err)

	stored = f.store.order(o.ID)
	assert.False(t, stored.Items[0].Paid)
	assert.False(t, f.store.session(sess.ID).Paid["ana"])
	assert.Equal(t, order.StatusOpen, stored.Status)
}

func TestSweepStale(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	o := f.openOrder(5000)

	stale, err := f.processor.Ingest(context.Background(), event("TRX-STALE", o.ID, 1000, payment.OutcomePending))
	require.NoError(t, err)

	_, err = f.processor.Ingest(context.Background(), event("TRX-DONE", o.ID, 1000, payment.OutcomeCompleted))
	require.NoError(t, err)

	swept, err := f.processor.SweepStale(context.Background(), time.Now().Add(time.Minute), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := f.processor.Get(context.Background(), stale.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, got.Status)
	assert.Equal(t, payment.ReasonProviderTimeout, got.FailureReason)

	swept, err = f.processor.SweepStale(context.Background(), time.Now().Add(time.Minute), 100)
	require.NoError(t, err)
	assert.Zero(t, swept)
}

func TestSummary(t *testing.T) {
	f := newFixture(payment.FeeSchedule{})
	o := f.openOrder(6780)

	for i, share := range money.New(6780, "EUR").Split(4)[:2] {
		ev := event(fmt.Sprintf("TRX-S%d", i), o.ID, share.Amount, payment.OutcomeCompleted)
		ev.Tip = 100
		ev.Fee = new(int64(25))

		_, err := f.processor.Ingest(context.Background(), ev)
		require.NoError(t, err)
	}

	_, err := f.processor.Ingest(context.Background(), event("TRX-S-FAIL", o.ID, 1695, payment.OutcomeFailed))
	require.NoError(t, err)

	sum, err := f.processor.Summary(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, eur(3390), sum.Paid)
	assert.Equal(t, eur(3390), sum.Remaining)
	assert.Equal(t, "50", sum.Progress.String())
	assert.Equal(t, eur(200), sum.Tips)
	assert.Equal(t, eur(50), sum.Fees)
	assert.Len(t, sum.Payments, 3)
	assert.Nil(t, sum.Session)
	assert.Equal(t, sum.Order.Total, sum.Paid.Add(sum.Remaining))
}
