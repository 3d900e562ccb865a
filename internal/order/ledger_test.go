package order_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
)

var at = time.Date(2026, 3, 14, 20, 30, 0, 0, time.UTC)

func eur(cents int64) money.Money {
	return money.New(cents, "EUR")
}

func newOrder(total int64) order.Order {
	return order.Order{
		ID:     uuid.New(),
		Total:  eur(total),
		Status: order.StatusOpen,
	}
}

func assertBalanced(t *testing.T, o order.Order) {
	t.Helper()

	paid := order.Paid(o)
	remaining := order.Remaining(o)

	assert.Equal(t, o.Total, paid.Add(remaining))
	assert.False(t, remaining.IsNegative())
}

func TestApplyPayment(t *testing.T) {
	type testCase struct {
		name       string
		total      int64
		credits    []int64
		wantErr    error
		wantStatus order.Status
		wantPaid   int64
	}

	tests := []testCase{
		{name: "FullPayment", total: 4550, credits: []int64{4550}, wantStatus: order.StatusPaid, wantPaid: 4550},
		{name: "Partial", total: 6780, credits: []int64{1695, 1695}, wantStatus: order.StatusPartiallyPaid, wantPaid: 3390},
		{name: "ExactRemainder", total: 10000, credits: []int64{3334, 3333, 3333}, wantStatus: order.StatusPaid, wantPaid: 10000},
		{name: "Overpayment", total: 2000, credits: []int64{1500, 1000}, wantErr: order.ErrOverpayment, wantStatus: order.StatusPartiallyPaid, wantPaid: 1500},
		{name: "ZeroPrincipal", total: 2000, credits: []int64{0}, wantErr: order.ErrInvalid, wantStatus: order.StatusOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrder(tt.total)

			var err error

			for _, c := range tt.credits {
				var next order.Order

				next, err = order.ApplyPayment(o, order.Credit{PaymentID: uuid.New(), Principal: eur(c), At: at})
				if err != nil {
					break
				}

				o = next
				assertBalanced(t, o)
			}

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.wantStatus, o.Status)
			assert.Equal(t, tt.wantPaid, order.Paid(o).Amount)
			assertBalanced(t, o)
		})
	}
}

func TestApplyPayment_OverpaymentErrorCarriesAmounts(t *testing.T) {
	o := newOrder(2000)

	o, err := order.ApplyPayment(o, order.Credit{PaymentID: uuid.New(), Principal: eur(2000), At: at})
	require.NoError(t, err)

	_, err = order.ApplyPayment(o, order.Credit{PaymentID: uuid.New(), Principal: eur(2000), At: at})

	var overpay *order.OverpaymentError
	require.ErrorAs(t, err, &overpay)
	assert.Equal(t, eur(2000), overpay.Paid)
	assert.Equal(t, eur(2000), overpay.Principal)
	assert.Equal(t, o.ID, overpay.OrderID)
}

func TestApplyPayment_DoesNotMutateInput(t *testing.T) {
	o := newOrder(2000)

	next, err := order.ApplyPayment(o, order.Credit{PaymentID: uuid.New(), Principal: eur(500), At: at})
	require.NoError(t, err)

	assert.Empty(t, o.Entries)
	assert.Equal(t, order.StatusOpen, o.Status)
	assert.Len(t, next.Entries, 1)
}

func TestApplyPayment_Rejections(t *testing.T) {
	paymentID := uuid.New()

	o, err := order.ApplyPayment(newOrder(2000), order.Credit{PaymentID: paymentID, Principal: eur(500), At: at})
	require.NoError(t, err)

	_, err = order.ApplyPayment(o, order.Credit{PaymentID: paymentID, Principal: eur(500), At: at})
	assert.ErrorIs(t, err, order.ErrDuplicateEntry)

	_, err = order.ApplyPayment(o, order.Credit{PaymentID: uuid.New(), Principal: money.New(500, "USD"), At: at})
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)

	closed := order.Close(o, at)
	_, err = order.ApplyPayment(closed, order.Credit{PaymentID: uuid.New(), Principal: eur(500), At: at})
	assert.ErrorIs(t, err, order.ErrOrderClosed)
}

func TestReversePayment(t *testing.T) {
	first, second := uuid.New(), uuid.New()

	o := newOrder(4000)
	o, err := order.ApplyPayment(o, order.Credit{PaymentID: first, Principal: eur(2000), At: at})
	require.NoError(t, err)
	o, err = order.ApplyPayment(o, order.Credit{PaymentID: second, Principal: eur(2000), At: at})
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, o.Status)

	o, err = order.ReversePayment(o, second, at)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPartiallyPaid, o.Status)
	assert.Equal(t, int64(2000), order.Remaining(o).Amount)
	assertBalanced(t, o)

	_, err = order.ReversePayment(o, second, at)
	assert.ErrorIs(t, err, order.ErrAlreadyReversed)

	_, err = order.ReversePayment(o, uuid.New(), at)
	assert.ErrorIs(t, err, order.ErrNoCredit)

	o, err = order.ReversePayment(o, first, at)
	require.NoError(t, err)
	assert.Equal(t, order.StatusOpen, o.Status)
	assert.Len(t, o.Entries, 4)
}

func TestReversePayment_ClosedStaysClosed(t *testing.T) {
	paymentID := uuid.New()

	o, err := order.ApplyPayment(newOrder(1000), order.Credit{PaymentID: paymentID, Principal: eur(1000), At: at})
	require.NoError(t, err)

	o = order.Close(o, at)

	o, err = order.ReversePayment(o, paymentID, at)
	require.NoError(t, err)
	assert.Equal(t, order.StatusClosed, o.Status)
	assert.Equal(t, int64(1000), order.Remaining(o).Amount)
}

func TestProgress(t *testing.T) {
	type testCase struct {
		name  string
		total int64
		paid  int64
		want  string
	}

	tests := []testCase{
		{name: "Unpaid", total: 4550, want: "0"},
		{name: "Half", total: 4000, paid: 2000, want: "50"},
		{name: "Third", total: 10000, paid: 3334, want: "33.34"},
		{name: "Full", total: 4550, paid: 4550, want: "100"},
		{name: "ZeroTotal", total: 0, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrder(tt.total)
			if tt.paid > 0 {
				var err error

				o, err = order.ApplyPayment(o, order.Credit{PaymentID: uuid.New(), Principal: eur(tt.paid), At: at})
				require.NoError(t, err)
			}

			assert.True(t, decimal.RequireFromString(tt.want).Equal(order.Progress(o)), "got %s", order.Progress(o))
		})
	}
}

func TestMarkItemsPaid(t *testing.T) {
	wine, fish := uuid.New(), uuid.New()

	o := newOrder(3000)
	o.Items = []order.Item{
		{ID: wine, Name: "Wine", UnitPrice: eur(1000), Quantity: 1},
		{ID: fish, Name: "Fish", UnitPrice: eur(1000), Quantity: 2},
	}

	paid, err := order.MarkItemsPaid(o, []uuid.UUID{fish})
	require.NoError(t, err)
	assert.False(t, o.Items[1].Paid, "input must not change")
	assert.True(t, paid.Items[1].Paid)
	assert.False(t, paid.Items[0].Paid)

	unpaid, err := order.UnmarkItemsPaid(paid, []uuid.UUID{fish})
	require.NoError(t, err)
	assert.False(t, unpaid.Items[1].Paid)

	_, err = order.MarkItemsPaid(o, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, order.ErrItemNotFound)

	assert.Equal(t, eur(2000), o.Items[1].Total())
}

func TestClose_Idempotent(t *testing.T) {
	o := order.Close(newOrder(1000), at)
	require.Equal(t, order.StatusClosed, o.Status)

	again := order.Close(o, at.Add(time.Hour))
	assert.Equal(t, at, *again.ClosedAt)
}
