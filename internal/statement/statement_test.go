package statement_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/payout"
	"github.com/MrJamesThe3rd/splitpay/internal/statement"
)

type fakeSource struct {
	payout   *payout.Payout
	payments []*payment.Payment
}

func (s fakeSource) Get(_ context.Context, id uuid.UUID) (*payout.Payout, error) {
	if s.payout == nil || s.payout.ID != id {
		return nil, payout.ErrNotFound
	}

	return s.payout, nil
}

func (s fakeSource) Payments(_ context.Context, _ uuid.UUID) ([]*payment.Payment, error) {
	return s.payments, nil
}

func fixture() (*payout.Payout, []*payment.Payment) {
	eur := func(c int64) money.Money { return money.New(c, "EUR") }
	from := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	completedAt := from.Add(20 * time.Hour)

	payments := []*payment.Payment{
		{TransactionID: "TRX-100", OrderID: uuid.New(), GuestRef: "ana", Method: "card",
			Principal: eur(4550), Tip: eur(0), Fee: eur(70), Status: payment.StatusCompleted, CompletedAt: &completedAt},
		{TransactionID: "TRX-101", OrderID: uuid.New(), Method: "mbway",
			Principal: eur(2000), Tip: eur(300), Fee: eur(35), Status: payment.StatusCompleted, CompletedAt: &completedAt},
	}

	p := &payout.Payout{
		ID:             uuid.New(),
		RestaurantID:   uuid.New(),
		Period:         payout.Period{From: from, To: from.Add(7 * 24 * time.Hour)},
		Gross:          eur(6550),
		TotalTips:      eur(300),
		TotalFees:      eur(105),
		Amount:         eur(6745),
		PaymentCount:   2,
		Status:         payout.StatusPending,
		BankAccountRef: "PT50-0001",
	}

	return p, payments
}

func TestWrite(t *testing.T) {
	p, payments := fixture()

	var buf bytes.Buffer
	require.NoError(t, statement.Write(&buf, p, payments))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Payments"}, f.GetSheetList())

	net, err := f.GetCellValue("Summary", "B12", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "67.45", net)

	bank, err := f.GetCellValue("Summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "PT50-0001", bank)

	rows, err := f.GetRows("Payments", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, []string{"Completed at", "Transaction", "Order", "Guest", "Method", "Principal", "Tip", "Fee", "Net"}, rows[0])
	assert.Equal(t, "TRX-100", rows[1][1])
	assert.Equal(t, "ana", rows[1][3])
	assert.Equal(t, "45.5", rows[1][5])
	assert.Equal(t, "44.8", rows[1][8])
	assert.Equal(t, "22.65", rows[2][8])
	assert.Equal(t, "Total", rows[3][0])
	assert.Equal(t, "67.45", rows[3][8])
}

func TestService_Export(t *testing.T) {
	p, payments := fixture()
	svc := statement.NewService(fakeSource{payout: p, payments: payments})

	dir := filepath.Join(t.TempDir(), "statements")

	path, err := svc.Export(context.Background(), p.ID, dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, statement.Filename(p)), path)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "payout_20260309_20260316_"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	_, err = svc.Export(context.Background(), uuid.New(), dir)
	assert.True(t, errors.Is(err, payout.ErrNotFound))
}

func TestRemittanceText(t *testing.T) {
	p, payments := fixture()

	text := statement.RemittanceText(p, payments)
	lines := strings.Split(strings.TrimSpace(text), "\n")

	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "net 67.45 EUR")
	assert.Equal(t, "* 2026-03-09 | TRX-100 | 45.50 EUR + tip 0.00 EUR - fee 0.70 EUR = 44.80 EUR", lines[1])
	assert.Equal(t, "* 2026-03-09 | TRX-101 | 20.00 EUR + tip 3.00 EUR - fee 0.35 EUR = 22.65 EUR", lines[2])
}
