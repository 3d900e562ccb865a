// Package statement renders payout statements for restaurants.
package statement

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/payout"
)

const (
	summarySheet  = "Summary"
	paymentsSheet = "Payments"
	dateLayout    = "2006-01-02 15:04"
)

// Source loads a payout and the payments settled into it.
type Source interface {
	Get(ctx context.Context, id uuid.UUID) (*payout.Payout, error)
	Payments(ctx context.Context, payoutID uuid.UUID) ([]*payment.Payment, error)
}

type Service struct {
	source Source
}

func NewService(source Source) *Service {
	return &Service{source: source}
}

// Export writes the statement of a payout to outputDir and returns the file
// path.
func (s *Service) Export(ctx context.Context, payoutID uuid.UUID, outputDir string) (string, error) {
	p, payments, err := s.load(ctx, payoutID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(outputDir, Filename(p))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	if err := Write(f, p, payments); err != nil {
		return "", err
	}

	return path, nil
}

// WriteTo streams the statement of a payout to w.
func (s *Service) WriteTo(ctx context.Context, payoutID uuid.UUID, w io.Writer) (*payout.Payout, error) {
	p, payments, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	return p, Write(w, p, payments)
}

func (s *Service) load(ctx context.Context, payoutID uuid.UUID) (*payout.Payout, []*payment.Payment, error) {
	p, err := s.source.Get(ctx, payoutID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting payout: %w", err)
	}

	payments, err := s.source.Payments(ctx, payoutID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing payout payments: %w", err)
	}

	return p, payments, nil
}

// Filename is payout_YYYYMMDD_YYYYMMDD_<id prefix>.xlsx.
func Filename(p *payout.Payout) string {
	return fmt.Sprintf("payout_%s_%s_%s.xlsx",
		p.Period.From.Format("20060102"), p.Period.To.Format("20060102"), p.ID.String()[:8])
}

// Write renders a workbook with a summary sheet and one line per payment.
func Write(w io.Writer, p *payout.Payout, payments []*payment.Payment) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("naming summary sheet: %w", err)
	}

	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("creating amount style: %w", err)
	}

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	summary := [][]any{
		{"Payout", p.ID.String()},
		{"Restaurant", p.RestaurantID.String()},
		{"Bank account", p.BankAccountRef},
		{"Period from", p.Period.From.Format(dateLayout)},
		{"Period to", p.Period.To.Format(dateLayout)},
		{"Status", string(p.Status)},
		{"Currency", p.Amount.Currency},
		{"Payments", p.PaymentCount},
		{"Gross", amount(p.Gross)},
		{"Tips", amount(p.TotalTips)},
		{"Fees", amount(p.TotalFees)},
		{"Net", amount(p.Amount)},
	}

	if p.FailureReason != "" {
		summary = append(summary, []any{"Failure reason", p.FailureReason})
	}

	for i, row := range summary {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}

	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), boldStyle); err != nil {
		return fmt.Errorf("styling summary: %w", err)
	}

	if err := f.SetCellStyle(summarySheet, "B9", "B12", amountStyle); err != nil {
		return fmt.Errorf("styling summary: %w", err)
	}

	if err := f.SetColWidth(summarySheet, "A", "B", 40); err != nil {
		return fmt.Errorf("sizing summary: %w", err)
	}

	if _, err := f.NewSheet(paymentsSheet); err != nil {
		return fmt.Errorf("creating payments sheet: %w", err)
	}

	headers := []any{"Completed at", "Transaction", "Order", "Guest", "Method", "Principal", "Tip", "Fee", "Net"}
	if err := setRow(f, paymentsSheet, 1, headers); err != nil {
		return err
	}

	if err := f.SetCellStyle(paymentsSheet, "A1", "I1", boldStyle); err != nil {
		return fmt.Errorf("styling headers: %w", err)
	}

	for i, pay := range payments {
		completedAt := ""
		if pay.CompletedAt != nil {
			completedAt = pay.CompletedAt.Format(dateLayout)
		}

		row := []any{
			completedAt,
			pay.TransactionID,
			pay.OrderID.String(),
			pay.GuestRef,
			pay.Method,
			amount(pay.Principal),
			amount(pay.Tip),
			amount(pay.Fee),
			amount(pay.Net()),
		}

		if err := setRow(f, paymentsSheet, i+2, row); err != nil {
			return err
		}
	}

	totalRow := len(payments) + 2
	totals := []any{"Total", "", "", "", "", amount(p.Gross), amount(p.TotalTips), amount(p.TotalFees), amount(p.Amount)}

	if err := setRow(f, paymentsSheet, totalRow, totals); err != nil {
		return err
	}

	if err := f.SetCellStyle(paymentsSheet, "F2", fmt.Sprintf("I%d", totalRow), amountStyle); err != nil {
		return fmt.Errorf("styling amounts: %w", err)
	}

	if err := f.SetColWidth(paymentsSheet, "A", "E", 20); err != nil {
		return fmt.Errorf("sizing payments: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}

	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, row, err)
	}

	return nil
}

// amount is a major-unit number for a spreadsheet cell. Cells are display
// only; totals come from the payout, never from summing cells.
func amount(m money.Money) float64 {
	return m.Decimal().InexactFloat64()
}

// RemittanceText is a plain text advice listing the payments of a payout,
// one per line.
func RemittanceText(p *payout.Payout, payments []*payment.Payment) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Payout %s | %s to %s | net %s\n",
		p.ID, p.Period.From.Format("2006-01-02"), p.Period.To.Format("2006-01-02"), p.Amount)

	for _, pay := range payments {
		date := ""
		if pay.CompletedAt != nil {
			date = pay.CompletedAt.Format("2006-01-02")
		}

		fmt.Fprintf(&sb, "* %s | %s | %s + tip %s - fee %s = %s\n",
			date, pay.TransactionID, pay.Principal, pay.Tip, pay.Fee, pay.Net())
	}

	return sb.String()
}
