package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/database"
	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
	orderStore "github.com/MrJamesThe3rd/splitpay/internal/order/store"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/refund"
	refundStore "github.com/MrJamesThe3rd/splitpay/internal/refund/store"
	"github.com/MrJamesThe3rd/splitpay/internal/split"
	splitStore "github.com/MrJamesThe3rd/splitpay/internal/split/store"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Columns is the column list ScanPayment expects, qualified with alias p.
const Columns = `
	p.id, p.transaction_id, p.order_id, p.restaurant_id, p.split_session_id, p.guest_ref,
	p.principal, p.tip, p.fee, p.currency, p.method, p.status, p.failure_reason, p.payout_id,
	p.created_at, p.updated_at, p.completed_at, p.refunded_at
`

// ScanPayment reads a row selected with Columns.
func ScanPayment(row interface{ Scan(dest ...any) error }) (*payment.Payment, error) {
	var (
		p                   payment.Payment
		principal, tip, fee int64
		currency, status    string
		failureReason       sql.NullString
	)

	if err := row.Scan(
		&p.ID, &p.TransactionID, &p.OrderID, &p.RestaurantID, &p.SplitSessionID, &p.GuestRef,
		&principal, &tip, &fee, &currency, &p.Method, &status, &failureReason, &p.PayoutID,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt, &p.RefundedAt,
	); err != nil {
		return nil, err
	}

	p.Principal = money.New(principal, currency)
	p.Tip = money.New(tip, currency)
	p.Fee = money.New(fee, currency)
	p.Status = payment.Status(status)
	p.FailureReason = failureReason.String

	return &p, nil
}

// ScanPayments drains rows selected with Columns.
func ScanPayments(rows *sql.Rows) ([]*payment.Payment, error) {
	defer rows.Close()

	var payments []*payment.Payment

	for rows.Next() {
		p, err := ScanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}

		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payments: %w", err)
	}

	return payments, nil
}

func getOne(ctx context.Context, q database.Querier, query string, args ...any) (*payment.Payment, error) {
	p, err := ScanPayment(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrNotFound
		}

		return nil, fmt.Errorf("getting payment: %w", err)
	}

	return p, nil
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return getOne(ctx, s.db, `SELECT `+Columns+` FROM payments p WHERE p.id = $1`, id)
}

func (s *Store) GetByTransactionID(ctx context.Context, transactionID string) (*payment.Payment, error) {
	return getOne(ctx, s.db, `SELECT `+Columns+` FROM payments p WHERE p.transaction_id = $1`, transactionID)
}

func (s *Store) ListPayments(ctx context.Context, filter payment.Filter) ([]*payment.Payment, error) {
	query := `SELECT ` + Columns + ` FROM payments p WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.OrderID != nil {
		query += fmt.Sprintf(" AND p.order_id = $%d", argIdx)

		args = append(args, *filter.OrderID)
		argIdx++
	}

	if filter.RestaurantID != nil {
		query += fmt.Sprintf(" AND p.restaurant_id = $%d", argIdx)

		args = append(args, *filter.RestaurantID)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND p.status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.From != nil {
		query += fmt.Sprintf(" AND p.created_at >= $%d", argIdx)

		args = append(args, *filter.From)
		argIdx++
	}

	if filter.To != nil {
		query += fmt.Sprintf(" AND p.created_at < $%d", argIdx)

		args = append(args, *filter.To)
		argIdx++
	}

	query += " ORDER BY p.created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}

	return ScanPayments(rows)
}

func (s *Store) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*payment.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+Columns+`
		FROM payments p
		WHERE p.status = $1 AND p.created_at < $2
		ORDER BY p.created_at ASC
		LIMIT $3`,
		payment.StatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("listing stale payments: %w", err)
	}

	return ScanPayments(rows)
}

// InsertPending relies on the unique transaction id: a concurrent delivery of
// the same event inserts nothing and reports false.
func (s *Store) InsertPending(ctx context.Context, p *payment.Payment) (bool, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO payments (
			transaction_id, order_id, restaurant_id, split_session_id, guest_ref,
			principal, tip, fee, currency, method, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING id, created_at, updated_at`,
		p.TransactionID, p.OrderID, p.RestaurantID, p.SplitSessionID, p.GuestRef,
		p.Principal.Amount, p.Tip.Amount, p.Fee.Amount, p.Principal.Currency, p.Method, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("inserting payment: %w", err)
	}

	return true, nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return orderStore.LoadOrder(ctx, s.db, id, false)
}

func (s *Store) ActiveSession(ctx context.Context, orderID uuid.UUID) (*split.Session, error) {
	return splitStore.LoadActiveSession(ctx, s.db, orderID)
}

type orderTx struct {
	tx    *sql.Tx
	order *order.Order
}

func (s *Store) BeginOrder(ctx context.Context, orderID uuid.UUID) (payment.OrderTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning order tx: %w", err)
	}

	o, err := orderStore.LoadOrder(ctx, tx, orderID, true)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	return &orderTx{tx: tx, order: o}, nil
}

func (t *orderTx) Order() *order.Order { return t.order }
func (t *orderTx) Commit() error       { return t.tx.Commit() }
func (t *orderTx) Rollback() error     { return t.tx.Rollback() }

func (t *orderTx) Payment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return getOne(ctx, t.tx, `SELECT `+Columns+` FROM payments p WHERE p.id = $1 AND p.order_id = $2 FOR UPDATE`, id, t.order.ID)
}

func (t *orderTx) Session(ctx context.Context, id uuid.UUID) (*split.Session, error) {
	return splitStore.LoadSession(ctx, t.tx, id)
}

func (t *orderTx) ActiveSession(ctx context.Context) (*split.Session, error) {
	return splitStore.LoadActiveSession(ctx, t.tx, t.order.ID)
}

func (t *orderTx) SaveOrder(ctx context.Context, o *order.Order) error {
	return orderStore.SaveOrder(ctx, t.tx, o)
}

func (t *orderTx) SaveSession(ctx context.Context, s *split.Session) error {
	return splitStore.SaveSession(ctx, t.tx, s)
}

func (t *orderTx) QueueRefund(ctx context.Context, cmd *refund.Command) error {
	return refundStore.InsertCommand(ctx, t.tx, cmd)
}

func (t *orderTx) SavePayment(ctx context.Context, p *payment.Payment) error {
	n, err := database.RowsAffected(t.tx.ExecContext(ctx, `
		UPDATE payments
		SET split_session_id = $1, principal = $2, tip = $3, fee = $4, status = $5,
			failure_reason = $6, completed_at = $7, refunded_at = $8, updated_at = NOW()
		WHERE id = $9 AND order_id = $10`,
		p.SplitSessionID, p.Principal.Amount, p.Tip.Amount, p.Fee.Amount, p.Status,
		nullString(p.FailureReason), p.CompletedAt, p.RefundedAt, p.ID, t.order.ID,
	))
	if err != nil {
		return fmt.Errorf("updating payment: %w", err)
	}

	if n == 0 {
		return payment.ErrNotFound
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
