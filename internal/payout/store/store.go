package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/database"
	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	paymentStore "github.com/MrJamesThe3rd/splitpay/internal/payment/store"
	"github.com/MrJamesThe3rd/splitpay/internal/payout"
	"github.com/MrJamesThe3rd/splitpay/internal/restaurant"
	restaurantStore "github.com/MrJamesThe3rd/splitpay/internal/restaurant/store"
)

type Store struct {
	db          *sql.DB
	restaurants *restaurantStore.Store
}

func New(db *sql.DB) *Store {
	return &Store{db: db, restaurants: restaurantStore.New(db)}
}

const selectPayoutColumns = `
	id, restaurant_id, period_from, period_to, gross, total_tips, total_fees, amount,
	payment_count, currency, status, failure_reason, bank_account_ref, created_at, updated_at
`

func scanPayout(row interface{ Scan(dest ...any) error }) (*payout.Payout, error) {
	var (
		p                         payout.Payout
		gross, tips, fees, amount int64
		currency, status          string
		failureReason             sql.NullString
	)

	if err := row.Scan(
		&p.ID, &p.RestaurantID, &p.Period.From, &p.Period.To, &gross, &tips, &fees, &amount,
		&p.PaymentCount, &currency, &status, &failureReason, &p.BankAccountRef, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.Gross = money.New(gross, currency)
	p.TotalTips = money.New(tips, currency)
	p.TotalFees = money.New(fees, currency)
	p.Amount = money.New(amount, currency)
	p.Status = payout.Status(status)
	p.FailureReason = failureReason.String

	return &p, nil
}

func (s *Store) GetPayout(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	query := `SELECT ` + selectPayoutColumns + ` FROM payouts WHERE id = $1`

	p, err := scanPayout(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payout.ErrNotFound
		}

		return nil, fmt.Errorf("getting payout: %w", err)
	}

	return p, nil
}

func (s *Store) ListPayouts(ctx context.Context, restaurantID uuid.UUID) ([]*payout.Payout, error) {
	query := `SELECT ` + selectPayoutColumns + `
		FROM payouts
		WHERE restaurant_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("listing payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*payout.Payout

	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payout: %w", err)
		}

		payouts = append(payouts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payouts: %w", err)
	}

	return payouts, nil
}

func (s *Store) PayoutPayments(ctx context.Context, payoutID uuid.UUID) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentStore.Columns + `
		FROM payments p
		WHERE p.payout_id = $1
		ORDER BY p.completed_at ASC`

	rows, err := s.db.QueryContext(ctx, query, payoutID)
	if err != nil {
		return nil, fmt.Errorf("listing payout payments: %w", err)
	}

	return paymentStore.ScanPayments(rows)
}

func (s *Store) UnsettledPayments(ctx context.Context, restaurantID uuid.UUID, currency string) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentStore.Columns + `
		FROM payments p
		WHERE p.restaurant_id = $1 AND p.currency = $2 AND p.status = $3 AND p.payout_id IS NULL
		ORDER BY p.completed_at ASC`

	rows, err := s.db.QueryContext(ctx, query, restaurantID, currency, string(payment.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("listing unsettled payments: %w", err)
	}

	return paymentStore.ScanPayments(rows)
}

func (s *Store) UpdateStatus(ctx context.Context, p *payout.Payout, from payout.Status) error {
	query := `
		UPDATE payouts
		SET status = $1, failure_reason = NULLIF($2, ''), updated_at = $3
		WHERE id = $4 AND status = $5
	`

	n, err := database.RowsAffected(s.db.ExecContext(ctx, query,
		string(p.Status), p.FailureReason, p.UpdatedAt, p.ID, string(from)))
	if err != nil {
		return fmt.Errorf("updating payout status: %w", err)
	}

	if n == 0 {
		return payout.ErrVersionConflict
	}

	return nil
}

func (s *Store) GetRestaurant(ctx context.Context, id uuid.UUID) (*restaurant.Restaurant, error) {
	return s.restaurants.GetRestaurant(ctx, id)
}

func (s *Store) ListRestaurants(ctx context.Context) ([]*restaurant.Restaurant, error) {
	return s.restaurants.ListRestaurants(ctx)
}

func settlementLockKey(restaurantID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write([]byte("settlement"))
	h.Write([]byte{0})
	h.Write(restaurantID[:])

	return int64(h.Sum64())
}

type settlementTx struct {
	tx           *sql.Tx
	restaurantID uuid.UUID
}

func (s *Store) BeginSettlement(ctx context.Context, restaurantID uuid.UUID) (payout.SettlementTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning settlement tx: %w", err)
	}

	if _, err := dbTx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", settlementLockKey(restaurantID)); err != nil {
		dbTx.Rollback()
		return nil, fmt.Errorf("acquiring settlement lock: %w", err)
	}

	return &settlementTx{tx: dbTx, restaurantID: restaurantID}, nil
}

func (stx *settlementTx) Commit() error   { return stx.tx.Commit() }
func (stx *settlementTx) Rollback() error { return stx.tx.Rollback() }

func (stx *settlementTx) Settleable(ctx context.Context, period payout.Period, currency string) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentStore.Columns + `
		FROM payments p
		WHERE p.restaurant_id = $1
			AND p.currency = $2
			AND p.status = $3
			AND p.payout_id IS NULL
			AND p.completed_at >= $4 AND p.completed_at < $5
		ORDER BY p.completed_at ASC
		FOR UPDATE`

	rows, err := stx.tx.QueryContext(ctx, query,
		stx.restaurantID, currency, string(payment.StatusCompleted), period.From, period.To)
	if err != nil {
		return nil, fmt.Errorf("selecting settleable payments: %w", err)
	}

	return paymentStore.ScanPayments(rows)
}

func (stx *settlementTx) CreatePayout(ctx context.Context, p *payout.Payout) error {
	query := `
		INSERT INTO payouts (
			restaurant_id, period_from, period_to, gross, total_tips, total_fees, amount,
			payment_count, currency, status, bank_account_ref, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := stx.tx.QueryRowContext(ctx, query,
		p.RestaurantID, p.Period.From, p.Period.To,
		p.Gross.Amount, p.TotalTips.Amount, p.TotalFees.Amount, p.Amount.Amount,
		p.PaymentCount, p.Amount.Currency, string(p.Status), p.BankAccountRef,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting payout: %w", err)
	}

	return nil
}

func (stx *settlementTx) AssignPayments(ctx context.Context, payoutID uuid.UUID, paymentIDs []uuid.UUID) error {
	ids := make([]string, len(paymentIDs))
	for i, id := range paymentIDs {
		ids[i] = id.String()
	}

	query := `
		UPDATE payments
		SET payout_id = $1, updated_at = NOW()
		WHERE id = ANY($2::uuid[]) AND payout_id IS NULL
	`

	n, err := database.RowsAffected(stx.tx.ExecContext(ctx, query, payoutID, ids))
	if err != nil {
		return fmt.Errorf("stamping payments: %w", err)
	}

	if n != int64(len(paymentIDs)) {
		return fmt.Errorf("%w: stamped %d of %d payments", payout.ErrWatermarkConflict, n, len(paymentIDs))
	}

	return nil
}
