package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/database"
	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

const selectOrderColumns = `id, restaurant_id, table_id, total_amount, currency, status, version, created_at, updated_at, closed_at`

func scanOrder(s scanner) (*order.Order, error) {
	var (
		o        order.Order
		total    int64
		currency string
		status   string
	)

	if err := s.Scan(
		&o.ID, &o.RestaurantID, &o.TableID, &total, &currency, &status, &o.Version,
		&o.CreatedAt, &o.UpdatedAt, &o.ClosedAt,
	); err != nil {
		return nil, err
	}

	o.Total = money.New(total, currency)
	o.Status = order.Status(status)

	return &o, nil
}

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (restaurant_id, table_id, total_amount, currency, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, NOW(), NOW())
		RETURNING id, version, created_at, updated_at
	`

	err = tx.QueryRowContext(ctx, query,
		o.RestaurantID,
		o.TableID,
		o.Total.Amount,
		o.Total.Currency,
		o.Status,
	).Scan(&o.ID, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, position, name, unit_price, quantity, paid)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	for i := range o.Items {
		it := &o.Items[i]
		if err := tx.QueryRowContext(ctx, itemQuery, o.ID, i, it.Name, it.UnitPrice.Amount, it.Quantity, it.Paid).Scan(&it.ID); err != nil {
			return fmt.Errorf("creating order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing order: %w", err)
	}

	return nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return LoadOrder(ctx, s.db, id, false)
}

func (s *Store) ListOrders(ctx context.Context, filter order.ListFilter) ([]*order.Order, error) {
	query := `SELECT ` + selectOrderColumns + ` FROM orders WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.RestaurantID != nil {
		query += fmt.Sprintf(" AND restaurant_id = $%d", argIdx)

		args = append(args, *filter.RestaurantID)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.TableID != "" {
		query += fmt.Sprintf(" AND table_id = $%d", argIdx)

		args = append(args, filter.TableID)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}

		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}

	for _, o := range orders {
		if err := loadChildren(ctx, s.db, o); err != nil {
			return nil, err
		}
	}

	return orders, nil
}

type lockedOrder struct {
	tx    *sql.Tx
	order *order.Order
}

func (s *Store) BeginOrder(ctx context.Context, id uuid.UUID) (order.LockedOrder, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning order tx: %w", err)
	}

	o, err := LoadOrder(ctx, tx, id, true)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	return &lockedOrder{tx: tx, order: o}, nil
}

func (l *lockedOrder) Order() *order.Order { return l.order }
func (l *lockedOrder) Commit() error       { return l.tx.Commit() }
func (l *lockedOrder) Rollback() error     { return l.tx.Rollback() }

func (l *lockedOrder) Save(ctx context.Context, o *order.Order) error {
	return SaveOrder(ctx, l.tx, o)
}

// LoadOrder reads an order with its items and ledger entries. With lock set
// the order row is locked FOR UPDATE until q's transaction ends.
func LoadOrder(ctx context.Context, q database.Querier, id uuid.UUID, lock bool) (*order.Order, error) {
	query := `SELECT ` + selectOrderColumns + ` FROM orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	o, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrNotFound
		}

		return nil, fmt.Errorf("getting order: %w", err)
	}

	if err := loadChildren(ctx, q, o); err != nil {
		return nil, err
	}

	return o, nil
}

func loadChildren(ctx context.Context, q database.Querier, o *order.Order) error {
	currency := o.Total.Currency

	rows, err := q.QueryContext(ctx, `
		SELECT id, name, unit_price, quantity, paid
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC`, o.ID)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	defer rows.Close()

	o.Items = nil

	for rows.Next() {
		var (
			it    order.Item
			price int64
		)

		if err := rows.Scan(&it.ID, &it.Name, &price, &it.Quantity, &it.Paid); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}

		it.UnitPrice = money.New(price, currency)
		o.Items = append(o.Items, it)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating order items: %w", err)
	}

	entryRows, err := q.QueryContext(ctx, `
		SELECT id, payment_id, kind, principal, created_at
		FROM ledger_entries
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC`, o.ID)
	if err != nil {
		return fmt.Errorf("listing ledger entries: %w", err)
	}
	defer entryRows.Close()

	o.Entries = nil

	for entryRows.Next() {
		var (
			e         order.Entry
			kind      string
			principal int64
		)

		if err := entryRows.Scan(&e.ID, &e.PaymentID, &kind, &principal, &e.CreatedAt); err != nil {
			return fmt.Errorf("scanning ledger entry: %w", err)
		}

		e.Kind = order.EntryKind(kind)
		e.Principal = money.New(principal, currency)
		o.Entries = append(o.Entries, e)
	}

	if err := entryRows.Err(); err != nil {
		return fmt.Errorf("iterating ledger entries: %w", err)
	}

	return nil
}

// SaveOrder persists the mutable state of an order loaded by LoadOrder: its
// status, item flags and any entries not yet stored. The write only succeeds
// when the stored version still matches o.Version, which is then incremented.
func SaveOrder(ctx context.Context, q database.Querier, o *order.Order) error {
	n, err := database.RowsAffected(q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, closed_at = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND version = $4`,
		o.Status, o.ClosedAt, o.ID, o.Version,
	))
	if err != nil {
		return fmt.Errorf("updating order: %w", err)
	}

	if n == 0 {
		return order.ErrVersionConflict
	}

	o.Version++

	for i := range o.Entries {
		e := &o.Entries[i]
		if e.ID != uuid.Nil {
			continue
		}

		err := q.QueryRowContext(ctx, `
			INSERT INTO ledger_entries (order_id, payment_id, kind, principal, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			o.ID, e.PaymentID, e.Kind, e.Principal.Amount, e.CreatedAt,
		).Scan(&e.ID)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return order.ErrDuplicateEntry
			}

			return fmt.Errorf("appending ledger entry: %w", err)
		}
	}

	for _, it := range o.Items {
		if _, err := q.ExecContext(ctx, `UPDATE order_items SET paid = $1 WHERE id = $2 AND order_id = $3`, it.Paid, it.ID, o.ID); err != nil {
			return fmt.Errorf("updating order item: %w", err)
		}
	}

	if o.Status == order.StatusClosed {
		_, err := q.ExecContext(ctx, `
			UPDATE split_sessions
			SET active = FALSE, closed_at = NOW(), version = version + 1
			WHERE order_id = $1 AND active`, o.ID)
		if err != nil {
			return fmt.Errorf("deactivating split sessions: %w", err)
		}
	}

	return nil
}
