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
	"github.com/MrJamesThe3rd/splitpay/internal/split"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectSessionColumns = `id, order_id, mode, people, base, currency, active, version, created_at, closed_at`

func scanSession(row interface{ Scan(dest ...any) error }) (*split.Session, error) {
	var (
		s        split.Session
		kind     string
		people   sql.NullInt64
		base     int64
		currency string
	)

	if err := row.Scan(&s.ID, &s.OrderID, &kind, &people, &base, &currency, &s.Active, &s.Version, &s.CreatedAt, &s.ClosedAt); err != nil {
		return nil, err
	}

	s.Base = money.New(base, currency)
	s.Paid = map[string]bool{}
	s.Contributed = map[string]money.Money{}

	switch split.Kind(kind) {
	case split.KindItems:
		s.Mode = split.ItemsMode{Assignments: map[uuid.UUID]string{}}
	case split.KindEqual:
		s.Mode = split.EqualMode{People: int(people.Int64)}
	case split.KindCustom:
		s.Mode = split.CustomMode{}
	case split.KindWhole:
		s.Mode = split.WholeMode{}
	default:
		return nil, fmt.Errorf("unknown split mode %q", kind)
	}

	return &s, nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*split.Session, error) {
	return LoadSession(ctx, s.db, id)
}

func (s *Store) ActiveSession(ctx context.Context, orderID uuid.UUID) (*split.Session, error) {
	return LoadActiveSession(ctx, s.db, orderID)
}

type orderTx struct {
	tx    *sql.Tx
	order *order.Order
}

func (s *Store) BeginOrder(ctx context.Context, orderID uuid.UUID) (split.OrderTx, error) {
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

func (t *orderTx) ActiveSession(ctx context.Context) (*split.Session, error) {
	return LoadActiveSession(ctx, t.tx, t.order.ID)
}

func (t *orderTx) CreateSession(ctx context.Context, s *split.Session) error {
	return InsertSession(ctx, t.tx, s)
}

func (t *orderTx) SaveSession(ctx context.Context, s *split.Session) error {
	return SaveSession(ctx, t.tx, s)
}

func LoadSession(ctx context.Context, q database.Querier, id uuid.UUID) (*split.Session, error) {
	query := `SELECT ` + selectSessionColumns + ` FROM split_sessions WHERE id = $1`

	return loadOne(ctx, q, query, id)
}

// LoadActiveSession returns split.ErrNotFound when the order has no active
// session.
func LoadActiveSession(ctx context.Context, q database.Querier, orderID uuid.UUID) (*split.Session, error) {
	query := `SELECT ` + selectSessionColumns + ` FROM split_sessions WHERE order_id = $1 AND active`

	return loadOne(ctx, q, query, orderID)
}

func loadOne(ctx context.Context, q database.Querier, query string, arg any) (*split.Session, error) {
	sess, err := scanSession(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, split.ErrNotFound
		}

		return nil, fmt.Errorf("getting split session: %w", err)
	}

	if err := loadChildren(ctx, q, sess); err != nil {
		return nil, err
	}

	return sess, nil
}

func loadChildren(ctx context.Context, q database.Querier, sess *split.Session) error {
	switch m := sess.Mode.(type) {
	case split.EqualMode:
		allocs, err := loadAllocations(ctx, q, sess)
		if err != nil {
			return err
		}

		m.Allocations = allocs
		sess.Mode = m
	case split.CustomMode:
		allocs, err := loadAllocations(ctx, q, sess)
		if err != nil {
			return err
		}

		m.Allocations = allocs
		sess.Mode = m
	case split.ItemsMode:
		rows, err := q.QueryContext(ctx, `SELECT item_id, guest_ref FROM split_item_assignments WHERE session_id = $1`, sess.ID)
		if err != nil {
			return fmt.Errorf("listing item assignments: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				itemID uuid.UUID
				guest  string
			)

			if err := rows.Scan(&itemID, &guest); err != nil {
				return fmt.Errorf("scanning item assignment: %w", err)
			}

			m.Assignments[itemID] = guest
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating item assignments: %w", err)
		}
	}

	rows, err := q.QueryContext(ctx, `SELECT guest_ref, amount, settled FROM split_guest_payments WHERE session_id = $1`, sess.ID)
	if err != nil {
		return fmt.Errorf("listing guest payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			guest   string
			amount  int64
			settled bool
		)

		if err := rows.Scan(&guest, &amount, &settled); err != nil {
			return fmt.Errorf("scanning guest payment: %w", err)
		}

		if amount > 0 {
			sess.Contributed[guest] = money.New(amount, sess.Base.Currency)
		}

		if settled {
			sess.Paid[guest] = true
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating paid guests: %w", err)
	}

	return nil
}

func loadAllocations(ctx context.Context, q database.Querier, sess *split.Session) ([]split.Allocation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT guest_ref, amount
		FROM split_allocations
		WHERE session_id = $1
		ORDER BY position ASC`, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("listing allocations: %w", err)
	}
	defer rows.Close()

	var allocs []split.Allocation

	for rows.Next() {
		var (
			a      split.Allocation
			amount int64
		)

		if err := rows.Scan(&a.Guest, &amount); err != nil {
			return nil, fmt.Errorf("scanning allocation: %w", err)
		}

		a.Amount = money.New(amount, sess.Base.Currency)
		allocs = append(allocs, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating allocations: %w", err)
	}

	return allocs, nil
}

// InsertSession stores a new active session. A second active session for the
// same order trips the partial unique index and is reported as
// SessionAlreadyActiveError.
func InsertSession(ctx context.Context, q database.Querier, s *split.Session) error {
	var people *int
	if m, ok := s.Mode.(split.EqualMode); ok {
		people = &m.People
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO split_sessions (order_id, mode, people, base, currency, active, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
		RETURNING id, version`,
		s.OrderID, s.Mode.Kind(), people, s.Base.Amount, s.Base.Currency, s.Active, createdAt(s.CreatedAt),
	).Scan(&s.ID, &s.Version)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return &split.SessionAlreadyActiveError{OrderID: s.OrderID}
		}

		return fmt.Errorf("creating split session: %w", err)
	}

	return writeChildren(ctx, q, s)
}

// SaveSession writes back a session loaded under its order's lock.
func SaveSession(ctx context.Context, q database.Querier, s *split.Session) error {
	n, err := database.RowsAffected(q.ExecContext(ctx, `
		UPDATE split_sessions
		SET active = $1, closed_at = $2, version = version + 1
		WHERE id = $3 AND version = $4`,
		s.Active, s.ClosedAt, s.ID, s.Version,
	))
	if err != nil {
		return fmt.Errorf("updating split session: %w", err)
	}

	if n == 0 {
		return split.ErrVersionConflict
	}

	s.Version++

	for _, table := range []string{"split_allocations", "split_item_assignments", "split_guest_payments"} {
		if _, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = $1`, s.ID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	return writeChildren(ctx, q, s)
}

func writeChildren(ctx context.Context, q database.Querier, s *split.Session) error {
	for i, a := range s.Allocations() {
		_, err := q.ExecContext(ctx, `
			INSERT INTO split_allocations (session_id, guest_ref, position, amount)
			VALUES ($1, $2, $3, $4)`,
			s.ID, a.Guest, i, a.Amount.Amount)
		if err != nil {
			return fmt.Errorf("writing allocation: %w", err)
		}
	}

	if m, ok := s.Mode.(split.ItemsMode); ok {
		for itemID, guest := range m.Assignments {
			_, err := q.ExecContext(ctx, `
				INSERT INTO split_item_assignments (session_id, item_id, guest_ref)
				VALUES ($1, $2, $3)`,
				s.ID, itemID, guest)
			if err != nil {
				return fmt.Errorf("writing item assignment: %w", err)
			}
		}
	}

	guests := make(map[string]struct{}, len(s.Contributed)+len(s.Paid))
	for guest := range s.Contributed {
		guests[guest] = struct{}{}
	}

	for guest, paid := range s.Paid {
		if paid {
			guests[guest] = struct{}{}
		}
	}

	for guest := range guests {
		_, err := q.ExecContext(ctx, `
			INSERT INTO split_guest_payments (session_id, guest_ref, amount, settled)
			VALUES ($1, $2, $3, $4)`,
			s.ID, guest, s.PaidBy(guest).Amount, s.Paid[guest])
		if err != nil {
			return fmt.Errorf("writing guest payment: %w", err)
		}
	}

	return nil
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}

	return t
}
