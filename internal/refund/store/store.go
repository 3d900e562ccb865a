package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/database"
	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/refund"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectCommandColumns = `
	id, payment_id, transaction_id, order_id, amount, currency, reason, status,
	attempts, last_error, created_at, sent_at
`

func scanCommand(row interface{ Scan(dest ...any) error }) (*refund.Command, error) {
	var (
		c         refund.Command
		amount    int64
		currency  string
		status    string
		lastError sql.NullString
	)

	if err := row.Scan(
		&c.ID, &c.PaymentID, &c.TransactionID, &c.OrderID, &amount, &currency, &c.Reason, &status,
		&c.Attempts, &lastError, &c.CreatedAt, &c.SentAt,
	); err != nil {
		return nil, err
	}

	c.Amount = money.New(amount, currency)
	c.Status = refund.Status(status)
	c.LastError = lastError.String

	return &c, nil
}

// InsertCommand writes cmd as part of q's transaction. A payment is refunded
// at most once, so a second command for the same payment is dropped.
func InsertCommand(ctx context.Context, q database.Querier, cmd *refund.Command) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO refund_commands (payment_id, transaction_id, order_id, amount, currency, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (payment_id) DO NOTHING
		RETURNING id, created_at`,
		cmd.PaymentID, cmd.TransactionID, cmd.OrderID, cmd.Amount.Amount, cmd.Amount.Currency, cmd.Reason, cmd.Status,
	).Scan(&cmd.ID, &cmd.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("queueing refund command: %w", err)
	}

	return nil
}

// ClaimPending moves up to limit pending commands to sending and returns them.
// Rows locked by a concurrent claim are skipped, so every command goes to one
// relay at a time. Commands left in sending since before staleBefore belong to
// a relay that never reported back and are claimed again.
func (s *Store) ClaimPending(ctx context.Context, limit int, staleBefore time.Time) ([]*refund.Command, error) {
	query := `
		UPDATE refund_commands
		SET status = $1, claimed_at = NOW()
		WHERE id IN (
			SELECT id
			FROM refund_commands
			WHERE status = $2 OR (status = $1 AND claimed_at < $3)
			ORDER BY created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + selectCommandColumns

	cmds, err := s.list(ctx, query, refund.StatusSending, refund.StatusPending, staleBefore, limit)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(cmds, func(a, b *refund.Command) int { return a.CreatedAt.Compare(b.CreatedAt) })

	return cmds, nil
}

func (s *Store) ListCommands(ctx context.Context, status *refund.Status) ([]*refund.Command, error) {
	if status == nil {
		return s.list(ctx, `SELECT `+selectCommandColumns+` FROM refund_commands ORDER BY created_at DESC`)
	}

	return s.list(ctx, `SELECT `+selectCommandColumns+` FROM refund_commands WHERE status = $1 ORDER BY created_at DESC`, *status)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*refund.Command, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing refund commands: %w", err)
	}
	defer rows.Close()

	var cmds []*refund.Command

	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning refund command: %w", err)
		}

		cmds = append(cmds, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating refund commands: %w", err)
	}

	return cmds, nil
}

func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	n, err := database.RowsAffected(s.db.ExecContext(ctx, `
		UPDATE refund_commands
		SET status = $1, sent_at = $2, attempts = attempts + 1, last_error = NULL, claimed_at = NULL
		WHERE id = $3 AND status = $4`,
		refund.StatusSent, at, id, refund.StatusSending,
	))
	if err != nil {
		return fmt.Errorf("marking refund sent: %w", err)
	}

	if n == 0 {
		return refund.ErrNotFound
	}

	return nil
}

func (s *Store) RecordFailure(ctx context.Context, id uuid.UUID, reason string, giveUp bool) error {
	status := refund.StatusPending
	if giveUp {
		status = refund.StatusFailed
	}

	n, err := database.RowsAffected(s.db.ExecContext(ctx, `
		UPDATE refund_commands
		SET status = $1, attempts = attempts + 1, last_error = $2, claimed_at = NULL
		WHERE id = $3 AND status = $4`,
		status, reason, id, refund.StatusSending,
	))
	if err != nil {
		return fmt.Errorf("recording refund failure: %w", err)
	}

	if n == 0 {
		return refund.ErrNotFound
	}

	return nil
}
