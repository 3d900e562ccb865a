// Package refund is the outbox of refunds owed to diners. Commands are written
// in the same transaction that decides a refund is needed and are delivered to
// the provider later by a Relay, outside any order lock.
package refund

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
)

var ErrNotFound = errors.New("refund command not found")

type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

type Command struct {
	ID            uuid.UUID
	PaymentID     uuid.UUID
	TransactionID string
	OrderID       uuid.UUID
	Amount        money.Money
	Reason        string
	Status        Status
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	SentAt        *time.Time
}

// NewCommand returns a pending command to refund amount for a payment.
func NewCommand(paymentID uuid.UUID, transactionID string, orderID uuid.UUID, amount money.Money, reason string) Command {
	return Command{
		PaymentID:     paymentID,
		TransactionID: transactionID,
		OrderID:       orderID,
		Amount:        amount,
		Reason:        reason,
		Status:        StatusPending,
	}
}
