package restaurant

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("restaurant not found")
	ErrInvalid  = errors.New("invalid restaurant")
)

// Restaurant is an onboarded venue that receives payouts.
type Restaurant struct {
	ID             uuid.UUID
	Name           string
	Currency       string
	BankAccountRef string
	CreatedAt      time.Time
}
