package restaurant

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/restaurant"
)

type restaurantResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Currency       string    `json:"currency"`
	BankAccountRef string    `json:"bank_account_ref"`
	CreatedAt      time.Time `json:"created_at"`
}

func toResponse(r *restaurant.Restaurant) restaurantResponse {
	return restaurantResponse{
		ID:             r.ID,
		Name:           r.Name,
		Currency:       r.Currency,
		BankAccountRef: r.BankAccountRef,
		CreatedAt:      r.CreatedAt,
	}
}
