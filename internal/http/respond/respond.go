// Package respond writes JSON bodies and maps domain errors to HTTP statuses.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/payout"
	"github.com/MrJamesThe3rd/splitpay/internal/pos"
	"github.com/MrJamesThe3rd/splitpay/internal/refund"
	"github.com/MrJamesThe3rd/splitpay/internal/restaurant"
	"github.com/MrJamesThe3rd/splitpay/internal/split"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

var notFound = []error{
	restaurant.ErrNotFound,
	order.ErrNotFound,
	order.ErrItemNotFound,
	split.ErrNotFound,
	payment.ErrNotFound,
	payout.ErrNotFound,
	refund.ErrNotFound,
}

var badRequest = []error{
	restaurant.ErrInvalid,
	order.ErrInvalid,
	split.ErrInvalidMode,
	split.ErrGuestRequired,
	payment.ErrInvalidEvent,
	payout.ErrInvalidPeriod,
	payout.ErrInvalidStatus,
	money.ErrInvalidAmount,
	money.ErrInvalidCurrency,
	money.ErrPrecision,
	money.ErrCurrencyMismatch,
	pos.ErrUnknownFormat,
	pos.ErrInvalidRow,
}

var unprocessable = []error{
	split.ErrAllocationExceedsTotal,
	split.ErrNothingToSplit,
	split.ErrUnknownGuest,
	split.ErrShareMismatch,
	payment.ErrShareExceeded,
}

var conflict = []error{
	order.ErrOrderClosed,
	order.ErrOverpayment,
	order.ErrDuplicateEntry,
	order.ErrNoCredit,
	order.ErrAlreadyReversed,
	order.ErrVersionConflict,
	split.ErrSessionAlreadyActive,
	split.ErrItemAlreadyAssigned,
	split.ErrSessionClosed,
	split.ErrOrderNotPaid,
	split.ErrUnassignedItems,
	split.ErrGuestAlreadyPaid,
	split.ErrVersionConflict,
	payment.ErrIllegalTransition,
	payment.ErrVersionConflict,
	payout.ErrIllegalTransition,
	payout.ErrVersionConflict,
	payout.ErrWatermarkConflict,
	payout.ErrEmptyPeriod,
	payout.ErrMixedCurrency,
}

// Status returns the HTTP status for err. Unknown errors are 500.
func Status(err error) int {
	groups := []struct {
		status int
		errs   []error
	}{
		{http.StatusNotFound, notFound},
		{http.StatusBadRequest, badRequest},
		{http.StatusUnprocessableEntity, unprocessable},
		{http.StatusConflict, conflict},
	}

	for _, g := range groups {
		for _, target := range g.errs {
			if errors.Is(err, target) {
				return g.status
			}
		}
	}

	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

// Error writes err as a JSON body. Internal errors are logged and hidden.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		JSON(w, status, errorResponse{Error: "internal error"})

		return
	}

	JSON(w, status, errorResponse{Error: err.Error()})
}

// Money is the wire form of an amount: minor units plus the currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func FromMoney(m money.Money) Money {
	return Money{Amount: m.Amount, Currency: m.Currency}
}

// ID parses the {key} URL parameter as a uuid.
func ID(r *http.Request, key string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, key))
}
