// Package money implements exact currency arithmetic over integer minor units.
//
// Amounts are never held as binary floating point. Rounding happens only in
// ApplyRate, at the boundary where a percentage is turned back into cents, and
// it uses banker's rounding (round half to even).
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrPrecision        = errors.New("amount has more than two decimal places")
)

// Money is an amount in minor units (cents) of a currency.
type Money struct {
	Amount   int64
	Currency string
}

// New returns an amount of cents in the given currency. The currency code is
// upper-cased; validation is left to NormalizeCurrency.
func New(cents int64, currency string) Money {
	return Money{Amount: cents, Currency: strings.ToUpper(currency)}
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return New(0, currency)
}

// NormalizeCurrency validates a three letter ISO 4217 code and upper-cases it.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}

	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}

	return code, nil
}

func (m Money) SameCurrency(o Money) bool {
	return m.Currency == o.Currency
}

func (m Money) mustMatch(o Money) {
	if !m.SameCurrency(o) {
		panic(fmt.Sprintf("money: %s and %s have different currencies", m, o))
	}
}

// Add panics when the currencies differ. Callers validate currencies at the
// edge of the domain and return ErrCurrencyMismatch there.
func (m Money) Add(o Money) Money {
	m.mustMatch(o)
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}
}

// Sub panics when the currencies differ.
func (m Money) Sub(o Money) Money {
	m.mustMatch(o)
	return Money{Amount: m.Amount - o.Amount, Currency: m.Currency}
}

func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// Cmp returns -1, 0 or +1. It panics when the currencies differ.
func (m Money) Cmp(o Money) int {
	m.mustMatch(o)

	switch {
	case m.Amount < o.Amount:
		return -1
	case m.Amount > o.Amount:
		return 1
	}

	return 0
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Sum adds amounts that all use currency. An empty list sums to zero.
func Sum(currency string, amounts ...Money) Money {
	total := Zero(currency)
	for _, a := range amounts {
		total = total.Add(a)
	}

	return total
}

// Split divides m into n shares whose sum is exactly m. The remainder cents
// go one each to the leading shares, so 100.00 / 3 is 33.34, 33.33, 33.33.
func (m Money) Split(n int) []Money {
	if n < 1 {
		return nil
	}

	q := m.Amount / int64(n)
	r := m.Amount % int64(n)

	step := int64(1)
	if r < 0 {
		step, r = -1, -r
	}

	shares := make([]Money, n)
	for i := range shares {
		amount := q
		if int64(i) < r {
			amount += step
		}

		shares[i] = Money{Amount: amount, Currency: m.Currency}
	}

	return shares
}

// ApplyRate returns basisPoints/10000 of m rounded half to even to whole
// minor units.
func (m Money) ApplyRate(basisPoints int64) Money {
	rate := decimal.New(basisPoints, -4)
	cents := decimal.NewFromInt(m.Amount).Mul(rate).RoundBank(0).IntPart()

	return Money{Amount: cents, Currency: m.Currency}
}

// Decimal returns the amount in major units, e.g. 45.50.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -2)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(2), m.Currency)
}

// Parse reads a major-unit amount such as "45.50", "45,50" or "1.234,56".
// When both separators appear, the last one is the decimal separator.
func Parse(s, currency string) (Money, error) {
	cur, err := NormalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}

	clean := normalizeSeparators(s)
	if clean == "" {
		return Money{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	if !d.Equal(d.Truncate(2)) {
		return Money{}, fmt.Errorf("%w: %q", ErrPrecision, s)
	}

	return Money{Amount: d.Shift(2).IntPart(), Currency: cur}, nil
}

func normalizeSeparators(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	if lastComma > lastDot {
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	}

	return strings.ReplaceAll(s, ",", "")
}
