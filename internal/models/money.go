package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a caller does not specify one.
const DefaultCurrency = "PKR"

// Money is an amount in a single currency. Amounts are exact decimals,
// never floats. Arithmetic between two Money values requires equal
// currencies and fails with ErrCurrencyMismatch otherwise.
type Money struct {
	Amount   decimal.Decimal `json:"amount" db:"amount"`
	Currency string          `json:"currency" db:"currency"`
}

// NewMoney builds a Money value, normalizing the currency code.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return Money{}, fmt.Errorf("%w: currency must be a 3-letter code, got %q", ErrValidation, currency)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// MustMoney is for constants and tests where the inputs are known-good.
func MustMoney(amount string, currency string) Money {
	m, err := NewMoney(decimal.RequireFromString(amount), currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	m, _ := NewMoney(decimal.Zero, currency)
	return m
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}

func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// MulRate multiplies by a plain decimal factor (e.g. a fee rate), rounding
// to 2 decimal places.
func (m Money) MulRate(rate decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(rate).Round(2), Currency: m.Currency}
}

// Cmp compares two amounts; it is only meaningful for equal currencies.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	return m.Amount.Cmp(other.Amount), nil
}

// GreaterOrEqual reports whether m >= other.
func (m Money) GreaterOrEqual(other Money) (bool, error) {
	c, err := m.Cmp(other)
	if err != nil {
		return false, err
	}
	return c >= 0, nil
}

func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}
