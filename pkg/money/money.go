// Package money provides currency-safe amounts using integer minor units.
// Budget amounts are parsed as decimals and stored as minor units; this package
// owns the conversion in both directions and the display formatting.
package money

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	TRY = "TRY" // Turkish Lira
	USD = "USD" // US Dollar
	EUR = "EUR" // Euro
	GBP = "GBP" // British Pound
	JPY = "JPY" // Japanese Yen (no decimal places)
)

// DefaultCurrency is used when a caller passes an unknown code
const DefaultCurrency = TRY

// Money represents a monetary value with currency.
type Money struct {
	m *money.Money
}

// New creates a new Money value from minor units and currency code.
func New(amountMinor int64, currencyCode string) *Money {
	return &Money{m: money.New(amountMinor, resolve(currencyCode).Code)}
}

// NewFromDecimal creates Money from a decimal, rounding half away from zero
// to the currency's minor unit.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	return New(ToMinor(amount, currencyCode), currencyCode)
}

// Zero returns a zero Money value for the given currency
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// ErrOutOfRange is returned when an amount has no int64 minor-unit representation
var ErrOutOfRange = errors.New("amount out of range")

// ToMinor converts a major-unit decimal to minor units of the currency.
// The amount must fit in int64 minor units; use ToMinorChecked for input.
func ToMinor(amount decimal.Decimal, currencyCode string) int64 {
	minor, _ := ToMinorChecked(amount, currencyCode)
	return minor
}

// ToMinorChecked is ToMinor that fails with ErrOutOfRange instead of wrapping
func ToMinorChecked(amount decimal.Decimal, currencyCode string) (int64, error) {
	scaled := amount.Shift(int32(resolve(currencyCode).Fraction)).Round(0)
	n := scaled.BigInt()
	if !n.IsInt64() {
		return 0, fmt.Errorf("%w: %s %s", ErrOutOfRange, amount.String(), currencyCode)
	}
	return n.Int64(), nil
}

// FromMinor converts minor units back to a major-unit decimal
func FromMinor(amountMinor int64, currencyCode string) decimal.Decimal {
	divisor := decimal.New(1, int32(resolve(currencyCode).Fraction))
	return decimal.NewFromInt(amountMinor).Div(divisor)
}

// Major converts minor units to a float for JSON payloads and ratios.
// Use FromMinor for arithmetic.
func Major(amountMinor int64, currencyCode string) float64 {
	return FromMinor(amountMinor, currencyCode).InexactFloat64()
}

func resolve(code string) *money.Currency {
	if c := money.GetCurrency(code); c != nil {
		return c
	}
	return money.GetCurrency(DefaultCurrency)
}

// Amount returns the amount in minor units
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// IsZero returns true if the amount is zero
func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

// IsNegative returns true if the amount is less than zero
func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

// Add adds two Money values. Returns error if currencies don't match.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		return other, nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}

	result, err := m.m.Add(other.m)
	if err != nil {
		return nil, err
	}
	return &Money{m: result}, nil
}

// Display returns a formatted string for display (e.g., "₺1.234,56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return Zero(DefaultCurrency).m.Display()
	}
	return m.m.Display()
}

// String returns the amount as a decimal string (e.g., "1234.56")
func (m *Money) String() string {
	return m.ToDecimal().StringFixed(int32(resolve(m.Currency()).Fraction))
}

// ToDecimal converts to decimal.Decimal for precise calculations
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	return FromMinor(m.m.Amount(), m.m.Currency().Code)
}

// ToFloat64 converts to float64 (use with caution for display only)
func (m *Money) ToFloat64() float64 {
	return m.ToDecimal().InexactFloat64()
}

// MarshalJSON renders amount, currency and display string
func (m *Money) MarshalJSON() ([]byte, error) {
	if m == nil || m.m == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(map[string]interface{}{
		"amount":   m.ToFloat64(),
		"minor":    m.Amount(),
		"currency": m.Currency(),
		"display":  m.Display(),
	})
}

// Format renders minor units of a currency for CLI output
func Format(amountMinor int64, currencyCode string) string {
	return New(amountMinor, currencyCode).Display()
}
