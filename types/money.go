// Package types provides value types shared across cloudbill packages.
package types

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// presentationPlaces is the number of decimals used when an amount is shown
// to a person. Stored and accumulated amounts are never rounded.
const presentationPlaces = 2

// Money is a monetary amount backed by an arbitrary-precision decimal.
// Intermediate results keep full precision; rounding happens only in
// FormatMajor and String.
//
// Examples:
//   - NewMoney(decimal.RequireFromString("30")) = $30.00
//   - MoneyFromFloat(0.125).String() = "$0.13"
type Money struct {
	amount decimal.Decimal
}

// Zero returns a zero amount.
func Zero() Money { return Money{amount: decimal.Zero} }

// NewMoney wraps a decimal amount.
func NewMoney(d decimal.Decimal) Money { return Money{amount: d} }

// MoneyFromFloat converts a float64 amount. Prefer NewMoney for values that
// already are decimals.
func MoneyFromFloat(f float64) Money { return Money{amount: decimal.NewFromFloat(f)} }

// ParseMoney parses a decimal string such as "30.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: d}, nil
}

// Cost computes quantity × rate × hours, the unit of every billing line.
func Cost(quantity, ratePerHour, hours decimal.Decimal) Money {
	return Money{amount: quantity.Mul(ratePerHour).Mul(hours)}
}

// Arithmetic operations

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Subtract returns m - other.
func (m Money) Subtract(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

// Multiply scales the amount by a decimal factor.
func (m Money) Multiply(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor)}
}

// Percentage returns m as a percentage of total, or zero when total is zero.
func (m Money) Percentage(total Money) decimal.Decimal {
	if total.amount.IsZero() {
		return decimal.Zero
	}
	return m.amount.Div(total.amount).Mul(decimal.NewFromInt(100))
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// Equal compares amounts numerically, so 30 and 30.00 are equal.
func (m Money) Equal(other Money) bool { return m.amount.Equal(other.amount) }

// LessThan returns true if m < other.
func (m Money) LessThan(other Money) bool { return m.amount.LessThan(other.amount) }

// GreaterThan returns true if m > other.
func (m Money) GreaterThan(other Money) bool { return m.amount.GreaterThan(other.amount) }

// Accessors

// Decimal returns the underlying full-precision amount.
func (m Money) Decimal() decimal.Decimal { return m.amount }

// Float64 returns the amount as a float64, for presentation layers only.
func (m Money) Float64() float64 {
	f, _ := m.amount.Float64()
	return f
}

// Formatting methods

// FormatMajor returns the amount rounded half-up to two places: "30.00".
func (m Money) FormatMajor() string {
	return m.amount.StringFixed(presentationPlaces)
}

// String returns the amount with a currency sign: "$30.00".
func (m Money) String() string {
	if m.amount.IsNegative() {
		return "-$" + m.amount.Neg().StringFixed(presentationPlaces)
	}
	return "$" + m.FormatMajor()
}

// MarshalJSON encodes the full-precision amount as a JSON number string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.amount)
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	return m.amount.UnmarshalJSON(data)
}

// Sum adds all values. An empty call returns Zero.
func Sum(values ...Money) Money {
	result := Zero()
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
