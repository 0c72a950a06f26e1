package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name    string
		money   Money
		display string
	}{
		{"Zero", Zero(), "$0.00"},
		{"Whole", NewMoney(dec("30")), "$30.00"},
		{"Fraction", NewMoney(dec("12.5")), "$12.50"},
		{"Float", MoneyFromFloat(0.125), "$0.13"},
		{"Negative", NewMoney(dec("-4.2")), "-$4.20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return NewMoney(dec("1.1")).Add(NewMoney(dec("2.2"))) }, NewMoney(dec("3.3"))},
		{"Subtract", func() Money { return NewMoney(dec("5")).Subtract(NewMoney(dec("2"))) }, NewMoney(dec("3"))},
		{"Multiply", func() Money { return NewMoney(dec("1.5")).Multiply(dec("2")) }, NewMoney(dec("3"))},
		{"Cost", func() Money { return Cost(dec("2"), dec("5"), dec("3")) }, NewMoney(dec("30"))},
		{"Sum", func() Money {
			return Sum(NewMoney(dec("0.1")), NewMoney(dec("0.2")), NewMoney(dec("0.3")))
		}, NewMoney(dec("0.6"))},
		{"Empty sum", func() Money { return Sum() }, Zero()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyKeepsPrecision(t *testing.T) {
	// A third of a cent accumulated three times is a whole cent.
	third := NewMoney(dec("0.0033333333"))
	total := Sum(third, third, third)
	if total.FormatMajor() != "0.01" {
		t.Errorf("FormatMajor: got %s, want 0.01", total.FormatMajor())
	}
	if !total.Equal(NewMoney(dec("0.0099999999"))) {
		t.Errorf("Got %s, want full precision", total.Decimal())
	}
}

func TestMoneyPercentage(t *testing.T) {
	total := NewMoney(dec("200"))
	if got := NewMoney(dec("50")).Percentage(total); !got.Equal(dec("25")) {
		t.Errorf("Percentage: got %s, want 25", got)
	}
	if got := NewMoney(dec("50")).Percentage(Zero()); !got.IsZero() {
		t.Errorf("Percentage of zero total: got %s, want 0", got)
	}
}

func TestMoneyComparisons(t *testing.T) {
	a := NewMoney(dec("1"))
	b := NewMoney(dec("2"))

	if !a.LessThan(b) {
		t.Error("Expected 1 < 2")
	}
	if !b.GreaterThan(a) {
		t.Error("Expected 2 > 1")
	}
	if !NewMoney(dec("30")).Equal(NewMoney(dec("30.00"))) {
		t.Error("Expected 30 == 30.00")
	}
	if !Zero().IsZero() || a.IsZero() {
		t.Error("IsZero mismatch")
	}
	if !a.IsPositive() || NewMoney(dec("-1")).IsPositive() {
		t.Error("IsPositive mismatch")
	}
}

func TestMoneyJSON(t *testing.T) {
	m := NewMoney(dec("12.345"))

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != `"12.345"` {
		t.Errorf("Marshal: got %s", data)
	}

	var got Money
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !got.Equal(m) {
		t.Errorf("Unmarshal: got %v, want %v", got, m)
	}

	if err := json.Unmarshal([]byte(`7.5`), &got); err != nil {
		t.Fatalf("Unmarshal number error: %v", err)
	}
	if got.FormatMajor() != "7.50" {
		t.Errorf("Unmarshal number: got %s", got.FormatMajor())
	}
}
